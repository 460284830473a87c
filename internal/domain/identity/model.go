package identity

import (
	"time"

	"github.com/google/uuid"
)

// User maps to the app_user table. The JSON field names mirror the wire
// contract consumed by MedChain clients; the password hash never leaves the
// server.
type User struct {
	ID               uuid.UUID `db:"id" json:"_id"`
	Username         string    `db:"username" json:"username"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	Address          string    `db:"address" json:"address"`
	Name             string    `db:"name" json:"name"`
	HealthcareType   string    `db:"healthcare_type" json:"healthcareType"`
	OrganizationName string    `db:"organization_name" json:"organizationName"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RegisterRequest is the payload for POST /users/register.
type RegisterRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	ConfirmPassword  string `json:"confirmPassword"`
	Name             string `json:"name"`
	HealthcareType   string `json:"healthcareType"`
	OrganizationName string `json:"organizationName"`
}

// LoginRequest is the payload for POST /users/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateDetailsRequest is the payload for PATCH /users/updateDetails.
// Nil fields are left unchanged.
type UpdateDetailsRequest struct {
	Name             *string `json:"name"`
	HealthcareType   *string `json:"healthcareType"`
	OrganizationName *string `json:"organizationName"`
}

// LinkAddressRequest is the payload for POST /users/linkAddress.
type LinkAddressRequest struct {
	Address string `json:"address"`
}
