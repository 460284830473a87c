package client

import "time"

// User is the account representation returned by the server.
type User struct {
	ID               string `json:"_id"`
	Username         string `json:"username"`
	Address          string `json:"address"`
	Name             string `json:"name"`
	HealthcareType   string `json:"healthcareType"`
	OrganizationName string `json:"organizationName"`
}

// File is one attachment on a patient record.
type File struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	Base64   string `json:"base64"`
	IpfsCID  string `json:"ipfsCID"`
}

// HistoryEvent is one entry in a record's append-only log.
type HistoryEvent struct {
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	By        string    `json:"by,omitempty"`
	To        string    `json:"to,omitempty"`
	For       string    `json:"for,omitempty"`
	With      string    `json:"with,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
}

// Patient is a record as returned by the list and mutation endpoints.
type Patient struct {
	PatientID      string              `json:"patient_id"`
	OwnerID        string              `json:"owner_id"`
	CreatedAt      time.Time           `json:"createdAt"`
	Content        []File              `json:"content"`
	SharedWith     map[string][]string `json:"sharedWith"`
	AccessRequests []string            `json:"accessRequests"`
	History        []HistoryEvent      `json:"history"`
}

// SharedListEntry pairs a grant recipient with their visible files.
type SharedListEntry struct {
	User  User   `json:"user"`
	Files []File `json:"files"`
}

// PatientDetail is the response of GET /patients/:id.
type PatientDetail struct {
	Patient        *Patient          `json:"patient"`
	Owner          User              `json:"owner"`
	SharedList     []SharedListEntry `json:"sharedList"`
	AccessRequests []User            `json:"accessRequests"`
}

// PatientPage is one page of a patient collection.
type PatientPage struct {
	Patients   []Patient `json:"patients"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	HasMore    bool      `json:"has_more"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}
