package records

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medchain/medchain/pkg/pagination"
)

var (
	// ErrNotFound is returned when no record matches the patient id.
	ErrNotFound = errors.New("patient record not found")
	// ErrDuplicatePatient is returned when the patient id is already taken.
	ErrDuplicatePatient = errors.New("patient id already exists")
	// ErrDuplicateRequest is returned when the caller already has an
	// outstanding access request on the record.
	ErrDuplicateRequest = errors.New("access request already pending")
	// ErrNoRequest is returned when cancelling or rejecting a request that
	// does not exist.
	ErrNoRequest = errors.New("no pending access request")
	// ErrNotOwner is returned for owner-only operations invoked by others.
	ErrNotOwner = errors.New("only the record owner may perform this action")
	// ErrInvalidPassword is returned by UserDirectory.VerifyPassword when
	// the supplied password does not match.
	ErrInvalidPassword = errors.New("invalid password")
)

// Scope selects which patient collection a list query runs against.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeMine   Scope = "mine"
	ScopeShared Scope = "shared"
)

// ListQuery describes one paginated list fetch. ViewerID is required for
// ScopeMine and ScopeShared.
type ListQuery struct {
	Scope    Scope
	ViewerID uuid.UUID
	pagination.Params
}

// Repository persists patient record aggregates. Multi-row mutations
// (files + history, grants + history) are atomic.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, patientID string) (*Patient, error)
	List(ctx context.Context, q ListQuery) ([]*Patient, int, error)
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, n int) ([]*Patient, error)

	AddFiles(ctx context.Context, patientID string, files []File, events []HistoryEvent) error
	UpdateFile(ctx context.Context, patientID string, fileID uuid.UUID, name, dataType string, ev HistoryEvent) error
	// RemoveFiles deletes the files and drops their ids from every share
	// grant that referenced them.
	RemoveFiles(ctx context.Context, patientID string, fileIDs []uuid.UUID, events []HistoryEvent) error

	// SetGrant replaces the recipient's granted file set; an empty set
	// removes the grant entirely. clearRequest additionally drops the
	// recipient's pending access request in the same transaction.
	SetGrant(ctx context.Context, patientID string, userID uuid.UUID, fileIDs []uuid.UUID, clearRequest bool, events []HistoryEvent) error

	AddAccessRequest(ctx context.Context, patientID string, userID uuid.UUID, ev HistoryEvent) error
	RemoveAccessRequest(ctx context.Context, patientID string, userID uuid.UUID, ev HistoryEvent) error

	TransferOwnership(ctx context.Context, patientID string, newOwnerID uuid.UUID, ev HistoryEvent) error
}

// UserDirectory resolves user references for record responses and verifies
// credentials for ownership transfer. Implemented by the identity domain.
type UserDirectory interface {
	UserByID(ctx context.Context, id uuid.UUID) (*UserRef, error)
	UserByUsername(ctx context.Context, username string) (*UserRef, error)
	VerifyPassword(ctx context.Context, id uuid.UUID, password string) error
}
