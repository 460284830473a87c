package records

import (
	"time"

	"github.com/google/uuid"
)

// History event kinds. The string tags are part of the wire contract.
const (
	EventCreated                = "created"
	EventUpdated                = "updated"
	EventTransferredOwnership   = "transferred_ownership"
	EventRequestedAccess        = "requested_access"
	EventCancelledRequest       = "cancelled_request"
	EventRejectedRequest        = "rejected_request"
	EventGrantedAccess          = "granted_access"
	EventRevokedAccess          = "revoked_access"
	EventCancelledAccessRequest = "cancelled_access_request"
	EventSharedWith             = "shared_with"
	EventUnsharedWith           = "unshared_with"
	EventFileAdded              = "file_added"
	EventFileRemoved            = "file_removed"
	EventFileUpdated            = "file_updated"
)

// DataTypes is the fixed classification set for file attachments.
var DataTypes = []string{"Lab results", "Medical images", "Medication history", "Clinician notes"}

// ValidDataType reports whether s is one of the allowed classifications.
func ValidDataType(s string) bool {
	for _, dt := range DataTypes {
		if s == dt {
			return true
		}
	}
	return false
}

// File is a single attachment on a patient record. Content travels as a
// base64 payload; IpfsCID is a client-generated correlation id carried along
// opaquely.
type File struct {
	ID       uuid.UUID `db:"id" json:"_id"`
	Name     string    `db:"name" json:"name"`
	DataType string    `db:"data_type" json:"dataType"`
	Base64   string    `db:"base64" json:"base64"`
	IpfsCID  string    `db:"ipfs_cid" json:"ipfsCID"`
}

// HistoryEvent is one append-only log entry on a patient record. The optional
// actor/target fields are populated per event kind.
type HistoryEvent struct {
	EventType string    `db:"event_type" json:"eventType"`
	Timestamp time.Time `db:"created_at" json:"timestamp"`
	By        string    `db:"actor" json:"by,omitempty"`
	To        string    `db:"target" json:"to,omitempty"`
	For       string    `db:"subject" json:"for,omitempty"`
	With      string    `db:"counterparty" json:"with,omitempty"`
	FileName  string    `db:"file_name" json:"fileName,omitempty"`
}

// Patient is the record aggregate: attached files, per-user share grants
// (user id -> granted file ids), outstanding access requests and the history
// log.
type Patient struct {
	PatientID      string                 `json:"patient_id"`
	OwnerID        uuid.UUID              `json:"owner_id"`
	CreatedAt      time.Time              `json:"createdAt"`
	Content        []File                 `json:"content"`
	SharedWith     map[string][]uuid.UUID `json:"sharedWith"`
	AccessRequests []uuid.UUID            `json:"accessRequests"`
	History        []HistoryEvent         `json:"history"`
}

// UserRef is the lean user representation embedded in record responses.
type UserRef struct {
	ID               uuid.UUID `json:"_id"`
	Username         string    `json:"username"`
	Address          string    `json:"address"`
	Name             string    `json:"name"`
	HealthcareType   string    `json:"healthcareType"`
	OrganizationName string    `json:"organizationName"`
}

// SharedListEntry pairs a grant recipient with the files visible to them.
type SharedListEntry struct {
	User  UserRef `json:"user"`
	Files []File  `json:"files"`
}

// Detail is the response shape of GET /patients/:id.
type Detail struct {
	Patient        *Patient          `json:"patient"`
	Owner          UserRef           `json:"owner"`
	SharedList     []SharedListEntry `json:"sharedList"`
	AccessRequests []UserRef         `json:"accessRequests"`
}

// FileByID returns the file with the given id, or nil.
func (p *Patient) FileByID(id uuid.UUID) *File {
	for i := range p.Content {
		if p.Content[i].ID == id {
			return &p.Content[i]
		}
	}
	return nil
}

// FilesByID returns the files matching ids, preserving record order.
// Unknown ids are skipped.
func (p *Patient) FilesByID(ids []uuid.UUID) []File {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []File
	for _, f := range p.Content {
		if want[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// HasRequest reports whether userID has an outstanding access request.
func (p *Patient) HasRequest(userID uuid.UUID) bool {
	for _, id := range p.AccessRequests {
		if id == userID {
			return true
		}
	}
	return false
}

// GrantFor returns the file ids granted to userID, or nil.
func (p *Patient) GrantFor(userID uuid.UUID) []uuid.UUID {
	if p.SharedWith == nil {
		return nil
	}
	return p.SharedWith[userID.String()]
}

// VisibleContent returns the files the viewer may see: everything for the
// owner, the granted subset for a share recipient, an empty slice otherwise.
// Never nil, so content always serializes as an array. Record order is
// preserved.
func (p *Patient) VisibleContent(viewerID uuid.UUID) []File {
	if viewerID == p.OwnerID {
		return p.Content
	}
	grant := p.GrantFor(viewerID)
	if len(grant) == 0 {
		return []File{}
	}
	if files := p.FilesByID(grant); files != nil {
		return files
	}
	return []File{}
}
