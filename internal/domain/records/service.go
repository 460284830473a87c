package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxRecent is the default cap on GET /patients/recent/:n.
const maxRecent = 50

type Service struct {
	repo      Repository
	users     UserDirectory
	recentCap int
}

// NewService builds the record service. recentCap bounds the recent-records
// endpoint; zero or negative selects the default.
func NewService(repo Repository, users UserDirectory, recentCap int) *Service {
	if recentCap <= 0 {
		recentCap = maxRecent
	}
	return &Service{repo: repo, users: users, recentCap: recentCap}
}

// FileUpload is one encoded file in a create or add-files payload.
type FileUpload struct {
	Base64   string `json:"base64"`
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	IpfsCID  string `json:"ipfsCID"`
}

// CreateRequest is the payload for POST /patients.
type CreateRequest struct {
	PatientID string       `json:"patient_id"`
	Content   []FileUpload `json:"content"`
}

// AddFilesRequest is the payload for POST /patients/:id/add-files.
type AddFilesRequest struct {
	Content []FileUpload `json:"content"`
}

// EditFileRequest is the payload for POST /patients/:id/edit-file.
type EditFileRequest struct {
	FileID   uuid.UUID `json:"fileId"`
	Name     string    `json:"name"`
	DataType string    `json:"dataType"`
}

// DeleteFilesRequest is the payload for DELETE /patients/:id/delete-files.
type DeleteFilesRequest struct {
	FileIDs []uuid.UUID `json:"fileIds"`
}

// ShareRequest is the payload for share-files and manage-access.
type ShareRequest struct {
	Username string      `json:"username"`
	FileIDs  []uuid.UUID `json:"fileIds"`
}

// RejectRequest is the payload for POST /patients/:id/reject-access-request.
type RejectRequest struct {
	Username string `json:"username"`
}

// TransferRequest is the payload for POST /patients/:id/transfer-ownership.
// Password is the current owner's, re-verified before the transfer runs.
type TransferRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func validateUploads(uploads []FileUpload) ([]File, error) {
	files := make([]File, 0, len(uploads))
	for _, up := range uploads {
		if strings.TrimSpace(up.Name) == "" {
			return nil, fmt.Errorf("file name is required")
		}
		if !ValidDataType(up.DataType) {
			return nil, fmt.Errorf("file %q: data type %q is not one of %s", up.Name, up.DataType, strings.Join(DataTypes, ", "))
		}
		files = append(files, File{
			ID:       uuid.New(),
			Name:     up.Name,
			DataType: up.DataType,
			Base64:   up.Base64,
			IpfsCID:  up.IpfsCID,
		})
	}
	return files, nil
}

func event(kind, by string) HistoryEvent {
	return HistoryEvent{EventType: kind, Timestamp: time.Now(), By: by}
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, ownerName string, req CreateRequest) (*Patient, error) {
	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	files, err := validateUploads(req.Content)
	if err != nil {
		return nil, err
	}

	history := []HistoryEvent{event(EventCreated, ownerName)}
	for _, f := range files {
		ev := event(EventFileAdded, ownerName)
		ev.FileName = f.Name
		history = append(history, ev)
	}

	p := &Patient{
		PatientID:  patientID,
		OwnerID:    ownerID,
		CreatedAt:  time.Now(),
		Content:    files,
		SharedWith: map[string][]uuid.UUID{},
		History:    history,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Detail assembles the full record view for GET /patients/:id. Non-owners see
// only the files they were granted; viewers with no grant see none.
func (s *Service) Detail(ctx context.Context, viewerID uuid.UUID, patientID string) (*Detail, error) {
	p, err := s.repo.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}

	owner, err := s.users.UserByID(ctx, p.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}

	sharedList := make([]SharedListEntry, 0, len(p.SharedWith))
	for userID, fileIDs := range p.SharedWith {
		id, err := uuid.Parse(userID)
		if err != nil {
			continue
		}
		ref, err := s.users.UserByID(ctx, id)
		if err != nil {
			// Grant holders that no longer resolve are skipped, not fatal.
			continue
		}
		sharedList = append(sharedList, SharedListEntry{User: *ref, Files: p.FilesByID(fileIDs)})
	}

	requests := make([]UserRef, 0, len(p.AccessRequests))
	for _, id := range p.AccessRequests {
		ref, err := s.users.UserByID(ctx, id)
		if err != nil {
			continue
		}
		requests = append(requests, *ref)
	}

	if viewerID != p.OwnerID {
		p.Content = p.VisibleContent(viewerID)
	}

	return &Detail{Patient: p, Owner: *owner, SharedList: sharedList, AccessRequests: requests}, nil
}

// List runs one paginated collection query. For the shared-with-me scope each
// record's content is pre-filtered to the viewer's granted files.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*Patient, int, error) {
	patients, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	if q.Scope == ScopeShared {
		for _, p := range patients {
			p.Content = p.VisibleContent(q.ViewerID)
		}
	}
	return patients, total, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) Recent(ctx context.Context, n int) ([]*Patient, error) {
	if n <= 0 {
		return nil, fmt.Errorf("recent count must be positive")
	}
	if n > s.recentCap {
		n = s.recentCap
	}
	return s.repo.Recent(ctx, n)
}

func (s *Service) requireOwner(ctx context.Context, actorID uuid.UUID, patientID string) (*Patient, error) {
	p, err := s.repo.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	return p, nil
}

func (s *Service) AddFiles(ctx context.Context, actorID uuid.UUID, actorName, patientID string, req AddFilesRequest) (*Patient, error) {
	if _, err := s.requireOwner(ctx, actorID, patientID); err != nil {
		return nil, err
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}
	files, err := validateUploads(req.Content)
	if err != nil {
		return nil, err
	}

	events := make([]HistoryEvent, 0, len(files))
	for _, f := range files {
		ev := event(EventFileAdded, actorName)
		ev.FileName = f.Name
		events = append(events, ev)
	}
	if err := s.repo.AddFiles(ctx, patientID, files, events); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

func (s *Service) EditFile(ctx context.Context, actorID uuid.UUID, actorName, patientID string, req EditFileRequest) (*Patient, error) {
	p, err := s.requireOwner(ctx, actorID, patientID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if !ValidDataType(req.DataType) {
		return nil, fmt.Errorf("data type %q is not one of %s", req.DataType, strings.Join(DataTypes, ", "))
	}
	if p.FileByID(req.FileID) == nil {
		return nil, fmt.Errorf("file not found on record")
	}

	ev := event(EventFileUpdated, actorName)
	ev.FileName = req.Name
	if err := s.repo.UpdateFile(ctx, patientID, req.FileID, req.Name, req.DataType, ev); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

func (s *Service) DeleteFiles(ctx context.Context, actorID uuid.UUID, actorName, patientID string, fileIDs []uuid.UUID) (*Patient, error) {
	p, err := s.requireOwner(ctx, actorID, patientID)
	if err != nil {
		return nil, err
	}
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("at least one file id is required")
	}

	events := make([]HistoryEvent, 0, len(fileIDs))
	for _, id := range fileIDs {
		f := p.FileByID(id)
		if f == nil {
			return nil, fmt.Errorf("file not found on record")
		}
		ev := event(EventFileRemoved, actorName)
		ev.FileName = f.Name
		events = append(events, ev)
	}
	if err := s.repo.RemoveFiles(ctx, patientID, fileIDs, events); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

// ShareFiles extends the recipient's grant with additional files (set union).
func (s *Service) ShareFiles(ctx context.Context, actorID uuid.UUID, actorName, patientID string, req ShareRequest) (*Patient, error) {
	p, err := s.requireOwner(ctx, actorID, patientID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.users.UserByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("user %q not found", req.Username)
	}
	if recipient.ID == p.OwnerID {
		return nil, fmt.Errorf("cannot share a record with its owner")
	}
	if len(req.FileIDs) == 0 {
		return nil, fmt.Errorf("at least one file id is required")
	}
	for _, id := range req.FileIDs {
		if p.FileByID(id) == nil {
			return nil, fmt.Errorf("file not found on record")
		}
	}

	merged := unionIDs(p.GrantFor(recipient.ID), req.FileIDs)
	ev := event(EventSharedWith, actorName)
	ev.With = recipient.Username
	if err := s.repo.SetGrant(ctx, patientID, recipient.ID, merged, false, []HistoryEvent{ev}); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

// ManageAccess replaces the recipient's grant outright. An empty file set
// revokes the grant; a grant created while the recipient had a pending access
// request counts as approval and removes the request atomically.
func (s *Service) ManageAccess(ctx context.Context, actorID uuid.UUID, actorName, patientID string, req ShareRequest) (*Patient, error) {
	p, err := s.requireOwner(ctx, actorID, patientID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.users.UserByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("user %q not found", req.Username)
	}
	if recipient.ID == p.OwnerID {
		return nil, fmt.Errorf("cannot manage access for the record owner")
	}
	for _, id := range req.FileIDs {
		if p.FileByID(id) == nil {
			return nil, fmt.Errorf("file not found on record")
		}
	}

	previous := p.GrantFor(recipient.ID)
	pending := p.HasRequest(recipient.ID)

	var ev HistoryEvent
	switch {
	case len(req.FileIDs) == 0 && len(previous) == 0:
		return nil, fmt.Errorf("user %q has no access to revoke", req.Username)
	case len(req.FileIDs) == 0:
		ev = event(EventRevokedAccess, actorName)
		ev.For = recipient.Username
	case pending:
		ev = event(EventGrantedAccess, actorName)
		ev.For = recipient.Username
	case len(previous) > 0 && isStrictSubset(req.FileIDs, previous):
		ev = event(EventUnsharedWith, actorName)
		ev.With = recipient.Username
	default:
		ev = event(EventSharedWith, actorName)
		ev.With = recipient.Username
	}

	if err := s.repo.SetGrant(ctx, patientID, recipient.ID, req.FileIDs, pending, []HistoryEvent{ev}); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

// RequestAccess records a non-owner's ask for visibility. Only records with
// no attached files are requestable, and a second request while one is
// pending is rejected rather than absorbed.
func (s *Service) RequestAccess(ctx context.Context, requesterID uuid.UUID, requesterName, patientID string) (*Patient, error) {
	p, err := s.repo.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == requesterID {
		return nil, fmt.Errorf("the record owner cannot request access")
	}
	if len(p.Content) > 0 {
		return nil, fmt.Errorf("access requests are only accepted on records with no attached files")
	}
	if p.HasRequest(requesterID) {
		return nil, ErrDuplicateRequest
	}

	if err := s.repo.AddAccessRequest(ctx, patientID, requesterID, event(EventRequestedAccess, requesterName)); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

func (s *Service) CancelRequest(ctx context.Context, requesterID uuid.UUID, requesterName, patientID string) (*Patient, error) {
	p, err := s.repo.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !p.HasRequest(requesterID) {
		return nil, ErrNoRequest
	}

	if err := s.repo.RemoveAccessRequest(ctx, patientID, requesterID, event(EventCancelledAccessRequest, requesterName)); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

func (s *Service) RejectAccessRequest(ctx context.Context, actorID uuid.UUID, actorName, patientID, username string) (*Patient, error) {
	p, err := s.requireOwner(ctx, actorID, patientID)
	if err != nil {
		return nil, err
	}
	requester, err := s.users.UserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("user %q not found", username)
	}
	if !p.HasRequest(requester.ID) {
		return nil, ErrNoRequest
	}

	ev := event(EventRejectedRequest, actorName)
	ev.For = requester.Username
	if err := s.repo.RemoveAccessRequest(ctx, patientID, requester.ID, ev); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

// TransferOwnership reassigns the record after re-verifying the current
// owner's password.
func (s *Service) TransferOwnership(ctx context.Context, actorID uuid.UUID, actorName, patientID string, req TransferRequest) (*Patient, error) {
	p, err := s.requireOwner(ctx, actorID, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.users.VerifyPassword(ctx, actorID, req.Password); err != nil {
		return nil, err
	}
	recipient, err := s.users.UserByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("user %q not found", req.Username)
	}
	if recipient.ID == p.OwnerID {
		return nil, fmt.Errorf("record is already owned by %q", req.Username)
	}

	ev := event(EventTransferredOwnership, actorName)
	ev.To = recipient.Username
	if err := s.repo.TransferOwnership(ctx, patientID, recipient.ID, ev); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, patientID)
}

func unionIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(a)+len(b))
	out := make([]uuid.UUID, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func isStrictSubset(sub, super []uuid.UUID) bool {
	if len(sub) >= len(super) {
		return false
	}
	in := make(map[uuid.UUID]bool, len(super))
	for _, id := range super {
		in[id] = true
	}
	for _, id := range sub {
		if !in[id] {
			return false
		}
	}
	return true
}
