package client

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// DetailView derives everything the record detail surface needs from the
// fetched detail, the session user and the current file selection. All
// derivations are pure reads; the only state it owns is the selection, keyed
// by file id so it survives reordering and deletion of other files.
//
// A view built from a failed or empty load is terminally unavailable: every
// derivation is suspended and selection calls are no-ops.
type DetailView struct {
	detail *PatientDetail
	viewer *User

	mu       sync.Mutex
	selected map[string]bool
}

// NewDetailView builds a view over a fetched detail. detail may be nil (or
// hold no patient) when the load failed; viewer may be nil when logged out.
func NewDetailView(detail *PatientDetail, viewer *User) *DetailView {
	if detail == nil || detail.Patient == nil {
		detail = nil
	}
	return &DetailView{
		detail:   detail,
		viewer:   viewer,
		selected: make(map[string]bool),
	}
}

// Unavailable reports whether the record could not be loaded.
func (v *DetailView) Unavailable() bool {
	return v.detail == nil
}

// Patient returns the underlying record, or nil when unavailable.
func (v *DetailView) Patient() *Patient {
	if v.detail == nil {
		return nil
	}
	return v.detail.Patient
}

// IsOwner reports whether the session user owns the record.
func (v *DetailView) IsOwner() bool {
	if v.detail == nil || v.viewer == nil {
		return false
	}
	return v.detail.Patient.OwnerID == v.viewer.ID
}

// ToggleSelect flips the selection state of a file. Unknown ids and
// unavailable views are no-ops.
func (v *DetailView) ToggleSelect(fileID string) {
	if v.detail == nil || v.fileByID(fileID) == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selected[fileID] {
		delete(v.selected, fileID)
	} else {
		v.selected[fileID] = true
	}
}

// Selected reports whether the file is selected.
func (v *DetailView) Selected(fileID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected[fileID]
}

// ClearSelection drops the whole selection. Mutations register this as their
// success hook.
func (v *DetailView) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = make(map[string]bool)
}

// SelectedFiles returns the selected files in record order.
func (v *DetailView) SelectedFiles() []File {
	if v.detail == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []File
	for _, f := range v.detail.Patient.Content {
		if v.selected[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// SelectedIDs returns the selected file ids in record order.
func (v *DetailView) SelectedIDs() []string {
	var ids []string
	for _, f := range v.SelectedFiles() {
		ids = append(ids, f.ID)
	}
	return ids
}

// SelectionCount returns the number of selected files still on the record.
func (v *DetailView) SelectionCount() int {
	return len(v.SelectedFiles())
}

// CanRequestAccess holds for a non-owner looking at a record with no files
// and no request of theirs already pending.
func (v *DetailView) CanRequestAccess() bool {
	if v.detail == nil || v.viewer == nil || v.IsOwner() {
		return false
	}
	if len(v.detail.Patient.Content) > 0 {
		return false
	}
	return !v.hasPendingRequest()
}

// CanCancelRequest holds while the session user's access request is pending.
func (v *DetailView) CanCancelRequest() bool {
	if v.detail == nil || v.viewer == nil || v.IsOwner() {
		return false
	}
	return v.hasPendingRequest()
}

// CanAddFiles holds for the owner.
func (v *DetailView) CanAddFiles() bool {
	return v.IsOwner()
}

// CanEditFile holds for the owner with exactly one file selected.
func (v *DetailView) CanEditFile() bool {
	return v.IsOwner() && v.SelectionCount() == 1
}

// CanDeleteFiles holds for the owner with at least one file selected.
func (v *DetailView) CanDeleteFiles() bool {
	return v.IsOwner() && v.SelectionCount() > 0
}

// CanShareFiles holds for the owner with at least one file selected.
func (v *DetailView) CanShareFiles() bool {
	return v.IsOwner() && v.SelectionCount() > 0
}

// CanManageAccess holds for the owner whenever anyone holds a grant or has a
// request pending.
func (v *DetailView) CanManageAccess() bool {
	if !v.IsOwner() {
		return false
	}
	return len(v.detail.SharedList) > 0 || len(v.detail.AccessRequests) > 0
}

// DecodeFile returns the raw bytes of an attached file for download or
// preview.
func (v *DetailView) DecodeFile(fileID string) ([]byte, error) {
	if v.detail == nil {
		return nil, fmt.Errorf("record is unavailable")
	}
	f := v.fileByID(fileID)
	if f == nil {
		return nil, fmt.Errorf("file not found on record")
	}
	data, err := base64.StdEncoding.DecodeString(f.Base64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return data, nil
}

func (v *DetailView) fileByID(fileID string) *File {
	for i := range v.detail.Patient.Content {
		if v.detail.Patient.Content[i].ID == fileID {
			return &v.detail.Patient.Content[i]
		}
	}
	return nil
}

func (v *DetailView) hasPendingRequest() bool {
	for _, u := range v.detail.AccessRequests {
		if u.ID == v.viewer.ID {
			return true
		}
	}
	return false
}
