package client

import (
	"encoding/base64"
	"testing"
)

func detailFixture() (*PatientDetail, *User, *User) {
	owner := &User{ID: "u-owner", Username: "alice"}
	other := &User{ID: "u-other", Username: "bob"}
	d := &PatientDetail{
		Patient: &Patient{
			PatientID: "PAT-001",
			OwnerID:   owner.ID,
			Content: []File{
				{ID: "f1", Name: "a.pdf", Base64: base64.StdEncoding.EncodeToString([]byte("alpha"))},
				{ID: "f2", Name: "b.pdf"},
				{ID: "f3", Name: "c.pdf"},
			},
		},
		Owner: *owner,
	}
	return d, owner, other
}

func TestDetailView_Unavailable(t *testing.T) {
	owner := &User{ID: "u-owner"}
	for _, v := range []*DetailView{
		NewDetailView(nil, owner),
		NewDetailView(&PatientDetail{}, owner),
	} {
		if !v.Unavailable() {
			t.Fatal("view should be unavailable")
		}
		// All derivations are suspended.
		if v.IsOwner() || v.CanRequestAccess() || v.CanCancelRequest() || v.CanAddFiles() {
			t.Error("derivation active on unavailable view")
		}
		v.ToggleSelect("f1")
		if v.SelectionCount() != 0 {
			t.Error("selection mutated on unavailable view")
		}
		if _, err := v.DecodeFile("f1"); err == nil {
			t.Error("decode succeeded on unavailable view")
		}
	}
}

func TestDetailView_SelectionByID(t *testing.T) {
	d, owner, _ := detailFixture()
	v := NewDetailView(d, owner)

	// Selection order does not matter; record order wins.
	v.ToggleSelect("f3")
	v.ToggleSelect("f1")
	got := v.SelectedFiles()
	if len(got) != 2 || got[0].ID != "f1" || got[1].ID != "f3" {
		t.Errorf("selected = %+v, want [f1 f3] in record order", got)
	}

	// Unknown ids are ignored.
	v.ToggleSelect("nope")
	if v.SelectionCount() != 2 {
		t.Error("unknown id changed the selection")
	}

	// Toggling again deselects.
	v.ToggleSelect("f3")
	if ids := v.SelectedIDs(); len(ids) != 1 || ids[0] != "f1" {
		t.Errorf("selected ids = %v", ids)
	}

	v.ClearSelection()
	if v.SelectionCount() != 0 {
		t.Error("selection survived ClearSelection")
	}
}

func TestDetailView_SelectionIgnoresRemovedFiles(t *testing.T) {
	d, owner, _ := detailFixture()
	v := NewDetailView(d, owner)
	v.ToggleSelect("f1")
	v.ToggleSelect("f2")

	// A file deleted server-side no longer counts, the remaining id still
	// points at the right file.
	d.Patient.Content = d.Patient.Content[1:]
	if got := v.SelectedFiles(); len(got) != 1 || got[0].ID != "f2" {
		t.Errorf("selected after removal = %+v, want [f2]", got)
	}
}

func TestDetailView_OwnerActions(t *testing.T) {
	d, owner, other := detailFixture()

	v := NewDetailView(d, owner)
	if !v.IsOwner() || !v.CanAddFiles() {
		t.Error("owner derivations wrong")
	}
	if v.CanEditFile() || v.CanDeleteFiles() || v.CanShareFiles() {
		t.Error("file actions available with empty selection")
	}
	v.ToggleSelect("f1")
	if !v.CanEditFile() || !v.CanDeleteFiles() || !v.CanShareFiles() {
		t.Error("file actions unavailable with one selection")
	}
	v.ToggleSelect("f2")
	if v.CanEditFile() {
		t.Error("edit available with two selections")
	}
	if !v.CanDeleteFiles() {
		t.Error("delete unavailable with two selections")
	}

	// Non-owners get none of the file actions.
	nv := NewDetailView(d, other)
	nv.ToggleSelect("f1")
	if nv.IsOwner() || nv.CanAddFiles() || nv.CanEditFile() || nv.CanDeleteFiles() || nv.CanShareFiles() {
		t.Error("file actions leaked to a non-owner")
	}
}

func TestDetailView_AccessRequestDerivations(t *testing.T) {
	owner := &User{ID: "u-owner", Username: "alice"}
	other := &User{ID: "u-other", Username: "bob"}
	empty := &PatientDetail{
		Patient: &Patient{PatientID: "PAT-E", OwnerID: owner.ID},
		Owner:   *owner,
	}

	// Non-owner, zero files, nothing pending: requestable.
	v := NewDetailView(empty, other)
	if !v.CanRequestAccess() || v.CanCancelRequest() {
		t.Error("fresh empty record should be requestable")
	}

	// Pending request flips both.
	empty.AccessRequests = []User{*other}
	v = NewDetailView(empty, other)
	if v.CanRequestAccess() || !v.CanCancelRequest() {
		t.Error("pending request derivations wrong")
	}

	// The owner can do neither.
	v = NewDetailView(empty, owner)
	if v.CanRequestAccess() || v.CanCancelRequest() {
		t.Error("owner offered request actions")
	}

	// Records with files are never requestable.
	d, _, otherUser := detailFixture()
	v = NewDetailView(d, otherUser)
	if v.CanRequestAccess() {
		t.Error("record with files requestable")
	}

	// Logged-out viewers get nothing.
	v = NewDetailView(empty, nil)
	if v.CanRequestAccess() || v.CanCancelRequest() || v.IsOwner() {
		t.Error("derivations active without a session user")
	}
}

func TestDetailView_DecodeFile(t *testing.T) {
	d, owner, _ := detailFixture()
	v := NewDetailView(d, owner)

	data, err := v.DecodeFile("f1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "alpha" {
		t.Errorf("decoded = %q", data)
	}
	if _, err := v.DecodeFile("nope"); err == nil {
		t.Error("unknown file decoded")
	}
}
