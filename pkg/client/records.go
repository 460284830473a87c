package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Collection names for the three patient lists.
const (
	CollectionAll    = "patients"
	CollectionMine   = "my-patients"
	CollectionShared = "shared-with-me"
)

// ListParams is the full parameter tuple of a collection fetch. Every field
// is part of the cache key.
type ListParams struct {
	Page      int
	Limit     int
	Filter    string
	SortBy    string
	SortOrder string
}

// WithDefaults fills unset fields with the server defaults so equivalent
// queries share one cache key.
func (p ListParams) WithDefaults() ListParams {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Limit <= 0 {
		p.Limit = 15
	}
	if p.SortBy == "" {
		p.SortBy = "createdAt"
	}
	if p.SortOrder == "" {
		p.SortOrder = "desc"
	}
	return p
}

func (p ListParams) encode() string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("limit", strconv.Itoa(p.Limit))
	if p.Filter != "" {
		q.Set("filter", p.Filter)
	}
	q.Set("sortBy", p.SortBy)
	q.Set("sortOrder", p.SortOrder)
	return q.Encode()
}

func collectionPath(collection string) (string, error) {
	switch collection {
	case CollectionAll:
		return "/patients", nil
	case CollectionMine:
		return "/patients/my-patients", nil
	case CollectionShared:
		return "/patients/shared-with-me", nil
	default:
		return "", fmt.Errorf("unknown collection %q", collection)
	}
}

// Patients fetches one page of a patient collection.
func (c *Client) Patients(ctx context.Context, collection string, p ListParams) (*PatientPage, error) {
	path, err := collectionPath(collection)
	if err != nil {
		return nil, err
	}
	p = p.WithDefaults()
	var page PatientPage
	if err := c.query(ctx, path+"?"+p.encode(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Patient fetches a single record with owner, share list and access requests.
func (c *Client) Patient(ctx context.Context, patientID string) (*PatientDetail, error) {
	var d PatientDetail
	if err := c.query(ctx, "/patients/"+url.PathEscape(patientID), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PatientCount returns the total number of records in the system.
func (c *Client) PatientCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.query(ctx, "/patients/count", &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// RecentPatients returns the n most recently created records.
func (c *Client) RecentPatients(ctx context.Context, n int) ([]Patient, error) {
	var resp struct {
		Patients []Patient `json:"patients"`
	}
	if err := c.query(ctx, "/patients/recent/"+strconv.Itoa(n), &resp); err != nil {
		return nil, err
	}
	return resp.Patients, nil
}

// FileUpload is one encoded file in a create or add-files payload.
type FileUpload struct {
	Base64   string `json:"base64"`
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	IpfsCID  string `json:"ipfsCID"`
}

type patientEnvelope struct {
	Patient *Patient `json:"patient"`
}

func (c *Client) patientMutation(ctx context.Context, method, path string, body interface{}) (*Patient, error) {
	var env patientEnvelope
	if err := c.mutate(ctx, method, path, body, &env); err != nil {
		return nil, err
	}
	return env.Patient, nil
}

// CreatePatient registers a new record owned by the session user.
func (c *Client) CreatePatient(ctx context.Context, patientID string, content []FileUpload) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodPost, "/patients", map[string]interface{}{
		"patient_id": patientID,
		"content":    content,
	})
}

// AddFiles attaches files to a record the session user owns.
func (c *Client) AddFiles(ctx context.Context, patientID string, content []FileUpload) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodPost, patientPath(patientID, "add-files"), map[string]interface{}{
		"content": content,
	})
}

// EditFile renames or reclassifies a single attachment.
func (c *Client) EditFile(ctx context.Context, patientID, fileID, name, dataType string) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodPost, patientPath(patientID, "edit-file"), map[string]interface{}{
		"fileId":   fileID,
		"name":     name,
		"dataType": dataType,
	})
}

// DeleteFiles removes attachments; the server also drops them from any
// share grant that referenced them.
func (c *Client) DeleteFiles(ctx context.Context, patientID string, fileIDs []string) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodDelete, patientPath(patientID, "delete-files"), map[string]interface{}{
		"fileIds": fileIDs,
	})
}

// ShareFiles extends username's grant on the record with the given files.
func (c *Client) ShareFiles(ctx context.Context, patientID, username string, fileIDs []string) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodPost, patientPath(patientID, "share-files"), map[string]interface{}{
		"username": username,
		"fileIds":  fileIDs,
	})
}

// ManageAccess replaces username's grant outright; an empty file list
// revokes it.
func (c *Client) ManageAccess(ctx context.Context, patientID, username string, fileIDs []string) (*Patient, error) {
	if fileIDs == nil {
		fileIDs = []string{}
	}
	return c.patientMutation(ctx, http.MethodPost, patientPath(patientID, "manage-access"), map[string]interface{}{
		"username": username,
		"fileIds":  fileIDs,
	})
}

// RequestAccess asks the owner for visibility on a record with no files.
func (c *Client) RequestAccess(ctx context.Context, patientID string) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodPost, patientPath(patientID, "request-access"), nil)
}

// CancelAccessRequest withdraws the session user's pending request.
func (c *Client) CancelAccessRequest(ctx context.Context, patientID string) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodPost, patientPath(patientID, "cancel-access-request"), nil)
}

// RejectAccessRequest declines username's pending request on an owned record.
func (c *Client) RejectAccessRequest(ctx context.Context, patientID, username string) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodPost, patientPath(patientID, "reject-access-request"), map[string]interface{}{
		"username": username,
	})
}

// TransferOwnership hands the record to username after re-verifying the
// session user's password.
func (c *Client) TransferOwnership(ctx context.Context, patientID, username, password string) (*Patient, error) {
	return c.patientMutation(ctx, http.MethodPost, patientPath(patientID, "transfer-ownership"), map[string]interface{}{
		"username": username,
		"password": password,
	})
}

func patientPath(patientID, action string) string {
	return "/patients/" + url.PathEscape(patientID) + "/" + action
}
