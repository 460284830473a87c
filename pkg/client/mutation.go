package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Mutation lifecycle states.
type MutationState int

const (
	// MutationClosed is the idle state.
	MutationClosed MutationState = iota
	// MutationOpen means the action's form is open and may be submitted.
	MutationOpen
	// MutationSubmitting means a request is in flight.
	MutationSubmitting
	// MutationError means the last submit failed; Err holds the server
	// message. Begin clears it.
	MutationError
)

// ErrSubmitInFlight is returned when Submit or Begin is called while a
// request is running.
var ErrSubmitInFlight = errors.New("mutation already in flight")

// ErrNotOpen is returned by Submit when the mutation was never opened.
var ErrNotOpen = errors.New("mutation is not open")

// Mutation is a single-flight state machine for one user-facing action:
// closed -> open -> submitting -> closed on success or error on failure.
// Success invalidates the declared cache key families and runs the success
// hook (used to clear tied selection state).
type Mutation struct {
	mu          sync.Mutex
	state       MutationState
	err         error
	cache       Cache
	invalidates []string
	onSuccess   func()
	log         zerolog.Logger
}

// NewMutation declares a mutation and the cache key prefixes it invalidates
// on success. cache may be nil when the action touches no cached queries.
func NewMutation(cache Cache, invalidates ...string) *Mutation {
	return &Mutation{cache: cache, invalidates: invalidates, log: zerolog.Nop()}
}

// WithLogger sets the logger for submit and invalidation diagnostics.
func (m *Mutation) WithLogger(l zerolog.Logger) *Mutation {
	m.mu.Lock()
	m.log = l
	m.mu.Unlock()
	return m
}

// OnSuccess registers a hook run after a successful submit, before the
// mutation closes.
func (m *Mutation) OnSuccess(fn func()) {
	m.mu.Lock()
	m.onSuccess = fn
	m.mu.Unlock()
}

// State returns the current lifecycle state.
func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the retained failure, if the mutation is in MutationError.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Begin opens the mutation, clearing any prior error.
func (m *Mutation) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MutationSubmitting {
		return ErrSubmitInFlight
	}
	m.state = MutationOpen
	m.err = nil
	return nil
}

// Cancel closes an open mutation without submitting. An in-flight submit
// cannot be cancelled.
func (m *Mutation) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MutationSubmitting {
		return ErrSubmitInFlight
	}
	m.state = MutationClosed
	m.err = nil
	return nil
}

// Submit runs fn exactly once. A second Submit while one is in flight is
// refused rather than queued.
func (m *Mutation) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	switch m.state {
	case MutationSubmitting:
		m.mu.Unlock()
		return ErrSubmitInFlight
	case MutationOpen:
	default:
		m.mu.Unlock()
		return ErrNotOpen
	}
	m.state = MutationSubmitting
	onSuccess := m.onSuccess
	m.mu.Unlock()

	err := fn(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = MutationError
		m.err = err
		m.log.Error().Err(err).Msg("mutation submit failed")
		return err
	}
	if m.cache != nil {
		for _, prefix := range m.invalidates {
			m.cache.Invalidate(prefix)
			m.log.Debug().Str("prefix", prefix).Msg("cache invalidated")
		}
	}
	if onSuccess != nil {
		onSuccess()
	}
	m.state = MutationClosed
	m.err = nil
	return nil
}

// DataTypes is the fixed classification set for uploads, mirrored from the
// server.
var DataTypes = []string{"Lab results", "Medical images", "Medication history", "Clinician notes"}

// UploadEntry is one local file staged for upload.
type UploadEntry struct {
	Name     string
	DataType string
	Data     []byte
}

// FieldError ties a validation message to the file it concerns.
type FieldError struct {
	File    string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// UploadForm stages local files for a create or add-files mutation.
type UploadForm struct {
	entries []UploadEntry
}

// Add stages a file. The data type starts unset and must be assigned before
// the form encodes.
func (f *UploadForm) Add(name string, data []byte) {
	f.entries = append(f.entries, UploadEntry{Name: name, Data: data})
}

// SetDataType assigns a classification to the staged file at index i.
func (f *UploadForm) SetDataType(i int, dataType string) error {
	if i < 0 || i >= len(f.entries) {
		return fmt.Errorf("no staged file at index %d", i)
	}
	valid := false
	for _, dt := range DataTypes {
		if dt == dataType {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("data type %q is not allowed", dataType)
	}
	f.entries[i].DataType = dataType
	return nil
}

// Entries returns the staged files.
func (f *UploadForm) Entries() []UploadEntry {
	return f.entries
}

// FieldErrors returns one error per staged file still lacking a data type.
func (f *UploadForm) FieldErrors() []FieldError {
	var errs []FieldError
	for _, e := range f.entries {
		if e.DataType == "" {
			errs = append(errs, FieldError{File: e.Name, Message: "data type is required"})
		}
	}
	return errs
}

// Encode converts the staged files into upload payloads: content is
// base64-encoded and each file gets a fresh correlation id. Encoding is
// refused while any file lacks a data type.
func (f *UploadForm) Encode() ([]FileUpload, error) {
	if errs := f.FieldErrors(); len(errs) > 0 {
		return nil, &errs[0]
	}
	uploads := make([]FileUpload, 0, len(f.entries))
	for _, e := range f.entries {
		uploads = append(uploads, FileUpload{
			Name:     e.Name,
			DataType: e.DataType,
			Base64:   base64.StdEncoding.EncodeToString(e.Data),
			IpfsCID:  uuid.NewString(),
		})
	}
	return uploads, nil
}
