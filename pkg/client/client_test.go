package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestClient_APIErrorVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"patient id already exists"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.CreatePatient(context.Background(), "PAT-001", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "patient id already exists" {
		t.Errorf("apiErr = %+v, want 409 with the server's message verbatim", apiErr)
	}
}

func TestClient_QueryRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.PatientCount(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("server hits = %d, want 1 attempt + 2 retries", got)
	}
}

func TestClient_LoggerObservesRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	c := New(srv.URL, WithLogger(zerolog.New(&buf)))
	if _, err := c.PatientCount(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	log := buf.String()
	if !strings.Contains(log, "query failed, retrying") {
		t.Errorf("log missing retry events: %s", log)
	}
	if !strings.Contains(log, "query retries exhausted") {
		t.Errorf("log missing final failure: %s", log)
	}
	if !strings.Contains(log, `"path":"/patients/count"`) {
		t.Errorf("log missing request path: %s", log)
	}
}

func TestClient_QueryDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"patient record not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Patient(context.Background(), "nope"); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want no retry on 404", got)
	}
}

func TestClient_MutationsAreNeverRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.RequestAccess(context.Background(), "PAT-001"); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want exactly one attempt", got)
	}
}

func TestClient_BearerCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":0}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken("tok-123")
	if _, err := c.PatientCount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	c.ClearToken()
	if _, err := c.PatientCount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization after ClearToken = %q, want empty", gotAuth)
	}
}

func TestClient_RequestPaths(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"patients":[],"totalCount":0}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Patients(context.Background(), CollectionShared, ListParams{Page: 2, Filter: "PAT"}); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/v1/patients/shared-with-me" {
		t.Errorf("path = %q", gotPath)
	}
	for _, want := range []string{"page=2", "limit=15", "filter=PAT", "sortBy=createdAt", "sortOrder=desc"} {
		if !containsParam(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}

	if _, err := c.Patients(context.Background(), "bogus", ListParams{}); err == nil {
		t.Error("unknown collection accepted")
	}
}

func containsParam(query, param string) bool {
	for _, part := range splitQuery(query) {
		if part == param {
			return true
		}
	}
	return false
}

func splitQuery(query string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(query); i++ {
		if i == len(query) || query[i] == '&' {
			parts = append(parts, query[start:i])
			start = i + 1
		}
	}
	return parts
}
