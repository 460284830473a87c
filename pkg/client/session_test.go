package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newAuthServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/users/login", "/api/v1/users/register":
			_ = json.NewEncoder(w).Encode(AuthResponse{
				User:  User{ID: "u1", Username: "alice"},
				Token: "tok-abc",
			})
		case "/api/v1/users/me":
			if r.Header.Get("Authorization") != "Bearer tok-abc" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"invalid token"}`))
				return
			}
			_, _ = w.Write([]byte(`{"user":{"_id":"u1","username":"alice"}}`))
		case "/api/v1/users/linkAddress":
			_, _ = w.Write([]byte(`{"user":{"_id":"u1","username":"alice","address":"0x8ba1f109551bD432803012645Ac136ddd64DBA72"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSession_ClientSideValidationSkipsRoundTrip(t *testing.T) {
	srv, hits := newAuthServer(t)
	s := NewSession(New(srv.URL), NewMemoryTokenStore())

	cases := []struct {
		name string
		run  func() error
	}{
		{"short username", func() error {
			_, err := s.Login(context.Background(), "a", "secret123")
			return err
		}},
		{"short password", func() error {
			_, err := s.Login(context.Background(), "alice", "short")
			return err
		}},
		{"password mismatch", func() error {
			_, err := s.Register(context.Background(), RegisterParams{
				Username: "alice", Password: "secret123", ConfirmPassword: "different",
			})
			return err
		}},
	}
	for _, tc := range cases {
		if err := tc.run(); err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
	if got := atomic.LoadInt32(hits); got != 0 {
		t.Errorf("server hits = %d, want validation to fail locally", got)
	}
}

func TestSession_LoginAndLogout(t *testing.T) {
	srv, _ := newAuthServer(t)
	c := New(srv.URL)
	store := NewMemoryTokenStore()
	s := NewSession(c, store)

	u, err := s.Login(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" || !s.Authenticated() {
		t.Errorf("session user = %+v", u)
	}
	if c.Token() != "tok-abc" {
		t.Errorf("client token = %q", c.Token())
	}
	if tok, err := store.Load(); err != nil || tok != "tok-abc" {
		t.Errorf("stored token = %q, %v", tok, err)
	}

	// Logout clears everything without a round-trip.
	s.Logout()
	if s.Authenticated() || c.Token() != "" {
		t.Error("session survived logout")
	}
	if _, err := store.Load(); err != ErrNoToken {
		t.Errorf("store after logout: %v, want ErrNoToken", err)
	}
}

func TestSession_Resume(t *testing.T) {
	srv, _ := newAuthServer(t)
	store := NewMemoryTokenStore()

	// No stored token.
	s := NewSession(New(srv.URL), store)
	if _, err := s.Resume(context.Background()); err != ErrNoToken {
		t.Errorf("resume without token: %v, want ErrNoToken", err)
	}

	// Valid stored token restores the user.
	_ = store.Save("tok-abc")
	u, err := s.Resume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" {
		t.Errorf("resumed user = %+v", u)
	}

	// A rejected token is cleared.
	_ = store.Save("tok-bad")
	if _, err := s.Resume(context.Background()); err == nil {
		t.Fatal("bad token accepted")
	}
	if _, err := store.Load(); err != ErrNoToken {
		t.Error("rejected token left in store")
	}
}

func TestSession_LinkAddress(t *testing.T) {
	srv, hits := newAuthServer(t)
	s := NewSession(New(srv.URL), NewMemoryTokenStore())

	// Requires a session.
	if _, err := s.LinkAddress(context.Background(), "0x8ba1f109551bD432803012645Ac136ddd64DBA72"); err != ErrNotAuthenticated {
		t.Errorf("link without session: %v, want ErrNotAuthenticated", err)
	}

	if _, err := s.Login(context.Background(), "alice", "secret123"); err != nil {
		t.Fatal(err)
	}
	before := atomic.LoadInt32(hits)

	// Invalid addresses are rejected locally.
	if _, err := s.LinkAddress(context.Background(), "not-an-address"); err == nil {
		t.Error("invalid address accepted")
	}
	if atomic.LoadInt32(hits) != before {
		t.Error("invalid address reached the server")
	}

	u, err := s.LinkAddress(context.Background(), "0x8ba1f109551bD432803012645Ac136ddd64DBA72")
	if err != nil {
		t.Fatal(err)
	}
	if u.Address == "" {
		t.Error("session user missing linked address")
	}
}
