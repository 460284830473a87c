package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medchain/medchain/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return NewHandler(newTestService(), issuer), echo.New()
}

func TestHandler_Register(t *testing.T) {
	h, e := newTestHandler(t)

	body := `{"username":"alice","password":"secret1","confirmPassword":"secret1","name":"Dr. Alice","healthcareType":"Hospital","organizationName":"General"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var resp struct {
		User  User   `json:"user"`
		Token string `json:"token"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.User.Username != "alice" {
		t.Errorf("expected alice, got %s", resp.User.Username)
	}
	if resp.User.Address != "" {
		t.Errorf("expected no linked address, got %q", resp.User.Address)
	}
	if resp.Token == "" {
		t.Error("expected a bearer token")
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Error("password hash must not be serialized")
	}
}

func TestHandler_Register_Duplicate(t *testing.T) {
	h, e := newTestHandler(t)

	body := `{"username":"alice","password":"secret1","confirmPassword":"secret1"}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := h.Register(c)
		if i == 0 && err != nil {
			t.Fatalf("first registration failed: %v", err)
		}
		if i == 1 {
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusConflict {
				t.Errorf("expected 409 for duplicate username, got %v", err)
			}
		}
	}
}

func TestHandler_Login_WrongPassword(t *testing.T) {
	h, e := newTestHandler(t)
	register(t, h.svc, "alice", "secret1")

	body := `{"username":"alice","password":"wrongpass"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Login(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h, e := newTestHandler(t)
	u := register(t, h.svc, "alice", "secret1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(string(auth.UserIDKey), u.ID)

	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		User User `json:"user"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.User.ID != u.ID {
		t.Errorf("expected user %s, got %s", u.ID, resp.User.ID)
	}
}

func TestHandler_Me_Unauthenticated(t *testing.T) {
	h, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Me(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_LinkUnlinkAddress(t *testing.T) {
	h, e := newTestHandler(t)
	u := register(t, h.svc, "alice", "secret1")

	body := `{"address":"0x8ba1f109551bd432803012645ac136ddd64dba72"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/linkAddress", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(string(auth.UserIDKey), u.ID)

	if err := h.LinkAddress(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		User User `json:"user"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.User.Address == "" {
		t.Error("expected linked address in response")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/users/unlinkAddress", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.Set(string(auth.UserIDKey), u.ID)

	if err := h.UnlinkAddress(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.User.Address != "" {
		t.Errorf("expected unlinked address, got %q", resp.User.Address)
	}
}
