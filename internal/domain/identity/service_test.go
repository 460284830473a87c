package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock User Repository --

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return ErrDuplicateUsername
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	m.users[u.ID] = u
	return nil
}

func newTestService() *Service {
	return NewService(newMockUserRepo())
}

func register(t *testing.T, svc *Service, username, password string) *User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterRequest{
		Username:        username,
		Password:        password,
		ConfirmPassword: password,
		Name:            "Dr. " + username,
		HealthcareType:  "Hospital",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

func TestService_Register(t *testing.T) {
	svc := newTestService()
	u := register(t, svc, "alice", "secret1")

	if u.ID == uuid.Nil {
		t.Error("expected an assigned id")
	}
	if u.Address != "" {
		t.Errorf("expected no linked address after registration, got %q", u.Address)
	}
	if u.PasswordHash == "secret1" {
		t.Error("password must not be stored in the clear")
	}
}

func TestService_Register_Validation(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"short username", RegisterRequest{Username: "a", Password: "secret1", ConfirmPassword: "secret1"}},
		{"short password", RegisterRequest{Username: "alice", Password: "12345", ConfirmPassword: "12345"}},
		{"confirm mismatch", RegisterRequest{Username: "alice", Password: "secret1", ConfirmPassword: "secret2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestService_Register_Duplicate(t *testing.T) {
	svc := newTestService()
	register(t, svc, "alice", "secret1")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "alice", Password: "secret2", ConfirmPassword: "secret2",
	})
	if err != ErrDuplicateUsername {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestService_Login(t *testing.T) {
	svc := newTestService()
	register(t, svc, "alice", "secret1")

	u, err := svc.Login(context.Background(), "alice", "secret1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("expected alice, got %s", u.Username)
	}

	if _, err := svc.Login(context.Background(), "alice", "wrongpass"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "mallory", "secret1"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestService_VerifyPassword(t *testing.T) {
	svc := newTestService()
	u := register(t, svc, "alice", "secret1")

	if err := svc.VerifyPassword(context.Background(), u.ID, "secret1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := svc.VerifyPassword(context.Background(), u.ID, "nope"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestService_UpdateDetails(t *testing.T) {
	svc := newTestService()
	u := register(t, svc, "alice", "secret1")

	name := "Dr. Alice Walker"
	org := "General Hospital"
	updated, err := svc.UpdateDetails(context.Background(), u.ID, UpdateDetailsRequest{Name: &name, OrganizationName: &org})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != name || updated.OrganizationName != org {
		t.Errorf("details not applied: %+v", updated)
	}
	// Untouched fields survive.
	if updated.HealthcareType != "Hospital" {
		t.Errorf("expected healthcare type to survive, got %q", updated.HealthcareType)
	}
}

func TestService_LinkAddress(t *testing.T) {
	svc := newTestService()
	u := register(t, svc, "alice", "secret1")

	addr := "0x8ba1f109551bd432803012645ac136ddd64dba72"
	updated, err := svc.LinkAddress(context.Background(), u.ID, addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.EqualFold(updated.Address, addr) {
		t.Errorf("expected address %s, got %s", addr, updated.Address)
	}

	// Linking again replaces the previous address.
	addr2 := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	updated, err = svc.LinkAddress(context.Background(), u.ID, addr2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.EqualFold(updated.Address, addr2) {
		t.Errorf("expected address %s, got %s", addr2, updated.Address)
	}
}

func TestService_LinkAddress_Invalid(t *testing.T) {
	svc := newTestService()
	u := register(t, svc, "alice", "secret1")

	for _, addr := range []string{"", "not-an-address", "0x123"} {
		if _, err := svc.LinkAddress(context.Background(), u.ID, addr); err == nil {
			t.Errorf("expected error for address %q", addr)
		}
	}
}

func TestService_UnlinkAddress(t *testing.T) {
	svc := newTestService()
	u := register(t, svc, "alice", "secret1")

	if _, err := svc.LinkAddress(context.Background(), u.ID, "0x8ba1f109551bd432803012645ac136ddd64dba72"); err != nil {
		t.Fatalf("link: %v", err)
	}
	updated, err := svc.UnlinkAddress(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Address != "" {
		t.Errorf("expected empty address, got %q", updated.Address)
	}
}
