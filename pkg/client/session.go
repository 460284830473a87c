package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotAuthenticated is returned by session operations that need a logged-in
// user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Session holds at most one authenticated user. Login and Register validate
// input locally before any round-trip; Logout never performs one.
type Session struct {
	client *Client
	store  TokenStore

	mu   sync.RWMutex
	user *User
}

func NewSession(c *Client, store TokenStore) *Session {
	return &Session{client: c, store: store}
}

// User returns the session user, or nil when logged out.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Authenticated reports whether a user is logged in.
func (s *Session) Authenticated() bool {
	return s.User() != nil
}

// RegisterParams is the input to Register.
type RegisterParams struct {
	Username         string
	Password         string
	ConfirmPassword  string
	Name             string
	HealthcareType   string
	OrganizationName string
}

func validateCredentials(username, password string) error {
	if len(strings.TrimSpace(username)) < 2 {
		return fmt.Errorf("username must be at least 2 characters")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}

// Register creates an account and opens a session for it.
func (s *Session) Register(ctx context.Context, p RegisterParams) (*User, error) {
	if err := validateCredentials(p.Username, p.Password); err != nil {
		return nil, err
	}
	if p.Password != p.ConfirmPassword {
		return nil, fmt.Errorf("passwords do not match")
	}

	var resp AuthResponse
	err := s.client.mutate(ctx, http.MethodPost, "/users/register", map[string]string{
		"username":         p.Username,
		"password":         p.Password,
		"confirmPassword":  p.ConfirmPassword,
		"name":             p.Name,
		"healthcareType":   p.HealthcareType,
		"organizationName": p.OrganizationName,
	}, &resp)
	if err != nil {
		return nil, err
	}
	s.open(resp)
	return s.User(), nil
}

// Login authenticates and opens a session.
func (s *Session) Login(ctx context.Context, username, password string) (*User, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	var resp AuthResponse
	err := s.client.mutate(ctx, http.MethodPost, "/users/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	s.open(resp)
	return s.User(), nil
}

// Resume restores a session from the token store, validating the credential
// against the server.
func (s *Session) Resume(ctx context.Context) (*User, error) {
	token, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	s.client.SetToken(token)

	var resp struct {
		User User `json:"user"`
	}
	if err := s.client.query(ctx, "/users/me", &resp); err != nil {
		// A rejected credential is cleared so the next Resume starts clean.
		s.Logout()
		return nil, err
	}
	s.setUser(resp.User)
	return s.User(), nil
}

// Logout clears the credential and session user unconditionally, with no
// server round-trip.
func (s *Session) Logout() {
	s.client.ClearToken()
	_ = s.store.Clear()
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}

// UpdateDetailsParams carries partial profile updates; nil fields are left
// unchanged.
type UpdateDetailsParams struct {
	Name             *string
	HealthcareType   *string
	OrganizationName *string
}

// UpdateDetails patches the session user's profile.
func (s *Session) UpdateDetails(ctx context.Context, p UpdateDetailsParams) (*User, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	body := map[string]interface{}{}
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.HealthcareType != nil {
		body["healthcareType"] = *p.HealthcareType
	}
	if p.OrganizationName != nil {
		body["organizationName"] = *p.OrganizationName
	}

	var resp struct {
		User User `json:"user"`
	}
	if err := s.client.mutate(ctx, http.MethodPatch, "/users/updateDetails", body, &resp); err != nil {
		return nil, err
	}
	s.setUser(resp.User)
	return s.User(), nil
}

// LinkAddress attaches a wallet address to the session user. The address is
// checked locally before the round-trip.
func (s *Session) LinkAddress(ctx context.Context, address string) (*User, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%q is not a valid wallet address", address)
	}

	var resp struct {
		User User `json:"user"`
	}
	err := s.client.mutate(ctx, http.MethodPost, "/users/linkAddress", map[string]string{
		"address": address,
	}, &resp)
	if err != nil {
		return nil, err
	}
	s.setUser(resp.User)
	return s.User(), nil
}

// UnlinkAddress detaches the session user's wallet address.
func (s *Session) UnlinkAddress(ctx context.Context) (*User, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	var resp struct {
		User User `json:"user"`
	}
	if err := s.client.mutate(ctx, http.MethodPost, "/users/unlinkAddress", nil, &resp); err != nil {
		return nil, err
	}
	s.setUser(resp.User)
	return s.User(), nil
}

func (s *Session) open(resp AuthResponse) {
	s.client.SetToken(resp.Token)
	_ = s.store.Save(resp.Token)
	s.setUser(resp.User)
}

func (s *Session) setUser(u User) {
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
}
