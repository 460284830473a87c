// Package wallet models the browser wallet as an injected capability. The
// rest of the SDK never assumes a wallet exists: a missing provider degrades
// to "wallet features unavailable" instead of failing.
package wallet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnavailable is returned by operations that need a provider when none
// was injected.
var ErrUnavailable = errors.New("wallet features unavailable")

// State is the detected wallet condition.
type State int

const (
	// StateUnavailable means no provider is present.
	StateUnavailable State = iota
	// StateDisconnected means a provider exists but no account is exposed.
	StateDisconnected
	// StateConnected means a provider exposes an account.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unavailable"
	}
}

// Status pairs a state with the connected address, if any.
type Status struct {
	State   State
	Address string
}

// Provider is the wallet capability. Implementations wrap whatever bridge
// exposes accounts to the process.
type Provider interface {
	// Status reports the current connection state.
	Status(ctx context.Context) (Status, error)
	// Connect prompts for an account and returns its address.
	Connect(ctx context.Context) (string, error)
	// Subscribe registers an account-change callback and returns an
	// unsubscribe function. An empty address means disconnected.
	Subscribe(fn func(address string)) (unsubscribe func())
}

// Manager wraps an optional Provider. A nil provider is valid and yields
// StateUnavailable everywhere.
type Manager struct {
	provider Provider
}

func NewManager(p Provider) *Manager {
	return &Manager{provider: p}
}

// Available reports whether a provider was injected.
func (m *Manager) Available() bool {
	return m.provider != nil
}

// Status never fails: provider absence and provider errors both collapse to
// StateUnavailable.
func (m *Manager) Status(ctx context.Context) Status {
	if m.provider == nil {
		return Status{State: StateUnavailable}
	}
	st, err := m.provider.Status(ctx)
	if err != nil {
		return Status{State: StateUnavailable}
	}
	return st
}

// Connect asks the provider for an account.
func (m *Manager) Connect(ctx context.Context) (string, error) {
	if m.provider == nil {
		return "", ErrUnavailable
	}
	addr, err := m.provider.Connect(ctx)
	if err != nil {
		return "", err
	}
	if !common.IsHexAddress(addr) {
		return "", errors.New("provider returned an invalid address")
	}
	return common.HexToAddress(addr).Hex(), nil
}

// Subscribe registers an account-change callback. Without a provider the
// callback never fires and the returned unsubscribe is a no-op.
func (m *Manager) Subscribe(fn func(address string)) func() {
	if m.provider == nil {
		return func() {}
	}
	return m.provider.Subscribe(fn)
}

// ShortenAddress renders an address as 0x1234...abcd for display. Anything
// that is not a hex address passes through untouched.
func ShortenAddress(addr string) string {
	if !common.IsHexAddress(addr) {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
