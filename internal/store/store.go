package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// Store is the root data access interface for the persisted session. It
// exposes sub-repositories to keep concerns tidy and testable. Sub-repos
// are methods so a transaction hands out the same repos scoped to the tx.
type Store interface {
	Device() Device
	Tokens() Tokens
	LogoutTickets() LogoutTickets
	Pincode() Pincode
	Attempts() Attempts

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Device interface {
	// GetDeviceID returns the persisted device identifier (mobile uid).
	GetDeviceID(ctx context.Context) (string, error)

	// SetDeviceID stores the device identifier. It is written once.
	SetDeviceID(ctx context.Context, id string) error
}

type Tokens interface {
	GetToken(ctx context.Context, kind domain.TokenKind) (string, error)
	PutToken(ctx context.Context, kind domain.TokenKind, token string) error

	// DeleteToken is a no-op when no token of kind is stored.
	DeleteToken(ctx context.Context, kind domain.TokenKind) error
}

// LogoutTickets holds tokens pending server-side invalidation, at most one
// per kind.
type LogoutTickets interface {
	GetTicket(ctx context.Context, kind domain.TokenKind) (domain.LogoutTicket, error)

	// PutTicket replaces any ticket of the same kind.
	PutTicket(ctx context.Context, t domain.LogoutTicket) error

	DeleteTicket(ctx context.Context, kind domain.TokenKind) error
	ListTickets(ctx context.Context) ([]domain.LogoutTicket, error)
}

type Pincode interface {
	// GetHash returns ErrNotFound when no pincode is set.
	GetHash(ctx context.Context) (string, error)
	SetHash(ctx context.Context, hash string) error

	// ClearHash removes the hash together with the last verified time.
	ClearHash(ctx context.Context) error

	// GetLastVerifiedAt returns ErrNotFound when no entry was ever recorded.
	GetLastVerifiedAt(ctx context.Context) (time.Time, error)
	SetLastVerifiedAt(ctx context.Context, at time.Time) error
	ClearLastVerifiedAt(ctx context.Context) error

	GetBiometryEnabled(ctx context.Context) (bool, error)
	SetBiometryEnabled(ctx context.Context, enabled bool) error
}

// Attempts counts incorrect pincode entries per gate flow.
type Attempts interface {
	// GetAttempts returns 0 for a flow that was never written.
	GetAttempts(ctx context.Context, flow string) (int, error)
	SetAttempts(ctx context.Context, flow string, n int) error
}
