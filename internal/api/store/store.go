package store

import (
	"context"
	"errors"
	"time"

	"github.com/cartogra/cartogra/internal/api/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and forces transactional work through Tx so nobody accidentally
// nests transactions.
type Store interface {
	Users() Users
	Organizations() Organizations

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Prefer this
	// over Tx for multi-step writes (e.g. signup creating org + user).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
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

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during login. Email lookup is case-insensitive.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists if the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateLastLogin stamps last_login after a successful credential check.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// SetActive toggles the active flag and bumps updated_at.
	SetActive(ctx context.Context, userID string, active bool) error

	// DeleteUser removes a user record.
	DeleteUser(ctx context.Context, userID string) error

	// CountByOrganization returns how many users belong to an organization.
	CountByOrganization(ctx context.Context, orgID string) (int, error)
}

type Organizations interface {
	// GetOrganizationByID returns an organization by id.
	GetOrganizationByID(ctx context.Context, id string) (domain.Organization, error)

	// GetOrganizationBySlug returns an organization by its URL slug.
	GetOrganizationBySlug(ctx context.Context, slug string) (domain.Organization, error)

	// CreateOrganization inserts a new organization (id is ULID).
	// Returns ErrAlreadyExists if the slug is taken.
	CreateOrganization(ctx context.Context, o domain.Organization) error

	// UpdateOrganizationName renames an organization and bumps updated_at.
	UpdateOrganizationName(ctx context.Context, orgID, name string) error

	// SetOrganizationActive toggles the active flag and bumps updated_at.
	SetOrganizationActive(ctx context.Context, orgID string, active bool) error
}
