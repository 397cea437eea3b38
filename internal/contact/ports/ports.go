//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Package ports defines the interfaces the contact service consumes.
// Store implementations live in internal/contact/store; lockers in
// internal/contact/lock; publishers in internal/contact/events.
package ports

import (
	"context"

	"contactsvc/internal/contact/models"
)

// Store is the transactional view of the contact table. Every method observes
// the writes made earlier in the same transaction. Soft-deleted rows are
// invisible to all reads.
type Store interface {
	// FindPrimaryMatches returns PRIMARY contacts whose email equals email or
	// whose phone equals phone, ordered oldest first (created_at, then id).
	// A nil argument never matches.
	FindPrimaryMatches(ctx context.Context, email, phone *string) ([]*models.Contact, error)

	// EmailExists reports whether any contact carries this email.
	EmailExists(ctx context.Context, email string) (bool, error)

	// PhoneExists reports whether any contact carries this phone number.
	PhoneExists(ctx context.Context, phone string) (bool, error)

	// FindByLinkedID returns the contacts linked to primaryID.
	FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error)

	// FindByID returns sentinel.ErrNotFound when no contact has this id.
	FindByID(ctx context.Context, id int64) (*models.Contact, error)

	// ListActive returns every contact, ordered by id.
	ListActive(ctx context.Context) ([]*models.Contact, error)

	// Save inserts the contact when ID is zero and assigns its id; otherwise
	// it updates the existing row.
	Save(ctx context.Context, contact *models.Contact) error

	// LockKeys serializes the current transaction against any other
	// transaction locking an overlapping key. Held until commit or rollback.
	LockKeys(ctx context.Context, keys []string) error
}

// StoreTx runs units of work against a Store.
type StoreTx interface {
	// RunInTx commits fn's writes atomically. Any error from fn rolls back
	// every write fn made.
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error

	// RunReadOnly runs fn against a consistent snapshot.
	RunReadOnly(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// Locker serializes reconciliations across processes by opaque key.
type Locker interface {
	// Acquire blocks until every key is held or ctx ends. Keys must be
	// passed in a consistent order by all callers.
	Acquire(ctx context.Context, keys []string) (release func(), err error)
}

// Publisher receives committed reconciliation outcomes.
type Publisher interface {
	Publish(ctx context.Context, outcome models.Outcome) error
}
