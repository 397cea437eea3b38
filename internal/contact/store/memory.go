// Package store implements ports.Store and ports.StoreTx over memory,
// PostgreSQL and SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"contactsvc/internal/contact/models"
	"contactsvc/internal/contact/ports"
	dErrors "contactsvc/pkg/domain-errors"
	"contactsvc/pkg/platform/sentinel"
)

// DefaultTxTimeout bounds a transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

var errReadOnly = errors.New("write attempted in read-only transaction")

// InMemory keeps contacts in a map. Writing transactions run one at a time
// and buffer their writes until commit, so a failed unit of work leaves no
// trace. Reads see only rows without a deletion timestamp.
type InMemory struct {
	writer  chan struct{}
	mu      sync.RWMutex
	rows    map[int64]*models.Contact
	nextID  int64
	timeout time.Duration
}

func NewInMemory() *InMemory {
	return &InMemory{
		writer:  make(chan struct{}, 1),
		rows:    make(map[int64]*models.Contact),
		timeout: DefaultTxTimeout,
	}
}

// Seed inserts rows verbatim, ids and deletion marks included. It exists for
// fixtures and bypasses every invariant check.
func (s *InMemory) Seed(contacts ...*models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contacts {
		row := c.Clone()
		if row.ID == 0 {
			s.nextID++
			row.ID = s.nextID
			c.ID = row.ID
		} else if row.ID > s.nextID {
			s.nextID = row.ID
		}
		s.rows[row.ID] = row
	}
}

// Len returns the number of stored rows, deleted ones included.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted waiting for writer slot")
	}
	defer func() { <-s.writer }()

	view := &memoryTx{base: s.snapshot(), writes: make(map[int64]*models.Contact), owner: s}
	if err := fn(ctx, view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, row := range view.writes {
		s.rows[id] = row
	}
	return nil
}

func (s *InMemory) RunReadOnly(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "read aborted: context cancelled")
	}
	view := &memoryTx{base: s.snapshot(), readOnly: true, owner: s}
	return fn(ctx, view)
}

func (s *InMemory) snapshot() map[int64]*models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]*models.Contact, len(s.rows))
	for id, row := range s.rows {
		out[id] = row
	}
	return out
}

func (s *InMemory) allocateID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// memoryTx overlays buffered writes on a snapshot of committed rows.
// Stored rows are never mutated in place; every write installs a clone.
type memoryTx struct {
	base     map[int64]*models.Contact
	writes   map[int64]*models.Contact
	readOnly bool
	owner    *InMemory
}

func (t *memoryTx) lookup(id int64) (*models.Contact, bool) {
	if row, ok := t.writes[id]; ok {
		return row, true
	}
	row, ok := t.base[id]
	return row, ok
}

func (t *memoryTx) active() []*models.Contact {
	out := make([]*models.Contact, 0, len(t.base)+len(t.writes))
	for id, row := range t.base {
		if _, shadowed := t.writes[id]; shadowed {
			continue
		}
		if row.IsActive() {
			out = append(out, row)
		}
	}
	for _, row := range t.writes {
		if row.IsActive() {
			out = append(out, row)
		}
	}
	return out
}

func (t *memoryTx) FindPrimaryMatches(_ context.Context, email, phone *string) ([]*models.Contact, error) {
	if email == nil && phone == nil {
		return nil, nil
	}
	var out []*models.Contact
	for _, row := range t.active() {
		if !row.IsPrimary() {
			continue
		}
		if equalPtr(row.Email, email) || equalPtr(row.PhoneNumber, phone) {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (t *memoryTx) EmailExists(_ context.Context, email string) (bool, error) {
	for _, row := range t.active() {
		if row.Email != nil && *row.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) PhoneExists(_ context.Context, phone string) (bool, error) {
	for _, row := range t.active() {
		if row.PhoneNumber != nil && *row.PhoneNumber == phone {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) FindByLinkedID(_ context.Context, primaryID int64) ([]*models.Contact, error) {
	var out []*models.Contact
	for _, row := range t.active() {
		if row.LinkedID != nil && *row.LinkedID == primaryID {
			out = append(out, row.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (t *memoryTx) FindByID(_ context.Context, id int64) (*models.Contact, error) {
	row, ok := t.lookup(id)
	if !ok || !row.IsActive() {
		return nil, fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	return row.Clone(), nil
}

func (t *memoryTx) ListActive(_ context.Context) ([]*models.Contact, error) {
	rows := t.active()
	out := make([]*models.Contact, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) Save(_ context.Context, contact *models.Contact) error {
	if t.readOnly {
		return errReadOnly
	}
	if contact.ID == 0 {
		contact.ID = t.owner.allocateID()
	} else if _, ok := t.lookup(contact.ID); !ok {
		return fmt.Errorf("contact %d: %w", contact.ID, sentinel.ErrNotFound)
	}
	t.writes[contact.ID] = contact.Clone()
	return nil
}

// LockKeys is a no-op: writing transactions are already exclusive.
func (t *memoryTx) LockKeys(ctx context.Context, _ []string) error {
	return ctx.Err()
}

func equalPtr(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
