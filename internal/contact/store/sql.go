package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"contactsvc/internal/contact/models"
	"contactsvc/internal/contact/ports"
	dErrors "contactsvc/pkg/domain-errors"
	"contactsvc/pkg/platform/sentinel"
	txcontext "contactsvc/pkg/platform/tx"
)

var tracer = otel.Tracer("contactsvc/internal/contact/store")

const contactsTable = "contacts"

var contactColumns = []string{
	"id", "email", "phone_number", "link_precedence", "linked_id",
	"created_at", "updated_at", "deleted_at",
}

// dialect captures what differs between SQL backends.
type dialect interface {
	name() string
	flavor() sqlbuilder.Flavor
	// lockRows reports whether SELECTs inside a writing transaction take
	// row locks.
	lockRows() bool
	lockKeys(ctx context.Context, tx *sqlx.Tx, keys []string) error
	// classify maps driver errors to sentinel errors.
	classify(err error) error
	readOnlyOptions() *sql.TxOptions
}

// SQLStore is the relational Store. Methods run inside the transaction
// carried by ctx, or directly on the pool when there is none.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	timeout time.Duration
}

type Option func(*SQLStore)

// WithTxTimeout bounds transactions started without a caller deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *SQLStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func newSQLStore(db *sqlx.DB, d dialect, opts ...Option) *SQLStore {
	s := &SQLStore{db: db, dialect: d, timeout: DefaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the pool for health checks.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	return s.run(ctx, nil, fn)
}

func (s *SQLStore) RunReadOnly(ctx context.Context, fn func(ctx context.Context, store ports.Store) error) error {
	return s.run(context.WithValue(ctx, readOnlyKey{}, true), s.dialect.readOnlyOptions(), fn)
}

type readOnlyKey struct{}

func (s *SQLStore) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, store ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "store.Tx")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", s.dialect.name()),
		attribute.Bool("db.read_only", opts != nil && opts.ReadOnly),
	)

	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return s.dialect.classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.dialect.classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

func (s *SQLStore) conn(ctx context.Context) (queryer, bool) {
	if tx, ok := txcontext.From(ctx); ok {
		return tx, true
	}
	return s.db, false
}

func (s *SQLStore) selectContacts(ctx context.Context) (*sqlbuilder.SelectBuilder, bool) {
	_, inTx := s.conn(ctx)
	readOnly, _ := ctx.Value(readOnlyKey{}).(bool)
	sb := s.dialect.flavor().NewSelectBuilder()
	sb.Select(contactColumns...).From(contactsTable)
	return sb, inTx && !readOnly && s.dialect.lockRows()
}

func (s *SQLStore) FindPrimaryMatches(ctx context.Context, email, phone *string) ([]*models.Contact, error) {
	ctx, span := tracer.Start(ctx, "store.FindPrimaryMatches")
	defer span.End()

	if email == nil && phone == nil {
		return nil, nil
	}
	sb, forUpdate := s.selectContacts(ctx)
	var either []string
	if email != nil {
		either = append(either, sb.Equal("email", *email))
	}
	if phone != nil {
		either = append(either, sb.Equal("phone_number", *phone))
	}
	sb.Where(
		sb.Equal("link_precedence", string(models.PrecedencePrimary)),
		sb.IsNull("deleted_at"),
		sb.Or(either...),
	)
	sb.OrderBy("created_at", "id").Asc()
	if forUpdate {
		sb.ForUpdate()
	}

	out, err := s.list(ctx, sb)
	if err != nil {
		return nil, fmt.Errorf("find primary matches: %w", err)
	}
	span.SetAttributes(attribute.Int("contact.matches", len(out)))
	return out, nil
}

func (s *SQLStore) EmailExists(ctx context.Context, email string) (bool, error) {
	ok, err := s.exists(ctx, "email", email)
	if err != nil {
		return false, fmt.Errorf("email exists: %w", err)
	}
	return ok, nil
}

func (s *SQLStore) PhoneExists(ctx context.Context, phone string) (bool, error) {
	ok, err := s.exists(ctx, "phone_number", phone)
	if err != nil {
		return false, fmt.Errorf("phone exists: %w", err)
	}
	return ok, nil
}

func (s *SQLStore) exists(ctx context.Context, column, value string) (bool, error) {
	q, _ := s.conn(ctx)
	sb := s.dialect.flavor().NewSelectBuilder()
	sb.Select("id").From(contactsTable)
	sb.Where(sb.Equal(column, value), sb.IsNull("deleted_at"))
	sb.Limit(1)

	query, args := sb.Build()
	var id int64
	err := sqlx.GetContext(ctx, q, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.dialect.classify(err)
	}
	return true, nil
}

func (s *SQLStore) FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	sb, forUpdate := s.selectContacts(ctx)
	sb.Where(sb.Equal("linked_id", primaryID), sb.IsNull("deleted_at"))
	sb.OrderBy("created_at", "id").Asc()
	if forUpdate {
		sb.ForUpdate()
	}
	out, err := s.list(ctx, sb)
	if err != nil {
		return nil, fmt.Errorf("find contacts linked to %d: %w", primaryID, err)
	}
	return out, nil
}

func (s *SQLStore) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	q, _ := s.conn(ctx)
	sb, _ := s.selectContacts(ctx)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))

	query, args := sb.Build()
	var c models.Contact
	err := sqlx.GetContext(ctx, q, &c, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find contact %d: %w", id, s.dialect.classify(err))
	}
	return &c, nil
}

func (s *SQLStore) ListActive(ctx context.Context) ([]*models.Contact, error) {
	ctx, span := tracer.Start(ctx, "store.ListActive")
	defer span.End()

	sb := s.dialect.flavor().NewSelectBuilder()
	sb.Select(contactColumns...).From(contactsTable)
	sb.Where(sb.IsNull("deleted_at"))
	sb.OrderBy("id").Asc()
	out, err := s.list(ctx, sb)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return out, nil
}

func (s *SQLStore) list(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]*models.Contact, error) {
	q, _ := s.conn(ctx)
	query, args := sb.Build()
	var rows []models.Contact
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, s.dialect.classify(err)
	}
	out := make([]*models.Contact, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *SQLStore) Save(ctx context.Context, contact *models.Contact) error {
	if readOnly, _ := ctx.Value(readOnlyKey{}).(bool); readOnly {
		return errReadOnly
	}
	if contact.ID == 0 {
		return s.insert(ctx, contact)
	}
	return s.update(ctx, contact)
}

func (s *SQLStore) insert(ctx context.Context, c *models.Contact) error {
	q, _ := s.conn(ctx)
	ib := s.dialect.flavor().NewInsertBuilder()
	ib.InsertInto(contactsTable)
	ib.Cols("email", "phone_number", "link_precedence", "linked_id", "created_at", "updated_at", "deleted_at")
	ib.Values(c.Email, c.PhoneNumber, string(c.Precedence), c.LinkedID, c.CreatedAt.UTC(), c.UpdatedAt.UTC(), utcPtr(c.DeletedAt))

	query, args := ib.Build()
	query += " RETURNING id"
	if err := sqlx.GetContext(ctx, q, &c.ID, query, args...); err != nil {
		return fmt.Errorf("insert contact: %w", s.dialect.classify(err))
	}
	return nil
}

func (s *SQLStore) update(ctx context.Context, c *models.Contact) error {
	q, _ := s.conn(ctx)
	ub := s.dialect.flavor().NewUpdateBuilder()
	ub.Update(contactsTable)
	ub.Set(
		ub.Assign("email", c.Email),
		ub.Assign("phone_number", c.PhoneNumber),
		ub.Assign("link_precedence", string(c.Precedence)),
		ub.Assign("linked_id", c.LinkedID),
		ub.Assign("updated_at", c.UpdatedAt.UTC()),
		ub.Assign("deleted_at", utcPtr(c.DeletedAt)),
	)
	ub.Where(ub.Equal("id", c.ID))

	query, args := ub.Build()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update contact %d: %w", c.ID, s.dialect.classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact %d rows affected: %w", c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("contact %d: %w", c.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) LockKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, ok := txcontext.From(ctx)
	if !ok {
		return fmt.Errorf("lock keys outside transaction")
	}
	ctx, span := tracer.Start(ctx, "store.LockKeys")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("lock.keys", keys))

	if err := s.dialect.lockKeys(ctx, tx, keys); err != nil {
		return fmt.Errorf("lock keys: %w", s.dialect.classify(err))
	}
	return nil
}

// Timestamps are stored in UTC so text-backed columns order chronologically.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
