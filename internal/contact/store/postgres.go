package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"contactsvc/pkg/platform/sentinel"
)

// SQLSTATEs that mean the transaction lost a race and may be retried.
var pgRetryableCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

type postgresDialect struct{}

// NewPostgres returns a Store backed by PostgreSQL. Writers serialize on
// transaction-scoped advisory locks and row locks on the rows they read.
func NewPostgres(db *sqlx.DB, opts ...Option) *SQLStore {
	return newSQLStore(db, postgresDialect{}, opts...)
}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) flavor() sqlbuilder.Flavor { return sqlbuilder.PostgreSQL }

func (postgresDialect) lockRows() bool { return true }

func (postgresDialect) readOnlyOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

// lockKeys takes one advisory lock per key, in the order given.
func (postgresDialect) lockKeys(ctx context.Context, tx *sqlx.Tx, keys []string) error {
	ids := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = advisoryKey64(k)
	}
	_, err := tx.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(k)
		FROM unnest($1::bigint[]) WITH ORDINALITY AS t(k, ord)
		ORDER BY ord
	`, pq.Array(ids))
	return err
}

func (postgresDialect) classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := pgRetryableCodes[pgErr.Code]; ok {
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

func advisoryKey64(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("contact:"))
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
