package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"contactsvc/pkg/platform/sentinel"
)

type sqliteDialect struct{}

// NewSQLite returns a Store backed by SQLite. The pool must be limited to a
// single connection; transactions then run one at a time and need no
// explicit locks.
func NewSQLite(db *sqlx.DB, opts ...Option) *SQLStore {
	return newSQLStore(db, sqliteDialect{}, opts...)
}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) flavor() sqlbuilder.Flavor { return sqlbuilder.SQLite }

func (sqliteDialect) lockRows() bool { return false }

func (sqliteDialect) readOnlyOptions() *sql.TxOptions { return nil }

func (sqliteDialect) lockKeys(context.Context, *sqlx.Tx, []string) error { return nil }

func (sqliteDialect) classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		}
	}
	return err
}
