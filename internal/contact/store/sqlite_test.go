package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"contactsvc/internal/contact/ports"
	"contactsvc/internal/platform/config"
	"contactsvc/internal/platform/database"
)

type SQLiteStoreSuite struct {
	contractSuite
	db *sqlx.DB
}

func TestSQLiteStoreSuite(t *testing.T) {
	s := new(SQLiteStoreSuite)
	s.newStore = func() ports.StoreTx {
		cfg := config.Database{
			Driver: config.DriverSQLite,
			DSN:    filepath.Join(s.T().TempDir(), "contacts.db"),
		}
		s.Require().NoError(database.Migrate(cfg, database.Up, nil))
		db, err := database.Open(context.Background(), cfg)
		s.Require().NoError(err)
		s.db = db
		return NewSQLite(db)
	}
	suite.Run(t, s)
}

func (s *SQLiteStoreSuite) TearDownTest() {
	if s.db != nil {
		_ = s.db.Close()
	}
}
