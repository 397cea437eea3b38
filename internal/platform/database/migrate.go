package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"contactsvc/internal/platform/config"
)

//go:embed migrations
var migrationFS embed.FS

// migrationLogger adapts slog to migrate.Logger.
type migrationLogger struct {
	logger *slog.Logger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrationLogger) Verbose() bool {
	return false
}

// Direction picks which way Migrate moves the schema.
type Direction int

const (
	Up Direction = iota
	Down
)

// Migrate applies the embedded schema for cfg.Driver. It opens its own
// connection from the DSN so callers' pools are never closed underneath
// them. Running with nothing to apply is not an error.
func Migrate(cfg config.Database, dir Direction, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sourceDir, url, err := migrationTarget(cfg)
	if err != nil {
		return err
	}

	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	source, err := iofs.New(sub, sourceDir)
	if err != nil {
		return fmt.Errorf("load %s migrations: %w", sourceDir, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Warn("closing migrator failed", "source_error", srcErr, "database_error", dbErr)
		}
	}()
	m.Log = migrationLogger{logger: logger}

	start := time.Now()
	switch dir {
	case Down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no new migrations to apply", "driver", cfg.Driver)
		return nil
	}
	if err != nil {
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			logger.Error("failed to read migration version", "error", verr)
		}
		return fmt.Errorf("apply migrations (version %d, dirty %t): %w", version, dirty, err)
	}

	version, _, _ := m.Version()
	logger.Info("database migrations applied",
		"driver", cfg.Driver,
		"version", version,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// migrationTarget maps a store DSN onto the URL scheme of the matching
// migrate driver.
func migrationTarget(cfg config.Database) (string, string, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		rest, ok := cutScheme(cfg.DSN, "postgres://", "postgresql://")
		if !ok {
			return "", "", fmt.Errorf("postgres DSN must be a postgres:// URL")
		}
		return "postgres", "pgx5://" + rest, nil
	case config.DriverSQLite:
		rest, _ := cutScheme(cfg.DSN, "file:", "sqlite3://")
		return "sqlite", "sqlite3://" + rest, nil
	default:
		return "", "", fmt.Errorf("driver %q has no migrations", cfg.Driver)
	}
}

func cutScheme(dsn string, schemes ...string) (string, bool) {
	for _, scheme := range schemes {
		if rest, ok := strings.CutPrefix(dsn, scheme); ok {
			return rest, true
		}
	}
	return dsn, false
}
