package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends accepted by DATABASE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Database  Database
	Redis     Redis
	Kafka     Kafka
	Reconcile Reconcile
	Log       Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	MetricsAddr     string
	ShutdownTimeout time.Duration
}

// Database selects and tunes the contact store.
type Database struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Redis configures the distributed reconciliation lock. An empty URL keeps
// locking in-process.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// Kafka configures contact event publishing. No brokers disables it.
type Kafka struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Reconcile bounds one identify call.
type Reconcile struct {
	TxTimeout   time.Duration
	MaxAttempts int
}

type Log struct {
	Level  string
	Format string
}

// FromEnv builds the config from environment variables, after loading a
// .env file from the working directory when one exists.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	r := envReader{}
	cfg := Config{
		Server: Server{
			Addr:            r.str("CONTACT_ADDR", ":8080"),
			MetricsAddr:     r.str("METRICS_ADDR", ""),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: Database{
			Driver:          strings.ToLower(r.str("DATABASE_DRIVER", DriverMemory)),
			DSN:             r.str("DATABASE_URL", ""),
			MaxOpenConns:    r.integer("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    r.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     r.boolean("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: Redis{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      r.duration("REDIS_LOCK_TTL", 30*time.Second),
		},
		Kafka: Kafka{
			Brokers:  r.list("KAFKA_BROKERS"),
			Topic:    r.str("KAFKA_TOPIC", "contact-events"),
			ClientID: r.str("KAFKA_CLIENT_ID", "contactsvc"),
		},
		Reconcile: Reconcile{
			TxTimeout:   r.duration("RECONCILE_TX_TIMEOUT", 5*time.Second),
			MaxAttempts: r.integer("RECONCILE_MAX_ATTEMPTS", 4),
		},
		Log: Log{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
	}
	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the process cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver)
	}
	if c.Reconcile.MaxAttempts < 1 {
		return fmt.Errorf("RECONCILE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Redis.URL != "" && c.Redis.LockTTL <= c.Reconcile.TxTimeout {
		return fmt.Errorf("REDIS_LOCK_TTL (%s) must exceed RECONCILE_TX_TIMEOUT (%s)", c.Redis.LockTTL, c.Reconcile.TxTimeout)
	}
	return nil
}

// envReader keeps the first parse error so FromEnv reads linearly.
type envReader struct {
	err error
}

func (r *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *envReader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *envReader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
