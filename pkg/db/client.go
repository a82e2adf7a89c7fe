package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/sethvargo/go-retry"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Client owns the pooled connection every repository shares.
type Client struct {
	gdb     *gorm.DB
	dialect string
}

// Pinger is the readiness check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the configured store, waits until it answers a ping and tunes the
// pool for the dialect.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	dialector, dialect, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := Open(dialector)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	tunePool(sqlDB, cfg, dialect)

	if err := waitReachable(ctx, sqlDB, cfg, logg); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dialect":        dialect,
			"max_open_conns": sqlDB.Stats().MaxOpenConnections,
		}), "database ready")
	}
	return &Client{gdb: gdb, dialect: dialect}, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, string, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, "", fmt.Errorf("database DSN is required")
	}
	if cfg.IsSQLite() {
		return sqlite.Open(sqliteDSN(cfg.DSN, cfg.BusyTimeout)), DialectSQLite, nil
	}
	if cfg.Driver == config.DBDriverPostgres {
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), DialectPostgres, nil
	}
	return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// sqliteDSN adds the connection options every SQLite handle needs unless the
// operator already set them. Options are per connection, so they live in the
// DSN rather than in one-off PRAGMA statements.
func sqliteDSN(dsn string, busy time.Duration) string {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return dsn
	}

	setDefault := func(key, value string) {
		if query.Get(key) == "" {
			query.Set(key, value)
		}
	}
	setDefault("_foreign_keys", "on")
	if busy > 0 {
		setDefault("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	}
	if !isMemoryDSN(dsn) {
		setDefault("_journal_mode", "WAL")
	}
	return path + "?" + query.Encode()
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Open applies the shared GORM settings to dialector: no query logging, UTC
// clock and no implicit per-statement transaction.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent}),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return gdb, nil
}

// NewFromGorm wraps a handle opened elsewhere, typically by dbtest.
func NewFromGorm(gdb *gorm.DB, dialect string) *Client {
	return &Client{gdb: gdb, dialect: dialect}
}

func tunePool(sqlDB *sql.DB, cfg config.DBConfig, dialect string) {
	maxOpen := cfg.MaxOpenConns
	// Each connection to a private in-memory database sees its own empty copy.
	if dialect == DialectSQLite && isMemoryDSN(cfg.DSN) {
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(min(cfg.MaxIdleConns, max(maxOpen, 1)))
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// waitReachable pings with exponential backoff so the api can start alongside
// a database container that is still booting.
func waitReachable(ctx context.Context, sqlDB *sql.DB, cfg config.DBConfig, logg *logger.Logger) error {
	attempts := max(cfg.ConnectAttempts, 1)
	base := cfg.ConnectBackoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.WithCappedDuration(10*time.Second, retry.NewExponential(base)))

	try := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		try++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			if logg != nil && try < attempts {
				logg.Warn(logg.WithField(ctx, "attempt", try), "database not reachable yet")
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("database unreachable after %d attempts: %w", try, err)
	}
	return nil
}

// DB returns the GORM handle for repositories.
func (c *Client) DB() *gorm.DB {
	return c.gdb
}

// SQL returns the pooled database/sql handle, for goose and pool stats.
func (c *Client) SQL() (*sql.DB, error) {
	sqlDB, err := c.gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	return sqlDB, nil
}

// Dialect is the goose dialect name.
func (c *Client) Dialect() string {
	return c.dialect
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.SQL()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.SQL()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in one transaction. A returned error or a panic rolls back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.gdb.WithContext(ctx).Transaction(fn)
}
