// Package database opens the bun handle the user store runs on and classifies
// driver errors that callers need to tell apart.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLSTATE reported by PostgreSQL for unique_violation
const pgUniqueViolation = "23505"

// UnicodeLower is a scalar function registered on every SQLite connection.
// It lowercases TEXT with full Unicode case mapping, unlike the builtin lower().
const UnicodeLower = "ulower"

var (
	registerOnce sync.Once
	registerErr  error
)

// Options describes how to reach the store.
type Options struct {
	Driver string

	// postgres
	DSN          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// sqlite
	Path string

	MaxOpenConnections int
	PingTimeout        time.Duration
}

// Open creates the bun handle for the configured driver and verifies it with a ping.
// The returned handle is closed again if the ping fails.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)

	switch opts.Driver {
	case DriverPostgres:
		db, err = openPostgres(opts)
	case DriverSQLite:
		db, err = openSQLite(opts)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func openPostgres(opts Options) (*bun.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	connOpts := []pgdriver.Option{pgdriver.WithDSN(opts.DSN)}
	if opts.ReadTimeout > 0 {
		connOpts = append(connOpts, pgdriver.WithReadTimeout(opts.ReadTimeout))
	}
	if opts.WriteTimeout > 0 {
		connOpts = append(connOpts, pgdriver.WithWriteTimeout(opts.WriteTimeout))
	}

	maxConnections := opts.MaxOpenConnections
	if maxConnections <= 0 {
		maxConnections = 1
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(connOpts...))
	sqldb.SetMaxOpenConns(maxConnections)
	sqldb.SetMaxIdleConns(maxConnections)
	sqldb.SetConnMaxLifetime(time.Hour)

	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func openSQLite(opts Options) (*bun.DB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(UnicodeLower, 1, unicodeLower)
	})
	if registerErr != nil {
		return nil, fmt.Errorf("register %s: %w", UnicodeLower, registerErr)
	}

	sqldb, err := sql.Open("sqlite", sqliteDSN(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	sqldb.SetMaxOpenConns(1)

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// sqliteDSN appends the busy timeout pragma to path, keeping any query string
// already present on a file: URI.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// IsUniqueViolation reports whether err is a unique-constraint violation raised
// by either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			// extended result codes disabled on this connection
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}

	return false
}
