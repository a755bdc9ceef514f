// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

// Package database opens the SQL store shared by leads, admin users and the
// audit log, and papers over the placeholder and DDL differences between
// SQLite, PostgreSQL and MySQL.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nslnv/leaddesk/pkg/config"
)

// Supported dialects
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// DB wraps *sql.DB with the dialect it talks to
type DB struct {
	*sql.DB
	dialect string
}

// Open connects to the configured database and verifies the connection.
// SQLite is limited to one connection since it allows a single writer.
func Open(ctx context.Context, cfg config.Database, log *zap.SugaredLogger) (*DB, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	driver, dsn, err := driverFor(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == SQLite {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		// in-memory databases vanish with their connection
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == SQLite {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
			if _, err := sqlDB.ExecContext(pingCtx, pragma); err != nil {
				log.Warnw("Failed to apply SQLite pragma", "pragma", pragma, "error", err)
			}
		}
	}

	log.Infow("Connected to database", "driver", cfg.Driver)
	return &DB{DB: sqlDB, dialect: cfg.Driver}, nil
}

func driverFor(cfg config.Database) (driver, dsn string, err error) {
	dsn = cfg.DSN
	switch cfg.Driver {
	case SQLite:
		if dsn == "" {
			dsn = "file:leaddesk.db"
		}
		// store timestamps in a lexically sortable layout
		if !strings.Contains(dsn, "_time_format=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_time_format=sqlite"
		}
		return "sqlite", dsn, nil
	case Postgres:
		return "postgres", dsn, nil
	case MySQL:
		if !strings.Contains(dsn, "parseTime=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "parseTime=true"
		}
		return "mysql", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Dialect returns the SQL dialect in use
func (db *DB) Dialect() string {
	return db.dialect
}

// Rebind converts ? placeholders to $n for PostgreSQL. Question marks inside
// single-quoted literals are left alone.
func (db *DB) Rebind(query string) string {
	if db.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Like returns the case-insensitive LIKE operator for the dialect
func (db *DB) Like() string {
	if db.dialect == Postgres {
		return "ILIKE"
	}
	return "LIKE"
}

// DayExpr returns an expression formatting a timestamp column as YYYY-MM-DD
func (db *DB) DayExpr(column string) string {
	switch db.dialect {
	case Postgres:
		return "to_char(" + column + ", 'YYYY-MM-DD')"
	case MySQL:
		return "DATE_FORMAT(" + column + ", '%Y-%m-%d')"
	default:
		return "substr(" + column + ", 1, 10)"
	}
}

// InsertID runs an INSERT written with ? placeholders and returns the new row id
func (db *DB) InsertID(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if db.dialect == Postgres {
		var id int64
		if err := db.QueryRowContext(ctx, db.Rebind(query)+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Placeholders returns n comma separated ? placeholders
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// OpenInMemory opens a private migrated SQLite database, for tests and
// one-shot CLI runs.
func OpenInMemory(ctx context.Context) (*DB, error) {
	db, err := Open(ctx, config.Database{Driver: SQLite, DSN: "file::memory:", PingTimeout: 5 * time.Second}, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
