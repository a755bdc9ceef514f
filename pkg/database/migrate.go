package database

import (
	"context"
	"fmt"
	"strings"
)

// schema per dialect; {{ID}} and {{TEXT}} are substituted before execution
var schema = []string{
	`CREATE TABLE IF NOT EXISTS admin_users (
		id {{ID}},
		username VARCHAR(100) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(50) NOT NULL DEFAULT 'admin',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id {{ID}},
		name VARCHAR(100) NOT NULL,
		email VARCHAR(100) NOT NULL,
		phone VARCHAR(50),
		work_type VARCHAR(100) NOT NULL,
		deadline VARCHAR(100),
		budget VARCHAR(50),
		description {{TEXT}} NOT NULL,
		source VARCHAR(100),
		status VARCHAR(20) NOT NULL DEFAULT 'new',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_status ON leads (status)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_email ON leads (email)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_work_type ON leads (work_type)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id {{ID}},
		event_id VARCHAR(36) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		level VARCHAR(10) NOT NULL,
		message VARCHAR(500) NOT NULL,
		context {{TEXT}},
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_level ON audit_logs (level)`,
}

// Migrate creates the tables and indexes if they do not exist yet. It is safe
// to run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	id, text := "INTEGER PRIMARY KEY AUTOINCREMENT", "TEXT"
	switch db.dialect {
	case Postgres:
		id = "BIGSERIAL PRIMARY KEY"
	case MySQL:
		id, text = "BIGINT AUTO_INCREMENT PRIMARY KEY", "MEDIUMTEXT"
	}

	for _, stmt := range schema {
		// MySQL has no CREATE INDEX IF NOT EXISTS; indexes are declared once per table
		if db.dialect == MySQL && strings.HasPrefix(stmt, "CREATE INDEX") {
			continue
		}
		stmt = strings.NewReplacer("{{ID}}", id, "{{TEXT}}", text).Replace(stmt)
		if db.dialect == MySQL {
			stmt = mysqlIndexes(stmt)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// mysqlIndexes inlines the secondary indexes into the CREATE TABLE statement
func mysqlIndexes(stmt string) string {
	var extra string
	switch {
	case strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS leads"):
		extra = ",\n\t\tINDEX idx_leads_status (status),\n\t\tINDEX idx_leads_created_at (created_at),\n\t\tINDEX idx_leads_email (email),\n\t\tINDEX idx_leads_work_type (work_type)"
	case strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS audit_logs"):
		extra = ",\n\t\tINDEX idx_audit_logs_created_at (created_at),\n\t\tINDEX idx_audit_logs_level (level)"
	default:
		return stmt
	}
	i := strings.LastIndex(stmt, ")")
	return stmt[:i] + extra + "\n\t" + stmt[i:]
}
