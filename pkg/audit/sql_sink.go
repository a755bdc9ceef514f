package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nslnv/leaddesk/pkg/database"
)

// SQLSink persists events into the audit_logs table
type SQLSink struct {
	db *database.DB
}

// NewSQLSink creates a sink writing to db. The table is created by database.Migrate.
func NewSQLSink(db *database.DB) *SQLSink {
	return &SQLSink{db: db}
}

// Write inserts one row per event
func (s *SQLSink) Write(ctx context.Context, event *Event) error {
	var contextJSON []byte
	if len(event.Context) > 0 {
		b, err := json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal audit context: %w", err)
		}
		contextJSON = b
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO audit_logs (event_id, event_type, level, message, context, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		event.ID, string(event.Type), string(event.Level), truncate(event.Message, 500), nullableString(contextJSON), event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the database is owned by the caller.
func (s *SQLSink) Close() error {
	return nil
}

// Name returns the sink identifier.
func (s *SQLSink) Name() string {
	return "database"
}

// ListOptions filters and paginates List
type ListOptions struct {
	Page     int
	PageSize int
	// Level limits results to one level; empty means all
	Level Level
	// Type limits results to one event type; empty means all
	Type EventType
}

// Record is a stored audit event
type Record struct {
	Event
	RowID int64 `json:"rowId"`
}

// List returns stored events newest first together with the total count
func (s *SQLSink) List(ctx context.Context, opts ListOptions) ([]Record, int, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 || opts.PageSize > 100 {
		opts.PageSize = 50
	}

	where := " WHERE 1=1"
	var args []interface{}
	if opts.Level != "" {
		where += " AND level = ?"
		args = append(args, string(opts.Level))
	}
	if opts.Type != "" {
		where += " AND event_type = ?"
		args = append(args, string(opts.Type))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT COUNT(*) FROM audit_logs`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	query := `SELECT id, event_id, event_type, level, message, context, created_at FROM audit_logs` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0, opts.PageSize)
	for rows.Next() {
		var (
			r           Record
			eventType   string
			level       string
			contextJSON *string
			createdAt   time.Time
		)
		if err := rows.Scan(&r.RowID, &r.ID, &eventType, &level, &r.Message, &contextJSON, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit event: %w", err)
		}
		r.Type = EventType(eventType)
		r.Level = Level(level)
		r.Timestamp = createdAt.UTC()
		if contextJSON != nil && *contextJSON != "" {
			if err := json.Unmarshal([]byte(*contextJSON), &r.Context); err != nil {
				r.Context = map[string]interface{}{"raw": *contextJSON}
			}
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

func nullableString(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
