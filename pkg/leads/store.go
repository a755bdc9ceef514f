// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nslnv/leaddesk/pkg/database"
)

const leadColumns = `id, name, email, phone, work_type, deadline, budget, description, source, status, created_at, updated_at`

// Store persists leads in the leads table
type Store struct {
	db  *database.DB
	now func() time.Time
}

// StoreOption customises a Store
type StoreOption func(*Store)

// WithClock replaces time.Now for created_at/updated_at and dashboard windows
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a lead store on db. The schema is created by database.Migrate.
func NewStore(db *database.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (Lead, error) {
	var (
		l      Lead
		status string
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.WorkType, &l.Deadline, &l.Budget,
		&l.Description, &l.Source, &status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return Lead{}, err
	}
	l.Status = Status(status)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

// Create inserts a lead and returns it with id and timestamps set
func (s *Store) Create(ctx context.Context, l Lead) (Lead, error) {
	now := s.now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	if l.Status == "" {
		l.Status = StatusNew
	}
	id, err := s.db.InsertID(ctx,
		`INSERT INTO leads (name, email, phone, work_type, deadline, budget, description, source, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Name, l.Email, l.Phone, l.WorkType, l.Deadline, l.Budget, l.Description, l.Source, string(l.Status), now, now,
	)
	if err != nil {
		return Lead{}, fmt.Errorf("failed to insert lead: %w", err)
	}
	l.ID = id
	return l, nil
}

// Get returns the lead with id or ErrNotFound
func (s *Store) Get(ctx context.Context, id int64) (Lead, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+leadColumns+` FROM leads WHERE id = ?`), id)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, fmt.Errorf("failed to load lead %d: %w", id, err)
	}
	return l, nil
}

// Update applies a partial update and returns the stored lead together with
// the fields that actually changed. An update that changes nothing still
// bumps updated_at.
func (s *Store) Update(ctx context.Context, id int64, u Update) (Lead, map[string]Change, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Lead{}, nil, err
	}

	changes := make(map[string]Change)
	var (
		sets []string
		args []interface{}
	)
	setString := func(field, column string, cur string, next *string) {
		if next == nil || *next == cur {
			return
		}
		changes[field] = Change{From: cur, To: *next}
		sets = append(sets, column+" = ?")
		args = append(args, *next)
	}
	setNullable := func(field, column string, cur *string, next *string) {
		if next == nil {
			return
		}
		var to *string
		if *next != "" {
			to = next
		}
		if equalNullable(cur, to) {
			return
		}
		changes[field] = Change{From: cur, To: to}
		sets = append(sets, column+" = ?")
		args = append(args, to)
	}

	setString("name", "name", current.Name, u.Name)
	setString("email", "email", current.Email, u.Email)
	setNullable("phone", "phone", current.Phone, u.Phone)
	setString("workType", "work_type", current.WorkType, u.WorkType)
	setNullable("deadline", "deadline", current.Deadline, u.Deadline)
	setNullable("budget", "budget", current.Budget, u.Budget)
	setString("description", "description", current.Description, u.Description)
	setNullable("source", "source", current.Source, u.Source)
	if u.Status != nil && *u.Status != current.Status {
		changes["status"] = Change{From: current.Status, To: *u.Status}
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}

	now := s.now().UTC()
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id)

	query := `UPDATE leads SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return Lead{}, nil, fmt.Errorf("failed to update lead %d: %w", id, err)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return Lead{}, nil, err
	}
	return updated, changes, nil
}

// Delete removes a lead and returns what was deleted
func (s *Store) Delete(ctx context.Context, id int64) (Lead, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM leads WHERE id = ?`), id); err != nil {
		return Lead{}, fmt.Errorf("failed to delete lead %d: %w", id, err)
	}
	return l, nil
}

// BulkDelete removes every lead in ids and returns the number of rows deleted
func (s *Store) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM leads WHERE id IN (`+database.Placeholders(len(ids))+`)`), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk delete leads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted leads: %w", err)
	}
	return n, nil
}

func (s *Store) whereClause(f Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Search != "" {
		like := s.db.Like()
		pattern := "%" + f.Search + "%"
		conds = append(conds, "(name "+like+" ? OR email "+like+" ? OR description "+like+" ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.WorkType != "" {
		conds = append(conds, "work_type = ?")
		args = append(args, f.WorkType)
	}
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, f.Source)
	}
	if f.DateFrom != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.DateTo.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of leads matching f and the total number of matches.
// f is normalized first.
func (s *Store) List(ctx context.Context, f Filter) ([]Lead, int, error) {
	f.Normalize()
	where, args := s.whereClause(f)

	var total int
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT COUNT(*) FROM leads`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}

	order := "DESC"
	if f.Order == "asc" {
		order = "ASC"
	}
	query := `SELECT ` + leadColumns + ` FROM leads` + where +
		` ORDER BY ` + sortColumns[f.Sort] + ` ` + order + `, id ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	leads, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, total, nil
}

// Export returns every lead matching f, newest first
func (s *Store) Export(ctx context.Context, f ExportFilter) ([]Lead, error) {
	where, args := s.whereClause(Filter{Status: f.Status, WorkType: f.WorkType, Source: f.Source})
	leads, err := s.query(ctx, `SELECT `+leadColumns+` FROM leads`+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to export leads: %w", err)
	}
	return leads, nil
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	leads := make([]Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// DefaultStatsDays is the dashboard window when none is requested
const DefaultStatsDays = 30

const topN = 5

// Stats computes dashboard figures. PerDay covers the last days days
// including today, with zero entries for days without leads.
func (s *Store) Stats(ctx context.Context, days int) (Stats, error) {
	if days < 1 {
		days = DefaultStatsDays
	}
	st := Stats{ByStatus: make(map[Status]int, len(Statuses))}
	for _, status := range Statuses {
		st.ByStatus[status] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count leads by status: %w", err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			_ = rows.Close()
			return Stats{}, fmt.Errorf("failed to scan status count: %w", err)
		}
		st.ByStatus[Status(status)] = n
		st.Total += n
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to count leads by status: %w", err)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	day := s.db.DayExpr("created_at")
	perDay, err := s.namedCounts(ctx,
		`SELECT `+day+` AS day, COUNT(*) FROM leads WHERE created_at >= ? GROUP BY `+day+` ORDER BY day`, since)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count leads per day: %w", err)
	}
	counts := make(map[string]int, len(perDay))
	for _, c := range perDay {
		counts[c.Name] = c.Count
	}
	st.PerDay = make([]DailyCount, 0, days)
	for d := since; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		st.PerDay = append(st.PerDay, DailyCount{Day: key, Count: counts[key]})
	}

	st.TopWorkTypes, err = s.namedCounts(ctx, fmt.Sprintf(
		`SELECT work_type, COUNT(*) AS n FROM leads GROUP BY work_type ORDER BY n DESC, work_type LIMIT %d`, topN))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count work types: %w", err)
	}
	st.TopSources, err = s.namedCounts(ctx, fmt.Sprintf(
		`SELECT source, COUNT(*) AS n FROM leads WHERE source IS NOT NULL GROUP BY source ORDER BY n DESC, source LIMIT %d`, topN))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count sources: %w", err)
	}
	return st, nil
}

func (s *Store) namedCounts(ctx context.Context, query string, args ...interface{}) ([]NamedCount, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]NamedCount, 0)
	for rows.Next() {
		var c NamedCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func equalNullable(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
