// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nslnv/leaddesk/pkg/database"
)

// DefaultRole is assigned when no role is given
const DefaultRole = "admin"

var (
	ErrUserNotFound = errors.New("admin user not found")
	ErrUserExists   = errors.New("admin user already exists")
)

// User is an account allowed into the lead desk
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NormalizeUsername trims and lower-cases a username. Usernames are stored normalized.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// UserStore persists admin users in the admin_users table
type UserStore struct {
	db *database.DB
}

// NewUserStore creates a store on db. The schema is created by database.Migrate.
func NewUserStore(db *database.DB) *UserStore {
	return &UserStore{db: db}
}

// FindByUsername looks up a user by normalized username
func (s *UserStore) FindByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT id, username, password_hash, role, created_at FROM admin_users WHERE username = ?`),
		NormalizeUsername(username),
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to load admin user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// Create inserts a user. The username is normalized and must be unique.
func (s *UserStore) Create(ctx context.Context, username, passwordHash, role string) (User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return User{}, errors.New("username is required")
	}
	if passwordHash == "" {
		return User{}, errors.New("password hash is required")
	}
	if role == "" {
		role = DefaultRole
	}

	if _, err := s.FindByUsername(ctx, username); err == nil {
		return User{}, fmt.Errorf("%w: %s", ErrUserExists, username)
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	now := time.Now().UTC()
	id, err := s.db.InsertID(ctx,
		`INSERT INTO admin_users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		username, passwordHash, role, now)
	if err != nil {
		return User{}, fmt.Errorf("failed to create admin user: %w", err)
	}
	return User{ID: id, Username: username, PasswordHash: passwordHash, Role: role, CreatedAt: now}, nil
}

// SetPassword replaces the password hash of an existing user
func (s *UserStore) SetPassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE admin_users SET password_hash = ? WHERE username = ?`),
		passwordHash, NormalizeUsername(username))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the number of admin users
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count admin users: %w", err)
	}
	return n, nil
}
