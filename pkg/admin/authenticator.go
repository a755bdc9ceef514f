// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown username and for a wrong
// password alike
var ErrInvalidCredentials = errors.New("invalid username or password")

// MinPasswordLength applies to passwords set through the CLI
const MinPasswordLength = 8

// HashPassword returns the bcrypt hash of password. cost 0 means bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// userFinder is the part of UserStore the Authenticator needs
type userFinder interface {
	FindByUsername(ctx context.Context, username string) (User, error)
}

// Authenticator checks admin credentials
type Authenticator struct {
	users userFinder
	// dummyHash is compared against when the username does not exist so that
	// both failure paths cost one bcrypt comparison
	dummyHash []byte
}

// NewAuthenticator creates an Authenticator. cost should match the cost used
// for stored hashes; 0 means bcrypt.DefaultCost.
func NewAuthenticator(users userFinder, cost int) (*Authenticator, error) {
	dummy, err := HashPassword("leaddesk-no-such-user", cost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{users: users, dummyHash: []byte(dummy)}, nil
}

// Result tells the caller which check failed, for auditing only. Clients
// only ever see ErrInvalidCredentials.
type Result struct {
	User          User
	UnknownUser   bool
	WrongPassword bool
}

// Authenticate verifies username and password
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (Result, error) {
	u, err := a.users.FindByUsername(ctx, NormalizeUsername(username))
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		return Result{UnknownUser: true}, ErrInvalidCredentials
	}
	if err != nil {
		return Result{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Result{User: u, WrongPassword: true}, ErrInvalidCredentials
	}
	return Result{User: u}, nil
}
