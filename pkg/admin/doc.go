// Package admin holds the admin user store, password authentication and the
// HTTP endpoints for signing in and out of the lead desk and reading the
// audit log.
package admin
