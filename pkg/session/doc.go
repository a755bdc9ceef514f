// Package session issues and verifies the signed admin session token and
// guards the admin surface of the HTTP API.
//
// Tokens are HS256 JWTs carried in the admin_session cookie. The Guard
// evaluates an ordered rule list once per request and either admits the
// request (with the admin identity attached to the gin and request
// contexts), answers 401 for API paths, or redirects page paths to the
// login page.
package session
