// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"net/http"
	"time"
)

// CookieName is the name of the admin session cookie
const CookieName = "admin_session"

// CookieOptions controls the attributes of the session cookie
type CookieOptions struct {
	// Secure marks the cookie HTTPS-only; enabled in production
	Secure bool
	MaxAge time.Duration
}

// SetCookie writes the session cookie carrying token
func SetCookie(w http.ResponseWriter, token string, opts CookieOptions) {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie on the client
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// TokenFromRequest returns the raw session token, or "" when the cookie is absent
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
