// Package mail sends new-lead notifications over SMTP. Messages go through a
// bounded in-memory queue drained by a background worker; the sender retries
// transient failures with exponential backoff.
package mail
