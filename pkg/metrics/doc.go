// Package metrics defines the Prometheus metrics for leaddesk, covering rate
// limiting, the admin session guard, logins, lead intake and export, audit
// delivery, client log ingestion and mail.
package metrics
