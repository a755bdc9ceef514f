// Package audit records security-relevant actions (admin logins, lead changes,
// exports, client error reports) and fans them out asynchronously to the
// configured sinks: structured log, the audit_logs table and Kafka.
package audit
