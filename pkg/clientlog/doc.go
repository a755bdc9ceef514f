// Package clientlog accepts log lines and error reports sent by the browser
// and scrubs them before they reach the server log and the audit trail.
package clientlog
