// Package cli implements the leaddesk command tree: serve, admin user
// management and version.
package cli
