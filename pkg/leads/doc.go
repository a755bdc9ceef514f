// Package leads implements lead intake from the public site and the admin
// lead desk: listing with filters and pagination, editing, deletion, CSV and
// XLSX export and dashboard statistics.
package leads
