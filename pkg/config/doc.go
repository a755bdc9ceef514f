// Package config loads the server configuration from a YAML file, overlays
// environment variables (optionally from a .env file) and fills defaults.
package config
