// Package api hosts the HTTP server: the gin engine with its global
// middleware, operational endpoints, the admin UI and the registration of
// every API controller under /api.
package api
