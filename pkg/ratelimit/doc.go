// Package ratelimit provides fixed-window request limiting for the public write
// endpoints (lead submission, client logs) and the admin login, plus a
// token-bucket throttle for the authenticated admin API. Limiters are injected
// components with an explicit Stop; the in-memory store sweeps expired windows
// in the background and a Redis store is available for multi-instance setups.
package ratelimit
