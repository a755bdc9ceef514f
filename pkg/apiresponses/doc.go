// Package apiresponses provides the uniform {ok:false, code, error} HTTP
// response helpers shared by every controller, so handlers never hand-craft
// error bodies.
package apiresponses
