// Package ratelimit admits or rejects inbound requests per client address
// using fixed windows.
//
// Each client owns a window that starts at its first admitted request. Within
// a window at most Max requests are admitted; rejected requests do not count.
// Once Window has elapsed since the start, the next request opens a new
// window.
//
// Two backends implement Limiter: Memory (one process) and Redis (shared by
// all replicas, the read-modify-write runs as a single Lua script).
// Middleware applies a Limiter to every HTTP request.
package ratelimit
