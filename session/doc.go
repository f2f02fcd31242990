// Package session houses concrete implementations of core.SessionStore.
// The interface itself (and the Session struct) live in the core package so
// the engine never depends on a concrete backend.
//
// InMemoryStore is the reference backend: sessions live for the lifetime of
// the process and are dropped by explicit deletion or by Sweep once idle
// longer than the TTL.
package session
