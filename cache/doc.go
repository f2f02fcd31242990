// Package cache houses concrete implementations of core.ContextCache.
//
// InMemoryCache keeps every session's problem description, code context and
// attached files in process memory. Growth is bounded: a per-session and a
// global byte ceiling are enforced and attachments that would cross either
// are rejected per file (cache_full) instead of evicting or truncating
// already cached material.
package cache
