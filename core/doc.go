// Package core provides the foundational domain types and contracts used by
// consultmesh:
//
//   - Sessions and turns (the multi-turn conversation record)
//   - The context cache contract (problem description, code context, files)
//   - The process-wide RateLimiter guarding the upstream quota
//   - The error taxonomy (Kind, Error, FileError) shared by every component
//   - Request / result shapes for the consult operation
//
// Concrete stores live in the session and cache packages; orchestration lives
// in engine. Keeping only contracts here lets callers swap backends without
// touching the engine.
package core
