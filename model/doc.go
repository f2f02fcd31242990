// Package model defines the provider‑agnostic completion contract used by the
// engine to execute an assembled prompt, plus helpers shared by the provider
// adapters (gemini, anthropic, openai).
//
// Core goals:
//   - One blocking Complete call per turn; no streaming
//   - Provider failures classified into stable kinds (transport_error,
//     quota_exceeded, timeout) so the engine can surface them verbatim
//   - Never retry internally: a retried quota failure would be charged twice
//   - Lightweight mocking for tests (MockModel)
package model
