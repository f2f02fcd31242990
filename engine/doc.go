// Package engine implements the session manager behind consultmesh.
//
// The Engine is the single entry point for a consultation turn. It glues
// together the session store, the context cache, the shared rate limiter,
// the prompt assembler and the model client, and owns the background sweep
// that expires idle sessions.
//
// # Turn lifecycle
//
//  1. Validate the request (question, approach, initial context)
//  2. Take the per-session turn lock (queue or reject with session_busy)
//  3. Create the session and cache its initial context (new sessions only)
//  4. Read newly attached files into a staging set (per-file failures are collected)
//  5. Assemble the prompt; oversized prompts fail with too_large
//  6. Acquire the rate limiter and call the model under the turn timeout
//  7. Commit staged files, append the turn, touch the session
//
// Nothing is mutated before step 7, so any failure leaves the session exactly
// as it was and the caller can retry. A new session whose first turn fails is
// removed again.
//
// # Concurrency
//
// Different sessions run fully in parallel. Turns on the same session are
// serialized with a weighted semaphore per session id, so there is never more
// than one outbound model call per session. The store and cache locks are
// only held for bookkeeping; file reads and model calls happen outside them.
//
// # Expiry
//
// Start launches a sweeper driven by the configured clock. Each tick removes
// sessions idle for longer than Config.SessionTTL together with their cached
// context. Sessions with a turn running or queued are skipped. Close stops it.
//
// Example:
//
//	eng, err := engine.New(func(o *engine.Options) {
//	    o.Model = gemini
//	    o.Logger = logger
//	})
//	if err != nil {
//	    return err
//	}
//	eng.Start(ctx)
//	defer eng.Close()
//
//	res, err := eng.Consult(ctx, core.ConsultRequest{
//	    ProblemDescription: "Login fails after upgrade",
//	    CodeContext:        code,
//	    Question:           "Why does the session cookie get dropped?",
//	})
package engine
