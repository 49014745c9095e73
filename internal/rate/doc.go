// Package rate provides the client-side attempt limiter used to gate login,
// registration, and generic API actions before any network call is made.
//
// # Window semantics
//
// Per-key windows with lockout: a key accumulates attempts inside a window
// anchored at its first attempt; reaching the configured maximum sets a block
// deadline and all further checks fail until it passes. State is in-memory
// only — this is a client policy, not a server budget.
//
// # What this package must NOT do
//
//   - Perform network or storage I/O.
//   - Return errors. Absence of state always means "allowed".
//   - Be imported outside the lyreclient module.
package rate
