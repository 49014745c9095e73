// Package session enforces the idle-timeout policy on the client side.
//
// # State machine
//
// Inactive -> Active (warning pending) -> Active (warning shown) -> Expired.
// User activity resets the clock; at timeout-minus-warning a continue/end
// prompt fires once; at timeout the session expires and the owner's expiry
// hook runs. A periodic check re-derives elapsed idle time independently of
// the scheduled timers to survive suspended hosts, and re-validates the
// access token against the backend roughly every ten minutes of idle time.
//
// # Architecture boundaries
//
// This package owns timers, throttling, and the warning/expiry decisions. It
// does NOT clear credentials on Stop — explicit logout is the caller's
// job. On expiry it only invokes the injected hook.
//
// # What this package must NOT do
//
//   - Touch a UI runtime: activity arrives through an injected [Source] and
//     the warning through an injected [Prompter].
//   - Import the root lyreclient package.
//   - Leak timers: every reschedule cancels the previous warning/timeout pair.
package session
