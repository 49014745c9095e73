// Package monitor implements client-side activity and security event tracking.
//
// # Components
//
//   - [Monitor] — bounded in-memory activity/security queues with a periodic
//     flush loop and immediate out-of-band flushing for critical events.
//   - [Sink] — interface for batch consumers (HTTP telemetry, channel, JSON
//     writer, no-op).
//   - [Source] — host signal feed (visibility, navigation, input, errors,
//     connectivity) so the tracker never touches a UI runtime directly.
//   - [Event] / [SecurityEvent] — sanitized records; sensitive detail keys are
//     redacted before they ever reach a queue.
//
// # Architecture boundaries
//
// This package owns buffering, sanitization, and sink delivery. It does NOT
// decide when monitoring runs — the root client starts and stops it around
// the authenticated session.
//
// # What this package must NOT do
//
//   - Store unsanitized detail values, even transiently in its queues.
//   - Block callers on flushing: a failed flush leaves queues intact for the
//     next tick and is otherwise swallowed.
//   - Import the root lyreclient package.
package monitor
