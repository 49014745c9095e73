// Package lyreclient is the client-side auth and session lifecycle layer for
// the Lyrebird audio platform: login, registration, token refresh, idle
// timeout, attempt rate limiting, CSRF header management, and activity
// telemetry, assembled behind one [Client].
//
// A Client is built once through [Builder.Build] and is safe for concurrent
// use. Host integration points (activity signals, the session-warning
// prompt, telemetry delivery, credential storage) are injected interfaces,
// so the package runs identically under a desktop shell, an embedded
// webview bridge, or plain tests.
//
// # Architecture boundaries
//
// lyreclient is the public surface. It exposes [Client], [Builder],
// [Config], and value types (User, Info snapshots, telemetry aliases). All
// internal coordination — bootstrap and credential flows, rate limiting,
// telemetry queuing — lives under internal/ and is never exported directly.
//
// # What this package must NOT do
//
//   - Render UI. Warning prompts and redirects are caller callbacks.
//   - Trust stored credentials. Every restored session is confirmed against
//     the backend before services start, except during explicit degraded
//     windows after backend or network failures.
//   - Import any sub-package that re-imports lyreclient (no import cycles).
package lyreclient
