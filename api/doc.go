// Package api is the HTTP transport for the Lyrebird backend.
//
// Every request is built from scratch per attempt: the bearer token is read
// freshly from its source, anti-forgery headers are re-applied, and the body
// is replayed from a buffered payload. Failures always surface as *[Error]
// with a stable machine code.
//
// # Refresh coordination
//
// A 401 response (other than a revoked session) triggers one token refresh
// and one retry. Concurrent 401s across goroutines coalesce into a single
// refresh through singleflight; the retried request never triggers another
// refresh, so a persistently broken token terminates after two attempts.
//
// # What this package must NOT do
//
//   - Persist tokens. Reading is delegated to [TokenSource], writing to the
//     injected [Refresher].
//   - Decide what a revoked session means. It only reports via OnRevoked.
//   - Validate input. Callers validate before reaching the network.
package api
