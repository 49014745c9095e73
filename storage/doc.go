// Package storage provides the key-value scopes backing credential and
// cached-state persistence for the lyreclient SDK.
//
// Two scopes exist per client: a persistent scope (survives process restarts,
// chosen by "remember me") and a session scope (lives as long as the host
// process). Exactly one scope holds the credential set at a time; reads check
// the persistent scope first.
//
// # What this package must NOT do
//
//   - Interpret stored values. Encoding and key ownership belong to callers.
//   - Perform network I/O outside of Store method calls.
package storage
