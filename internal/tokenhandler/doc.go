// Package tokenhandler orchestrates the token lifecycle: read the cached
// credential, verify it is still alive, log in again when it is not, and
// persist the fresh token.
//
// The facade (Handler) serializes the whole read-check-login-write sequence
// both in-process (singleflight) and across processes on the same machine
// (an advisory file lock next to the credential file), so concurrent
// invocations share one login instead of authenticating twice.
package tokenhandler
