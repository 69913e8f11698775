// Package credstore provides persistent storage abstractions for StoredSafe
// credential records.
//
// Supports three storage backends with different security and deployment tradeoffs:
//   - File: the classic ~/.storedsafe-client.rc file with atomic writes and secure permissions
//   - Env: read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// Login flows require writable storage (file or keyring), while a statically
// provisioned token can use any backend including read-only env storage.
package credstore
