// Package secretstore implements C2: a capability provider that persists
// opaque ciphertext under a reference key, backed by a passphrase-derived
// master key instead of reaching into a real OS keychain — the nostling
// core engine treats keychain access as a pluggable concern other
// implementations of this interface can swap in.
package secretstore

import "errors"

// ErrDecryptionFailure is returned by Get only when a stored record exists
// but fails to decrypt under the current master key — e.g. after a machine
// migration invalidated the key. A missing reference is not an error; see
// Get's (string, bool, error) contract.
var ErrDecryptionFailure = errors.New("secretstore: decryption failed")

// ErrSecureStorageUnavailable is returned at construction time when the
// backing store cannot be initialized at all (e.g. the data directory is
// not writable). This is an init-time fatal condition, not a per-call one.
var ErrSecureStorageUnavailable = errors.New("secretstore: secure storage unavailable")

// Store is the capability surface spec §4.2 describes. Implementations
// hand plaintext to an OS-backed (or OS-equivalent) encryption primitive
// and persist only the resulting ciphertext.
type Store interface {
	// Save persists plaintext under ref, returning ref unchanged for
	// call-chaining convenience. Calling Save twice with the same
	// (ref, plaintext) pair is idempotent: both calls leave Get(ref)
	// returning plaintext.
	Save(ref, plaintext string) (string, error)

	// Get returns (plaintext, true, nil) when ref exists and decrypts
	// cleanly, (\"\", false, nil) when ref does not exist, and
	// (\"\", false, ErrDecryptionFailure) when ref exists but cannot be
	// decrypted under the current master key.
	Get(ref string) (plaintext string, ok bool, err error)

	// Delete removes ref. Deleting a ref that does not exist is not an
	// error.
	Delete(ref string) error

	// ListRefs returns every reference currently stored, in no
	// particular order.
	ListRefs() ([]string, error)
}
