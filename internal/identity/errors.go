package identity

import "errors"

// Error kinds for C1, per spec §7. Messages never contain secret material.
var (
	// ErrInvalidEncoding covers malformed bech32, malformed hex, and
	// malformed BIP-32 derivation paths.
	ErrInvalidEncoding = errors.New("identity: invalid encoding")
	// ErrInvalidChecksum covers a BIP-39 mnemonic whose checksum word
	// doesn't match its entropy.
	ErrInvalidChecksum = errors.New("identity: invalid mnemonic checksum")
	// ErrInvalidAccountIndex covers a negative account index.
	ErrInvalidAccountIndex = errors.New("identity: account index must be non-negative")
	// ErrEmptyContent is returned by gift-wrap encryption of an empty
	// plaintext.
	ErrEmptyContent = errors.New("identity: content must not be empty")
	// ErrInvalidRecipient is returned when a recipient pubkey is not 64
	// characters long. A 64-character value that is not a valid x-only
	// public key fails later with a wrapped error instead.
	ErrInvalidRecipient = errors.New("identity: invalid recipient pubkey")
)
