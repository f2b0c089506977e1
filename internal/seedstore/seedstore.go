// Package seedstore implements C3: a thin, identity-keyed layer over
// secretstore for the 64-byte HD seed used to derive a Nostr identity's
// keypair.
package seedstore

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/941design/nostling/internal/secretstore"
)

// ErrInvalidSeed is returned by SaveSeed when the supplied value is not
// exactly 128 hex characters.
var ErrInvalidSeed = errors.New("seedstore: seed must be exactly 128 hex characters")

var hexSeedPattern = regexp.MustCompile(`^[0-9a-fA-F]{128}$`)

// SeedStore wraps a secretstore.Store, keyed by identity id.
type SeedStore struct {
	store secretstore.Store
}

// New wraps store as a SeedStore.
func New(store secretstore.Store) *SeedStore {
	return &SeedStore{store: store}
}

func seedRef(identityID string) string {
	return "nostr-seed:" + identityID
}

func legacyMnemonicRef(identityID string) string {
	return "nostr-mnemonic:" + identityID
}

// SaveSeed validates and persists a 64-byte HD seed (128 hex chars) for
// identityID.
func (s *SeedStore) SaveSeed(identityID, seedHex string) error {
	if !hexSeedPattern.MatchString(seedHex) {
		return ErrInvalidSeed
	}
	if _, err := s.store.Save(seedRef(identityID), seedHex); err != nil {
		return fmt.Errorf("seedstore: save: %w", err)
	}
	return nil
}

// GetSeed returns the seed for identityID. If no seed-keyed record exists
// but a legacy mnemonic-keyed record does, per spec §6 that legacy record
// is read and, on this successful read, migrated forward to the seed-keyed
// reference so subsequent reads no longer depend on the legacy key.
//
// GetSeed itself continues to return the legacy record's raw value
// unmodified — migration only changes where it is stored, never what it
// contains.
func (s *SeedStore) GetSeed(identityID string) (string, bool, error) {
	seed, ok, err := s.store.Get(seedRef(identityID))
	if err != nil {
		return "", false, fmt.Errorf("seedstore: get: %w", err)
	}
	if ok {
		return seed, true, nil
	}

	legacy, ok, err := s.store.Get(legacyMnemonicRef(identityID))
	if err != nil {
		return "", false, fmt.Errorf("seedstore: get legacy: %w", err)
	}
	if !ok {
		return "", false, nil
	}

	if _, err := s.store.Save(seedRef(identityID), legacy); err == nil {
		_ = s.store.Delete(legacyMnemonicRef(identityID))
	}
	return legacy, true, nil
}

// HasSeed MUST be equivalent to GetSeed(identityID) returning ok=true.
func (s *SeedStore) HasSeed(identityID string) (bool, error) {
	_, ok, err := s.GetSeed(identityID)
	return ok, err
}

// DeleteSeed removes both the seed-keyed and any lingering legacy
// mnemonic-keyed record for identityID.
func (s *SeedStore) DeleteSeed(identityID string) error {
	if err := s.store.Delete(seedRef(identityID)); err != nil {
		return fmt.Errorf("seedstore: delete: %w", err)
	}
	if err := s.store.Delete(legacyMnemonicRef(identityID)); err != nil {
		return fmt.Errorf("seedstore: delete legacy: %w", err)
	}
	return nil
}
