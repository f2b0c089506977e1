// Package identity implements C1: keypair derivation, NIP-04/NIP-17 envelope
// crypto, event signing, and bech32 codecs for Nostr identities.
package identity

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

// Keypair is the (secret key, x-only pubkey, npub) triple described in
// spec §3. The secret key is held only as long as the caller keeps this
// value alive; callers are responsible for not persisting it.
type Keypair struct {
	SecretKeyHex string // 64 lowercase hex chars
	PubkeyHex    string // 64 lowercase hex chars, x-only
	Npub         string // bech32 "npub1..."
}

// MnemonicKeypair extends Keypair with the derivation metadata spec §4.1
// requires be surfaced alongside the keys.
type MnemonicKeypair struct {
	Keypair
	SeedHex string // 128 lowercase hex chars (64 bytes)
	Path    string
}

// GenerateKeypair produces a fresh keypair from the OS CSPRNG.
func GenerateKeypair() (*Keypair, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("identity: read random secret: %w", err)
	}
	nsec, err := EncodeNsec(hex.EncodeToString(secret[:]))
	if err != nil {
		return nil, err
	}
	return DeriveFromNsec(nsec)
}

// DeriveFromNsec decodes a bech32 nsec (strict 32-byte payload) and derives
// the corresponding x-only pubkey and npub.
func DeriveFromNsec(nsec string) (*Keypair, error) {
	secretHex, err := DecodeNsec(nsec)
	if err != nil {
		return nil, err
	}
	return keypairFromSecretHex(secretHex)
}

func keypairFromSecretHex(secretHex string) (*Keypair, error) {
	secretBytes, err := hex.DecodeString(secretHex)
	if err != nil || len(secretBytes) != 32 {
		return nil, ErrInvalidEncoding
	}
	privKey, _ := btcec.PrivKeyFromBytes(secretBytes)
	pubkeyHex := hex.EncodeToString(schnorr.SerializePubKey(privKey.PubKey()))
	npub, err := EncodeNpub(pubkeyHex)
	if err != nil {
		return nil, err
	}
	return &Keypair{
		SecretKeyHex: secretHex,
		PubkeyHex:    pubkeyHex,
		Npub:         npub,
	}, nil
}

// DeriveFromMnemonic implements spec §4.1's mnemonic derivation:
// BIP-39 wordlist + checksum validation, PBKDF2-HMAC-SHA512 (2048 rounds,
// salt "mnemonic"+passphrase) to a 64-byte seed, then BIP-32 derivation at
// the given path (default m/44'/1237'/{accountIndex}'/0/0).
func DeriveFromMnemonic(mnemonic, passphrase string, accountIndex int, path string) (*MnemonicKeypair, error) {
	if accountIndex < 0 {
		return nil, ErrInvalidAccountIndex
	}
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidChecksum
	}

	seed := pbkdf2.Key([]byte(mnemonic), []byte("mnemonic"+passphrase), 2048, 64, sha512.New)
	seedHex := hex.EncodeToString(seed)

	if path == "" {
		path = fmt.Sprintf("m/44'/1237'/%d'/0/0", accountIndex)
	}
	segments, err := parseDerivationPath(path)
	if err != nil {
		return nil, err
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("identity: derive master key: %w", err)
	}
	extKey := master
	for _, seg := range segments {
		extKey, err = extKey.Derive(seg)
		if err != nil {
			return nil, fmt.Errorf("identity: derive child key: %w", err)
		}
	}

	ecPriv, err := extKey.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("identity: extract secp256k1 key: %w", err)
	}
	secretHex := hex.EncodeToString(ecPriv.Serialize())

	kp, err := keypairFromSecretHex(secretHex)
	if err != nil {
		return nil, err
	}

	return &MnemonicKeypair{
		Keypair: *kp,
		SeedHex: seedHex,
		Path:    path,
	}, nil
}

// parseDerivationPath parses a BIP-32 path like "m/44'/1237'/0'/0/0" into
// hdkeychain child-derivation indices, honoring apostrophe-denoted hardened
// segments.
func parseDerivationPath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, ErrInvalidEncoding
	}
	segments := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h") || strings.HasSuffix(p, "H")
		numPart := strings.TrimRight(p, "'hH")
		n, err := strconv.ParseUint(numPart, 10, 32)
		if err != nil {
			return nil, ErrInvalidEncoding
		}
		idx := uint32(n)
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		segments = append(segments, idx)
	}
	return segments, nil
}

// GenerateMnemonic produces a fresh 12-word BIP-39 mnemonic from 128 bits of
// CSPRNG entropy. Not required by spec §4.1 but a natural companion to
// DeriveFromMnemonic for identity creation flows.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("identity: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("identity: generate mnemonic: %w", err)
	}
	return mnemonic, nil
}
