package identity

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// EncodeNpub encodes a 32-byte hex pubkey as a bech32 "npub1..." string.
func EncodeNpub(pubkeyHex string) (string, error) {
	return encodeBech32("npub", pubkeyHex)
}

// EncodeNsec encodes a 32-byte hex secret key as a bech32 "nsec1..." string.
func EncodeNsec(secretHex string) (string, error) {
	return encodeBech32("nsec", secretHex)
}

func encodeBech32(hrp, payloadHex string) (string, error) {
	raw, err := hex.DecodeString(payloadHex)
	if err != nil || len(raw) != 32 {
		return "", ErrInvalidEncoding
	}
	converted, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", ErrInvalidEncoding
	}
	encoded, err := bech32.Encode(hrp, converted)
	if err != nil {
		return "", ErrInvalidEncoding
	}
	return encoded, nil
}

// DecodeNpub strictly decodes a bech32 "npub1..." string to a 32-byte hex
// pubkey. Anything other than a lowercase "npub1" prefix with an exact
// 32-byte payload is rejected.
func DecodeNpub(npub string) (string, error) {
	return decodeBech32("npub", npub)
}

// DecodeNsec strictly decodes a bech32 "nsec1..." string to a 32-byte hex
// secret key.
func DecodeNsec(nsec string) (string, error) {
	return decodeBech32("nsec", nsec)
}

func decodeBech32(expectedHRP, s string) (string, error) {
	if s != strings.ToLower(s) {
		return "", ErrInvalidEncoding
	}
	if !strings.HasPrefix(s, expectedHRP+"1") {
		return "", ErrInvalidEncoding
	}
	hrp, data, err := bech32.Decode(s)
	if err != nil || hrp != expectedHRP {
		return "", ErrInvalidEncoding
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil || len(raw) != 32 {
		return "", ErrInvalidEncoding
	}
	return hex.EncodeToString(raw), nil
}
