// Package manifest implements C7: a deterministic canonical-JSON signing
// and verification scheme for release file lists, grounded on the
// teacher's ActivityPub RSA key-pair handling adapted to this domain.
package manifest

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
)

// FileEntry is one signed file reference. SHA256 is 64 lowercase hex
// characters.
type FileEntry struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// Manifest is the signed release descriptor, per spec §4.7. Version is a
// free-form, opaque string.
type Manifest struct {
	Version   string      `json:"version"`
	Files     []FileEntry `json:"files"`
	Signature string      `json:"signature,omitempty"`
}

// body is the subset of Manifest that the signature covers — every field
// except Signature itself.
type body struct {
	Version string      `json:"version"`
	Files   []FileEntry `json:"files"`
}

// canonicalize serializes {version, files} with no surrounding whitespace
// and without reordering files, matching the wire format spec §4.7 and §6
// require byte-for-byte.
func canonicalize(version string, files []FileEntry) ([]byte, error) {
	buf, err := json.Marshal(body{Version: version, Files: files})
	if err != nil {
		return nil, fmt.Errorf("manifest: canonicalize: %w", err)
	}
	// encoding/json never inserts whitespace without Indent, but strip any
	// stray newline defensively so the signed form is exactly what ships.
	return bytes.TrimSpace(buf), nil
}

// Sign computes the canonical form of (version, files) and signs it with
// privateKey, returning a fully populated Manifest.
func Sign(privateKey *rsa.PrivateKey, version string, files []FileEntry) (*Manifest, error) {
	canonical, err := canonicalize(version, files)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(canonical)
	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("manifest: sign: %w", err)
	}
	return &Manifest{
		Version:   version,
		Files:     files,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// Verify recomputes the canonical form of m's version and files and checks
// the signature against publicKey. A malformed signature, or any mutation
// of version or any file entry, yields ok=false rather than an error —
// verification failure is an expected outcome, not a fault.
func Verify(publicKey *rsa.PublicKey, m *Manifest) (ok bool) {
	canonical, err := canonicalize(m.Version, m.Files)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(canonical)
	return rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], sig) == nil
}

// KeyPair holds the RSA key pair used to sign manifests.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// LoadOrGenerateKeyPair loads a 2048-bit RSA key pair from PEM files,
// generating and persisting a fresh one on first run.
func LoadOrGenerateKeyPair(privatePath, publicPath string) (*KeyPair, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest: read private key: %w", err)
		}
		slog.Info("manifest signing key not found, generating new one", "private", privatePath, "public", publicPath)
		return generateAndSaveKeyPair(privatePath, publicPath)
	}

	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: read public key: %w", err)
	}
	return parseKeyPair(privPEM, pubPEM)
}

func generateAndSaveKeyPair(privatePath, publicPath string) (*KeyPair, error) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("manifest: generate RSA key: %w", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(privKey)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	if err := os.WriteFile(privatePath, privPEM, 0600); err != nil {
		return nil, fmt.Errorf("manifest: write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, pubPEM, 0644); err != nil {
		return nil, fmt.Errorf("manifest: write public key: %w", err)
	}

	return parseKeyPair(privPEM, pubPEM)
}

func parseKeyPair(privPEM, pubPEM []byte) (*KeyPair, error) {
	privBlock, _ := pem.Decode(privPEM)
	if privBlock == nil {
		return nil, fmt.Errorf("manifest: decode private key PEM")
	}
	privKey, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("manifest: parse private key: %w", err)
	}

	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("manifest: decode public key PEM")
	}
	pubInterface, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("manifest: parse public key: %w", err)
	}
	pubKey, ok := pubInterface.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("manifest: not an RSA public key")
	}

	return &KeyPair{Private: privKey, Public: pubKey}, nil
}

// HashFile computes the 64-char lowercase hex SHA-256 digest of data, the
// form FileEntry.SHA256 expects.
func HashFile(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
