package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters, carried forward from the NIP-49-shaped parameters an
// earlier Nostr signer implementation used for passphrase stretching.
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
	rootKeyLen = 32
	saltLen    = 16
)

const masterSecretFile = "master.secret"
const saltFile = "master.salt"

// FileStore is a file-backed Store. It derives a root key from either a
// caller-supplied passphrase or (when none is supplied) a randomly
// generated master secret persisted once under 0600 permissions, stretches
// it with scrypt, and derives a distinct AES-256-GCM key per reference via
// HKDF-SHA256 — the same domain-separated-info-label technique used
// elsewhere in this codebase for per-entity derived keys, here keyed by
// reference instead of by actor id.
type FileStore struct {
	dir     string
	rootKey []byte
	mu      sync.Mutex
}

type record struct {
	Ref        string `json:"ref"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// NewFileStore opens (or initializes) a file-backed secret store rooted at
// dataDir/secrets. An empty passphrase causes a random master secret to be
// generated on first use and reused on subsequent opens.
func NewFileStore(dataDir, passphrase string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "secrets")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create secrets dir: %v", ErrSecureStorageUnavailable, err)
	}

	salt, err := loadOrCreateSalt(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecureStorageUnavailable, err)
	}

	secretBytes := []byte(passphrase)
	if passphrase == "" {
		secretBytes, err = loadOrCreateMasterSecret(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecureStorageUnavailable, err)
		}
	}

	rootKey, err := scrypt.Key(secretBytes, salt, scryptN, scryptR, scryptP, rootKeyLen)
	if err != nil {
		return nil, fmt.Errorf("%w: scrypt: %v", ErrSecureStorageUnavailable, err)
	}

	return &FileStore{dir: dir, rootKey: rootKey}, nil
}

func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)
	if existing, err := os.ReadFile(path); err == nil {
		return existing, nil
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}

func loadOrCreateMasterSecret(dir string) ([]byte, error) {
	path := filepath.Join(dir, masterSecretFile)
	if existing, err := os.ReadFile(path); err == nil {
		return existing, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate master secret: %w", err)
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("write master secret: %w", err)
	}
	return secret, nil
}

func (s *FileStore) derivedKey(ref string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.rootKey, nil, []byte("nostling-secret:"+ref))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf read: %w", err)
	}
	return key, nil
}

func (s *FileStore) pathFor(ref string) string {
	digest := sha256.Sum256([]byte(ref))
	return filepath.Join(s.dir, hex.EncodeToString(digest[:])+".json")
}

// Save implements Store.
func (s *FileStore) Save(ref, plaintext string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.derivedKey(ref)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("secretstore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("secretstore: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secretstore: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	rec := record{
		Ref:        ref,
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("secretstore: marshal record: %w", err)
	}
	if err := os.WriteFile(s.pathFor(ref), data, 0600); err != nil {
		return "", fmt.Errorf("secretstore: write record: %w", err)
	}
	return ref, nil
}

// Get implements Store.
func (s *FileStore) Get(ref string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pathFor(ref))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("secretstore: read record: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false, ErrDecryptionFailure
	}
	nonce, err := hex.DecodeString(rec.Nonce)
	if err != nil {
		return "", false, ErrDecryptionFailure
	}
	ciphertext, err := hex.DecodeString(rec.Ciphertext)
	if err != nil {
		return "", false, ErrDecryptionFailure
	}

	key, err := s.derivedKey(ref)
	if err != nil {
		return "", false, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", false, ErrDecryptionFailure
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", false, ErrDecryptionFailure
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", false, ErrDecryptionFailure
	}
	return string(plaintext), true, nil
}

// Delete implements Store. Deleting a missing ref is not an error.
func (s *FileStore) Delete(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.pathFor(ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("secretstore: delete record: %w", err)
	}
	return nil
}

// ListRefs implements Store.
func (s *FileStore) ListRefs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("secretstore: read dir: %w", err)
	}
	refs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == saltFile || entry.Name() == masterSecretFile {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		refs = append(refs, rec.Ref)
	}
	return refs, nil
}
