package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	schemaVersion = 1
	masterKeySize = 32
)

// additionalData binds ciphertexts to this file format.
var additionalData = []byte("copywriter-secrets-v1")

var (
	ErrInvalidMasterKey = errors.New("invalid master key length")
	ErrUndecryptable    = errors.New("secrets file cannot be decrypted")
)

// Store keeps the Gemini API key encrypted at rest with a local master key.
// The master key is re-read on every access so a rotated key file is noticed.
type Store struct {
	secretsPath string
	keyPath     string
	mu          sync.Mutex
	now         func() time.Time
}

type Secrets struct {
	SchemaVersion int       `json:"schema_version"`
	GoogleKey     string    `json:"google_api_key,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

type sealed struct {
	SchemaVersion int    `json:"schema_version"`
	Nonce         string `json:"nonce"`
	Ciphertext    string `json:"ciphertext"`
}

func NewStore(secretsPath, keyPath string) *Store {
	return &Store{secretsPath: secretsPath, keyPath: keyPath, now: time.Now}
}

func (s *Store) GetGoogleKey() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.read()
	if err != nil {
		return "", err
	}
	return current.GoogleKey, nil
}

func (s *Store) SetGoogleKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.read()
	if err != nil && !errors.Is(err, ErrUndecryptable) {
		return err
	}
	if current == nil {
		// An unreadable file is replaced rather than blocking a new key.
		current = &Secrets{SchemaVersion: schemaVersion}
	}
	current.GoogleKey = strings.TrimSpace(key)
	current.UpdatedAt = s.now().UTC()
	return s.write(current)
}

func (s *Store) ClearGoogleKey() error {
	return s.SetGoogleKey("")
}

// HasGoogleKey never returns the key itself, so it is safe for status payloads.
func (s *Store) HasGoogleKey() bool {
	key, err := s.GetGoogleKey()
	return err == nil && key != ""
}

func (s *Store) read() (*Secrets, error) {
	data, err := os.ReadFile(s.secretsPath)
	if errors.Is(err, os.ErrNotExist) {
		return &Secrets{SchemaVersion: schemaVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	var box sealed
	if err := json.Unmarshal(data, &box); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	plain, err := open(aead, box)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	var out Secrets
	if err := json.Unmarshal(plain, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	if out.SchemaVersion == 0 {
		out.SchemaVersion = schemaVersion
	}
	return &out, nil
}

func open(aead cipher.AEAD, box sealed) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(box.Nonce)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("bad nonce size")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(box.Ciphertext)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, additionalData)
}

// write replaces the secrets file atomically.
func (s *Store) write(current *Secrets) error {
	aead, err := s.aead()
	if err != nil {
		return err
	}
	plain, err := json.Marshal(current)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(sealed{
		SchemaVersion: schemaVersion,
		Nonce:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:    base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, additionalData)),
	}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.secretsPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".secrets-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.secretsPath)
}

func (s *Store) aead() (cipher.AEAD, error) {
	key, err := s.masterKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// masterKey reads the key file, creating it with fresh random bytes on first use.
func (s *Store) masterKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyPath)
	switch {
	case err == nil:
		if len(key) != masterKeySize {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidMasterKey, s.keyPath, len(key))
		}
		return key, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read master key: %w", err)
	}
	key = make([]byte, masterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0o755); err != nil {
		return nil, err
	}
	// O_EXCL: a concurrent first run must not overwrite a key already in use.
	f, err := os.OpenFile(s.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		return s.masterKey()
	}
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(key); err != nil {
		_ = f.Close()
		return nil, err
	}
	return key, f.Close()
}
