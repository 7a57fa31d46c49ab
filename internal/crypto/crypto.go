package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
)

// sealedPrefix marks values produced by Encrypt. Stored values without it
// are plaintext from before a key was configured.
const sealedPrefix = "gv1:"

var _ ports.Vault = (*Vault)(nil)

// ErrNoKey is returned when a sealed value is read without a configured key.
var ErrNoKey = errors.New("vault: sealed value but no key configured")

// Vault seals secret values with AES-256-GCM.
type Vault struct {
	gcm cipher.AEAD
}

// NewVault creates a Vault with the given 32-byte key.
// If the key is empty, a passthrough vault is returned that stores values as plaintext.
func NewVault(key []byte) (*Vault, error) {
	if len(key) == 0 {
		return &Vault{}, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Vault{gcm: gcm}, nil
}

// ParseKey accepts a key as 64 hex characters, standard base64 or 32 raw
// bytes.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if len(s) == 32 {
		return []byte(s), nil
	}
	return nil, errors.New("vault key must be 32 bytes (raw, hex or base64)")
}

// FromConfig parses key and builds a Vault.
func FromConfig(key string) (*Vault, error) {
	b, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	return NewVault(b)
}

// Sealing reports whether Encrypt actually encrypts.
func (v *Vault) Sealing() bool { return v.gcm != nil }

func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v.gcm == nil {
		return plaintext, nil
	}
	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := v.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) Decrypt(ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, sealedPrefix)
	if !ok {
		return ciphertext, nil
	}
	if v.gcm == nil {
		return "", ErrNoKey
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	nonceSize := v.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ct := data[:nonceSize], data[nonceSize:]
	plaintext, err := v.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
