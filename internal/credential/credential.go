// Package credential keeps backend API keys out of the settings table in
// clear text. Keys are sealed with AES-256-GCM under a key derived from the
// current machine and user.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// SealedPrefix marks a stored value as sealed.
const SealedPrefix = "sealed:v1:"

var (
	ErrOpenFailed    = errors.New("cannot open sealed value")
	ErrInvalidFormat = errors.New("invalid sealed format")
)

// KV is the settings table secrets are stored in. *store.SQLiteStore
// implements it.
type KV interface {
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
}

// Vault seals and opens secrets.
type Vault struct {
	aead cipher.AEAD
}

// NewVault creates a vault keyed to this machine and user, so sealed values
// copied elsewhere can't be opened.
func NewVault() (*Vault, error) {
	return newVault(machineKey())
}

func newVault(key []byte) (*Vault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal returns a storable form of secret. The empty string stays empty.
func (v *Vault) Seal(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(secret), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is,
// so keys written by hand still work.
func (v *Vault) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidFormat, err)
	}

	n := v.aead.NonceSize()
	if len(raw) < n+v.aead.Overhead() {
		return "", ErrInvalidFormat
	}

	plain, err := v.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// Put stores value under key, sealing it first when key names a secret.
func (v *Vault) Put(kv KV, key, value string) error {
	if IsSecretKey(key) {
		sealed, err := v.Seal(value)
		if err != nil {
			return err
		}
		value = sealed
	}
	return kv.SetConfig(key, value)
}

// Get reads key and opens it if sealed.
func (v *Vault) Get(kv KV, key string) (string, error) {
	stored, err := kv.GetConfig(key)
	if err != nil {
		return "", err
	}
	return v.Open(stored)
}

// Lookup reads key from kv and falls back to the environment variable env
// when the table has no value.
func (v *Vault) Lookup(kv KV, key, env string) (string, error) {
	if kv != nil {
		val, err := v.Get(kv, key)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", key, err)
		}
		if val != "" {
			return val, nil
		}
	}
	return os.Getenv(env), nil
}

func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// IsSecretKey reports whether a settings key holds a secret, e.g.
// "openai_api_key".
func IsSecretKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), "api_key")
}

// machineKey hashes stable machine and user identifiers into a 32-byte key.
func machineKey() []byte {
	var b strings.Builder

	hostname, _ := os.Hostname()
	b.WriteString(hostname)
	home, _ := os.UserHomeDir()
	b.WriteString(home)
	b.WriteString(runtime.GOOS)
	b.WriteString(runtime.GOARCH)
	if uid := os.Getuid(); uid != -1 {
		fmt.Fprintf(&b, "uid:%d", uid)
	}
	b.WriteString(os.Getenv("USER"))
	b.WriteString("memochat-vault-v1")

	sum := sha256.Sum256([]byte(b.String()))
	return sum[:]
}

// Mask hides all but the edges of a secret for display.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
