package credential

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestVault_SealOpen(t *testing.T) {
	vault, err := NewVault()
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}

	testCases := []struct {
		name   string
		secret string
	}{
		{"empty string", ""},
		{"openai key", "sk-1234567890abcdef"},
		{"long key", strings.Repeat("a", 1000)},
		{"unicode content", "api-key-日本語-🔑"},
		{"special chars", "key!@#$%^&*()_+-=[]{}|;':\",./<>?"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := vault.Seal(tc.secret)
			if err != nil {
				t.Fatalf("seal failed: %v", err)
			}

			if tc.secret == "" {
				if sealed != "" {
					t.Errorf("empty string should not be sealed, got: %s", sealed)
				}
				return
			}

			if !IsSealed(sealed) {
				t.Errorf("sealed value should have prefix, got: %s", sealed)
			}
			if strings.Contains(sealed, tc.secret) {
				t.Error("sealed value leaks the secret")
			}

			opened, err := vault.Open(sealed)
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			if opened != tc.secret {
				t.Errorf("opened value mismatch: got %q, want %q", opened, tc.secret)
			}
		})
	}
}

func TestVault_OpenPlaintext(t *testing.T) {
	vault, _ := NewVault()

	got, err := vault.Open("sk-typed-by-hand")
	if err != nil || got != "sk-typed-by-hand" {
		t.Errorf("plaintext should pass through, got %q, %v", got, err)
	}
}

func TestVault_OpenInvalid(t *testing.T) {
	vault, _ := NewVault()
	other, _ := newVault(bytes.Repeat([]byte{7}, 32))
	foreign, _ := other.Seal("sk-from-another-machine")

	testCases := []struct {
		name  string
		input string
		want  error
	}{
		{"invalid base64", SealedPrefix + "not-valid-base64!!!", ErrInvalidFormat},
		{"too short", SealedPrefix + "YWJj", ErrInvalidFormat},
		{"other key", foreign, ErrOpenFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := vault.Open(tc.input)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVault_DifferentNonces(t *testing.T) {
	vault, _ := NewVault()

	s1, _ := vault.Seal("test-api-key")
	s2, _ := vault.Seal("test-api-key")
	if s1 == s2 {
		t.Error("same secret should produce different sealed values")
	}
}

type mapKV map[string]string

func (m mapKV) SetConfig(k, v string) error        { m[k] = v; return nil }
func (m mapKV) GetConfig(k string) (string, error) { return m[k], nil }

func TestVault_PutGet(t *testing.T) {
	vault, _ := NewVault()
	kv := mapKV{}

	if err := vault.Put(kv, "openai_api_key", "sk-secret-value"); err != nil {
		t.Fatal(err)
	}
	if err := vault.Put(kv, "model", "mistral:7b"); err != nil {
		t.Fatal(err)
	}

	if !IsSealed(kv["openai_api_key"]) {
		t.Errorf("api key stored in clear: %q", kv["openai_api_key"])
	}
	if kv["model"] != "mistral:7b" {
		t.Errorf("plain key should be stored as is, got %q", kv["model"])
	}

	got, err := vault.Get(kv, "openai_api_key")
	if err != nil || got != "sk-secret-value" {
		t.Errorf("Get = %q, %v", got, err)
	}
}

func TestVault_Lookup(t *testing.T) {
	vault, _ := NewVault()
	kv := mapKV{}
	t.Setenv("MEMOCHAT_TEST_KEY", "from-env")

	got, _ := vault.Lookup(kv, "gemini_api_key", "MEMOCHAT_TEST_KEY")
	if got != "from-env" {
		t.Errorf("expected env fallback, got %q", got)
	}

	vault.Put(kv, "gemini_api_key", "from-table")
	got, _ = vault.Lookup(kv, "gemini_api_key", "MEMOCHAT_TEST_KEY")
	if got != "from-table" {
		t.Errorf("table value should win, got %q", got)
	}

	got, _ = vault.Lookup(nil, "gemini_api_key", "MEMOCHAT_TEST_KEY")
	if got != "from-env" {
		t.Errorf("nil table should use env, got %q", got)
	}
}

func TestIsSecretKey(t *testing.T) {
	for key, want := range map[string]bool{
		"openai_api_key":    true,
		"ANTHROPIC_API_KEY": true,
		"api_key":           true,
		"model":             false,
		"api_key_hint":      false,
	} {
		if got := IsSecretKey(key); got != want {
			t.Errorf("IsSecretKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestMask(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", "****"},
		{"12345678", "****"},
		{"123456789", "1234...6789"},
		{"sk-1234567890abcdef", "sk-1...cdef"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := Mask(tc.input); got != tc.expected {
				t.Errorf("Mask(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
