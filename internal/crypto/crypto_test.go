package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestNewEncryptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{
			name:    "valid 32 byte key",
			key:     "0123456789abcdef0123456789abcdef",
			wantErr: nil,
		},
		{
			name:    "empty key",
			key:     "",
			wantErr: ErrMissingKey,
		},
		{
			name:    "short key",
			key:     "too-short",
			wantErr: ErrInvalidKey,
		},
		{
			name:    "long key",
			key:     strings.Repeat("x", 33),
			wantErr: ErrInvalidKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewEncryptor(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewEncryptor() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	plaintexts := []string{"123456", "", "a longer secret with spaces"}
	for _, plaintext := range plaintexts {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plaintext, err)
		}
		if ciphertext == plaintext && plaintext != "" {
			t.Errorf("Encrypt(%q) returned plaintext unchanged", plaintext)
		}

		got, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if got != plaintext {
			t.Errorf("Decrypt() = %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	first, err := enc.Encrypt("123456")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	second, err := enc.Encrypt("123456")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if first == second {
		t.Error("expected distinct ciphertexts for repeated encryption of the same plaintext")
	}
}

func TestDecryptRejectsTampered(t *testing.T) {
	t.Parallel()

	enc, err := NewEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	if _, err := enc.Decrypt("not-valid-base64!!!"); err == nil {
		t.Error("expected error for invalid base64 input")
	}
	if _, err := enc.Decrypt("c2hvcnQ="); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestGenerateOTP(t *testing.T) {
	t.Parallel()

	otp, err := GenerateOTP(6)
	if err != nil {
		t.Fatalf("GenerateOTP() error = %v", err)
	}
	if len(otp) != 6 {
		t.Errorf("GenerateOTP() length = %d, want 6", len(otp))
	}
	for _, r := range otp {
		if r < '0' || r > '9' {
			t.Errorf("GenerateOTP() contains non-digit %q", r)
		}
	}

	otp, err = GenerateOTP(0)
	if err != nil {
		t.Fatalf("GenerateOTP(0) error = %v", err)
	}
	if len(otp) != 6 {
		t.Errorf("GenerateOTP(0) length = %d, want default 6", len(otp))
	}
}
