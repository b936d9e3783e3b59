package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewKeyRejectsBadLength(t *testing.T) {
	tests := []struct {
		name   string
		length int
	}{
		{"empty", 0},
		{"too short", 16},
		{"off by one", 31},
		{"too long", 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKey(make([]byte, tt.length))
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("NewKey(%d bytes) error = %v, want ErrInvalidKey", tt.length, err)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	plaintext := []byte("Hello, relay!")

	sealed, err := key.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if len(sealed.Nonce) != NonceSize {
		t.Errorf("nonce size = %d, want %d", len(sealed.Nonce), NonceSize)
	}

	if len(sealed.Ciphertext) != len(plaintext)+TagSize {
		t.Errorf("ciphertext size = %d, want %d", len(sealed.Ciphertext), len(plaintext)+TagSize)
	}

	decrypted, err := key.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}

	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptNonceUniqueness(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	const n = 100
	seen := make(map[string]bool, n)

	for i := 0; i < n; i++ {
		sealed, err := key.Encrypt([]byte("same plaintext"))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}

		nonce := string(sealed.Nonce)
		if seen[nonce] {
			t.Fatalf("nonce reused after %d encryptions", i)
		}
		seen[nonce] = true
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	sealed, err := key.Encrypt([]byte("original message"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Flip one bit in every byte position, covering both ciphertext and tag
	for i := range sealed.Ciphertext {
		tampered := &SealedPayload{
			Nonce:      sealed.Nonce,
			Ciphertext: bytes.Clone(sealed.Ciphertext),
		}
		tampered.Ciphertext[i] ^= 0x01

		if _, err := key.Decrypt(tampered); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("Decrypt() with bit %d flipped: error = %v, want ErrIntegrity", i, err)
		}
	}
}

func TestDecryptRejectsMalformedNonce(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	sealed, err := key.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	sealed.Nonce = sealed.Nonce[:NonceSize-1]
	if _, err := key.Decrypt(sealed); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Decrypt() with short nonce: error = %v, want ErrIntegrity", err)
	}
}

func TestDecryptWithDifferentKey(t *testing.T) {
	key1, _ := Generate()
	key2, _ := Generate()

	sealed, err := key1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := key2.Decrypt(sealed); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Decrypt() with different key: error = %v, want ErrIntegrity", err)
	}
}

func TestDeriveFromPassphrase(t *testing.T) {
	key1, err := DeriveFromPassphrase("correct horse battery staple")
	if err != nil {
		t.Fatalf("DeriveFromPassphrase() error = %v", err)
	}

	key2, err := DeriveFromPassphrase("correct horse battery staple")
	if err != nil {
		t.Fatalf("DeriveFromPassphrase() error = %v", err)
	}

	// Same passphrase derives the same key
	sealed, err := key1.Encrypt([]byte("derived"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := key2.Decrypt(sealed); err != nil {
		t.Errorf("Decrypt() with re-derived key: error = %v", err)
	}

	// Different passphrase derives a different key
	key3, _ := DeriveFromPassphrase("wrong passphrase")
	if _, err := key3.Decrypt(sealed); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Decrypt() with differently-derived key: error = %v, want ErrIntegrity", err)
	}

	if _, err := DeriveFromPassphrase(""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("DeriveFromPassphrase(\"\"): error = %v, want ErrInvalidKey", err)
	}
}

func TestDestroy(t *testing.T) {
	key, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	key.Destroy()
	key.Destroy() // idempotent

	if _, err := key.Encrypt([]byte("x")); !errors.Is(err, ErrKeyClosed) {
		t.Errorf("Encrypt() after Destroy: error = %v, want ErrKeyClosed", err)
	}
	if _, err := key.Decrypt(&SealedPayload{Nonce: make([]byte, NonceSize)}); !errors.Is(err, ErrKeyClosed) {
		t.Errorf("Decrypt() after Destroy: error = %v, want ErrKeyClosed", err)
	}
	if _, err := key.Material(); !errors.Is(err, ErrKeyClosed) {
		t.Errorf("Material() after Destroy: error = %v, want ErrKeyClosed", err)
	}
}

func TestFingerprint(t *testing.T) {
	material := make([]byte, KeySize)
	for i := range material {
		material[i] = byte(i)
	}

	key1, _ := NewKey(material)
	key2, _ := NewKey(material)

	fp1, err := key1.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	fp2, _ := key2.Fingerprint()

	if fp1 != fp2 {
		t.Errorf("Fingerprint() not stable: %s vs %s", fp1, fp2)
	}
	if len(fp1) != 16 {
		t.Errorf("Fingerprint() length = %d, want 16", len(fp1))
	}

	other, _ := Generate()
	fp3, _ := other.Fingerprint()
	if fp3 == fp1 {
		t.Error("Fingerprint() identical for different keys")
	}
}
