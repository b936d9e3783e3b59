// Package crypto provides the symmetric message encryption used by the
// terminal chat client. Every payload crossing the relay connection is
// sealed with AES-256-GCM under a per-session key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// AES-256 requires 32-byte keys
	KeySize = 32

	// AES-GCM nonce size (96 bits / 12 bytes is standard)
	NonceSize = 12

	// AES-GCM authentication tag size
	TagSize = 16

	// PBKDF2 iterations for passphrase-derived keys
	PBKDF2Iterations = 100000

	// Salt for passphrase key derivation
	derivationSalt = "Termchat-Client-v1"
)

var (
	ErrInvalidKey = errors.New("invalid key material")
	ErrIntegrity  = errors.New("message integrity check failed")
	ErrKeyClosed  = errors.New("key has been destroyed")
)

// SealedPayload holds the output of a single encryption: the random nonce
// and the ciphertext with the GCM authentication tag appended.
type SealedPayload struct {
	Nonce      []byte
	Ciphertext []byte
}

// Key is an immutable AES-256 session key. The raw material is zeroed when
// Destroy is called; in-flight Encrypt/Decrypt calls hold a read lock so the
// material is never wiped under them.
type Key struct {
	mu       sync.RWMutex
	material [KeySize]byte
	aead     cipher.AEAD
	closed   bool
}

// NewKey creates a key from raw material. The material must be exactly
// KeySize bytes; anything else fails with ErrInvalidKey.
func NewKey(material []byte) (*Key, error) {
	if len(material) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKey, KeySize, len(material))
	}

	k := &Key{}
	copy(k.material[:], material)

	aead, err := newGCM(k.material[:])
	if err != nil {
		return nil, err
	}
	k.aead = aead

	return k, nil
}

// Generate creates a key from fresh random material.
func Generate() (*Key, error) {
	material := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	return NewKey(material)
}

// DeriveFromPassphrase derives a key from a user passphrase using
// PBKDF2 with SHA-256.
func DeriveFromPassphrase(passphrase string) (*Key, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", ErrInvalidKey)
	}

	material := pbkdf2.Key(
		[]byte(passphrase),
		[]byte(derivationSalt),
		PBKDF2Iterations,
		KeySize,
		sha256.New,
	)

	return NewKey(material)
}

func newGCM(material []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}

// Encrypt seals plaintext with a fresh random nonce. No nonce is ever
// reused; two calls with identical plaintext produce different output.
func (k *Key) Encrypt(plaintext []byte) (*SealedPayload, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, ErrKeyClosed
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the auth tag to the ciphertext
	ciphertext := k.aead.Seal(nil, nonce, plaintext, nil)

	return &SealedPayload{
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Decrypt opens a sealed payload. The authentication tag is verified before
// any plaintext is released; tampered or corrupted input fails with
// ErrIntegrity and never returns partial plaintext.
func (k *Key) Decrypt(sealed *SealedPayload) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, ErrKeyClosed
	}

	if len(sealed.Nonce) != NonceSize {
		return nil, fmt.Errorf("%w: invalid nonce size %d", ErrIntegrity, len(sealed.Nonce))
	}

	plaintext, err := k.aead.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or corrupted data", ErrIntegrity)
	}

	return plaintext, nil
}

// Fingerprint returns a short hex BLAKE2b digest of the key material,
// suitable for comparing keys out of band.
func (k *Key) Fingerprint() (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return "", ErrKeyClosed
	}

	hash, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	hash.Write(k.material[:])

	return hex.EncodeToString(hash.Sum(nil))[:16], nil
}

// Material returns a copy of the raw key bytes, e.g. for writing a key file.
func (k *Key) Material() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, ErrKeyClosed
	}

	out := make([]byte, KeySize)
	copy(out, k.material[:])
	return out, nil
}

// Destroy zeroes the key material. Blocks until outstanding Encrypt/Decrypt
// calls complete. Safe to call more than once; all later operations fail
// with ErrKeyClosed.
func (k *Key) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return
	}

	for i := range k.material {
		k.material[i] = 0
	}
	k.aead = nil
	k.closed = true
}
