package crypto

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveKeyFile writes the key material to a file as hex with 0600 permissions.
func SaveKeyFile(path string, key *Key) error {
	material, err := key.Material()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
	}

	encoded := hex.EncodeToString(material) + "\n"
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	return nil
}

// LoadKeyFile reads a hex-encoded key file written by SaveKeyFile.
func LoadKeyFile(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	material, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: key file is not valid hex", ErrInvalidKey)
	}

	return NewKey(material)
}

// EnsureKeyFile loads the key at path, generating and saving a new one on
// first run.
func EnsureKeyFile(path string) (*Key, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadKeyFile(path)
	}

	key, err := Generate()
	if err != nil {
		return nil, err
	}

	if err := SaveKeyFile(path, key); err != nil {
		key.Destroy()
		return nil, err
	}

	return key, nil
}
