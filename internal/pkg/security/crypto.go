package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// SealedPrefix marks a sealed secret in configuration files.
const SealedPrefix = "enc:"

const (
	saltSize = 16
	keySize  = 32

	// scrypt cost parameters recommended for interactive use.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	ErrNoPassphrase = errors.New("passphrase is empty")
	ErrMalformed    = errors.New("sealed secret is malformed")
)

// DeriveKey stretches passphrase into a 32-byte AES key using scrypt.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
}

// Encrypt encrypts plaintext using AES-GCM and returns Nonce + Ciphertext.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	// Seal returns nonce + ciphertext
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext (Nonce + Ciphertext) using AES-GCM.
func Decrypt(key, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// IsSealed reports whether s carries SealedPrefix.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, SealedPrefix)
}

// SealToken encrypts secret under passphrase and returns
// "enc:" + hex(Salt + Nonce + Ciphertext).
func SealToken(passphrase, secret string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return "", err
	}
	sealed, err := Encrypt(key, []byte(secret))
	if err != nil {
		return "", err
	}
	return SealedPrefix + hex.EncodeToString(append(salt, sealed...)), nil
}

// OpenToken reverses SealToken. A wrong passphrase fails authentication.
func OpenToken(passphrase, sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", ErrMalformed
	}
	data, err := hex.DecodeString(strings.TrimPrefix(sealed, SealedPrefix))
	if err != nil || len(data) < saltSize {
		return "", ErrMalformed
	}
	key, err := DeriveKey(passphrase, data[:saltSize])
	if err != nil {
		return "", err
	}
	plain, err := Decrypt(key, data[saltSize:])
	if err != nil {
		return "", fmt.Errorf("failed to open sealed secret: %w", err)
	}
	return string(plain), nil
}
