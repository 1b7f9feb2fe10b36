// Package crypto provides cryptographic primitives for finvault.
//
// This package implements AES-256-GCM authenticated encryption and
// PBKDF2-HMAC-SHA256 key derivation from a short PIN.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption
//   - PBKDF2-HMAC-SHA256 key derivation (100,000 iterations)
//   - Cryptographically secure random nonce generation
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	// Derive a key from a PIN
//	salt := make([]byte, 16)
//	rand.Read(salt)
//	key := crypto.DeriveKey([]byte("1234"), salt)
//
//	// Encrypt data
//	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
//
//	// Decrypt data
//	plaintext, err := crypto.Decrypt(key, ciphertext, nonce)
//
//	// Securely wipe sensitive data
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation and AEAD parameters.
const (
	// PBKDF2Iterations is the PBKDF2 iteration count.
	PBKDF2Iterations = 100000

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of PIN salts in bytes (128 bits).
	SaltLength = 16

	// DigestLength is the length of a PIN verification digest in bytes.
	DigestLength = sha256.Size
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// DeriveKey derives a 256-bit encryption key from a PIN using
// PBKDF2-HMAC-SHA256 with PBKDF2Iterations rounds.
//
// The same (pin, salt) pair always yields the same key. The salt should be
// SaltLength bytes of cryptographically secure random data.
func DeriveKey(pin, salt []byte) []byte {
	return deriveKey(pin, salt, PBKDF2Iterations)
}

func deriveKey(pin, salt []byte, iterations int) []byte {
	return pbkdf2.Key(pin, salt, iterations, KeyLength, sha256.New)
}

// HashPIN returns the SHA-256 digest of the PIN alone.
// The digest only verifies PIN attempts and is never used as key material.
func HashPIN(pin []byte) []byte {
	sum := sha256.Sum256(pin)
	return sum[:]
}

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// A fresh 12-byte nonce is drawn from crypto/rand for every call.
// The authentication tag is appended to the ciphertext.
func Encrypt(key, plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	ciphertext, err = Seal(key, nonce, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return ciphertext, nonce, nil
}

// Seal encrypts plaintext with an explicit nonce.
// Callers must never reuse a nonce with the same key.
func Seal(key, nonce, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	// Authentication tag is appended to ciphertext
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext using AES-256-GCM authenticated encryption.
//
// The authentication tag is verified before any plaintext is returned.
// A wrong key and tampered data both yield ErrDecryptionFailed.
func Decrypt(key, ciphertext, nonce []byte) (plaintext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	// GCM tag is 16 bytes
	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err = gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// b is still "in use" after the loop, so the writes stay.
	runtime.KeepAlive(b)
}
