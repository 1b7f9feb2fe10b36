package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/forest6511/finvault/pkg/crypto"
)

// blobSeparator joins the base64 IV and the base64 ciphertext+tag.
const blobSeparator = "."

// Codec turns JSON-serializable values into encrypted blobs of the form
// base64(iv) + "." + base64(ciphertext||tag), and back.
type Codec struct {
	provider crypto.Provider
}

// NewCodec returns a Codec using p for randomness and AEAD.
func NewCodec(p crypto.Provider) Codec {
	if p == nil {
		p = crypto.Default
	}
	return Codec{provider: p}
}

// Encrypt serializes value and seals it under key with a fresh IV.
func (c Codec) Encrypt(value any, key []byte) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("vault: failed to serialize value: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	iv, err := c.provider.RandomBytes(crypto.NonceLength)
	if err != nil {
		return "", err
	}

	ciphertext, err := c.provider.Seal(key, iv, plaintext)
	if err != nil {
		return "", fmt.Errorf("vault: failed to encrypt: %w", err)
	}

	return base64.StdEncoding.EncodeToString(iv) + blobSeparator +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens blob under key and unmarshals the plaintext into dst.
// An empty blob leaves dst untouched, so callers pre-set the empty default.
//
// Structural problems yield ErrFormat; a failed tag check yields
// ErrAuthentication whether the key is wrong or the data was modified.
func (c Codec) Decrypt(blob string, key []byte, dst any) error {
	if blob == "" {
		return nil
	}

	ivPart, dataPart, ok := strings.Cut(blob, blobSeparator)
	if !ok || ivPart == "" || dataPart == "" || strings.Contains(dataPart, blobSeparator) {
		return fmt.Errorf("%w: blob must be iv.ciphertext", ErrFormat)
	}

	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return fmt.Errorf("%w: iv is not valid base64", ErrFormat)
	}
	if len(iv) != crypto.NonceLength {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", ErrFormat, crypto.NonceLength, len(iv))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(dataPart)
	if err != nil {
		return fmt.Errorf("%w: ciphertext is not valid base64", ErrFormat)
	}

	plaintext, err := c.provider.Open(key, iv, ciphertext)
	switch {
	case errors.Is(err, crypto.ErrCiphertextTooShort):
		return fmt.Errorf("%w: ciphertext shorter than authentication tag", ErrFormat)
	case errors.Is(err, crypto.ErrDecryptionFailed):
		return ErrAuthentication
	case err != nil:
		return fmt.Errorf("vault: failed to decrypt: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	if err := json.Unmarshal(plaintext, dst); err != nil {
		return fmt.Errorf("%w: decrypted payload is not valid: %v", ErrFormat, err)
	}
	return nil
}
