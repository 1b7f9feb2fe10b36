package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// Provider is the capability set the vault needs from the platform:
// randomness, PIN key derivation and AEAD sealing.
type Provider interface {
	RandomBytes(n int) ([]byte, error)
	DeriveKey(pin, salt []byte) []byte
	Seal(key, nonce, plaintext []byte) ([]byte, error)
	Open(key, nonce, ciphertext []byte) ([]byte, error)
}

type defaultProvider struct{}

// Default is the production Provider backed by crypto/rand,
// PBKDF2-HMAC-SHA256 and AES-256-GCM.
var Default Provider = defaultProvider{}

func (defaultProvider) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: failed to read random bytes: %w", err)
	}
	return b, nil
}

func (defaultProvider) DeriveKey(pin, salt []byte) []byte {
	return DeriveKey(pin, salt)
}

func (defaultProvider) Seal(key, nonce, plaintext []byte) ([]byte, error) {
	return Seal(key, nonce, plaintext)
}

func (defaultProvider) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	return Decrypt(key, ciphertext, nonce)
}

// Deterministic is a Provider whose random stream is derived from a seed.
// It keeps the real AEAD but allows a reduced PBKDF2 iteration count,
// which makes vault tests fast and reproducible. Never use it for real data.
type Deterministic struct {
	mu         sync.Mutex
	seed       []byte
	counter    uint64
	buf        []byte
	iterations int
}

// NewDeterministic returns a Deterministic provider seeded with seed.
// iterations <= 0 selects PBKDF2Iterations.
func NewDeterministic(seed string, iterations int) *Deterministic {
	if iterations <= 0 {
		iterations = PBKDF2Iterations
	}
	return &Deterministic{
		seed:       []byte(seed),
		iterations: iterations,
	}
}

// RandomBytes reads n bytes from the seeded stream.
func (d *Deterministic) RandomBytes(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Stream blocks are SHA-256(seed || counter).
	for len(d.buf) < n {
		var ctr [8]byte
		binary.BigEndian.PutUint64(ctr[:], d.counter)
		d.counter++
		block := sha256.Sum256(append(append([]byte{}, d.seed...), ctr[:]...))
		d.buf = append(d.buf, block[:]...)
	}

	b := make([]byte, n)
	copy(b, d.buf[:n])
	d.buf = d.buf[n:]
	return b, nil
}

// DeriveKey runs PBKDF2-HMAC-SHA256 with the configured iteration count.
func (d *Deterministic) DeriveKey(pin, salt []byte) []byte {
	return deriveKey(pin, salt, d.iterations)
}

// Seal encrypts with AES-256-GCM.
func (d *Deterministic) Seal(key, nonce, plaintext []byte) ([]byte, error) {
	return Seal(key, nonce, plaintext)
}

// Open decrypts with AES-256-GCM.
func (d *Deterministic) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	return Decrypt(key, ciphertext, nonce)
}
