package vault

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/forest6511/finvault/pkg/crypto"
)

// Credential is the persisted PIN verification material.
type Credential struct {
	PINHash string `json:"pinHash"` // base64 SHA-256 of the PIN
	Salt    string `json:"salt"`    // base64 16-byte KDF salt
}

// decode validates and decodes both fields.
func (c *Credential) decode() (hash, salt []byte, err error) {
	hash, err = base64.StdEncoding.DecodeString(c.PINHash)
	if err != nil || len(hash) != crypto.DigestLength {
		return nil, nil, ErrSettingsCorrupted
	}
	salt, err = base64.StdEncoding.DecodeString(c.Salt)
	if err != nil || len(salt) != crypto.SaltLength {
		return nil, nil, ErrSettingsCorrupted
	}
	return hash, salt, nil
}

// CredentialStore persists the credential under a single record and checks
// PIN attempts against it.
type CredentialStore struct {
	store    Store
	key      string
	provider crypto.Provider
}

// NewCredentialStore returns a CredentialStore writing to key in store.
func NewCredentialStore(store Store, key string, p crypto.Provider) *CredentialStore {
	if p == nil {
		p = crypto.Default
	}
	return &CredentialStore{store: store, key: key, provider: p}
}

// Load returns the stored credential, or (nil, nil) if none exists.
// An undecodable record yields ErrSettingsCorrupted.
func (c *CredentialStore) Load(ctx context.Context) (*Credential, error) {
	raw, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read settings: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, ErrSettingsCorrupted
	}
	if cred.PINHash == "" && cred.Salt == "" {
		// Settings record without a PIN, e.g. preferences only
		return nil, nil
	}
	if _, _, err := cred.decode(); err != nil {
		return nil, err
	}
	return &cred, nil
}

// Exists reports whether a PIN has been registered.
func (c *CredentialStore) Exists(ctx context.Context) (bool, error) {
	cred, err := c.Load(ctx)
	if err != nil {
		return false, err
	}
	return cred != nil, nil
}

// Register creates a fresh salt, stores {pinHash, salt} and returns the
// credential with the key derived from it. Any prior credential is
// overwritten.
func (c *CredentialStore) Register(ctx context.Context, pin string) (*Credential, []byte, error) {
	salt, err := c.provider.RandomBytes(crypto.SaltLength)
	if err != nil {
		return nil, nil, fmt.Errorf("vault: failed to generate salt: %w", err)
	}

	key := c.provider.DeriveKey([]byte(pin), salt)
	cred := &Credential{
		PINHash: base64.StdEncoding.EncodeToString(crypto.HashPIN([]byte(pin))),
		Salt:    base64.StdEncoding.EncodeToString(salt),
	}

	data, err := json.Marshal(cred)
	if err != nil {
		crypto.SecureWipe(key)
		return nil, nil, fmt.Errorf("vault: failed to marshal settings: %w", err)
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		crypto.SecureWipe(key)
		return nil, nil, fmt.Errorf("vault: failed to write settings: %w", err)
	}
	return cred, key, nil
}

// Verify checks pin against the stored digest in constant time.
// It returns false when no credential exists.
func (c *CredentialStore) Verify(ctx context.Context, pin string) (bool, error) {
	cred, err := c.Load(ctx)
	if err != nil || cred == nil {
		return false, err
	}
	return cred.matches(pin), nil
}

// DeriveKey derives the session key for pin from the credential's salt.
func (c *CredentialStore) DeriveKey(cred *Credential, pin string) ([]byte, error) {
	_, salt, err := cred.decode()
	if err != nil {
		return nil, err
	}
	return c.provider.DeriveKey([]byte(pin), salt), nil
}

func (c *Credential) matches(pin string) bool {
	want, _, err := c.decode()
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(crypto.HashPIN([]byte(pin)), want) == 1
}
