package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/forest6511/finvault/pkg/audit"
	"github.com/forest6511/finvault/pkg/crypto"
)

// State is the lock state of a Session.
type State int

const (
	Locked State = iota
	Unlocked
)

func (s State) String() string {
	if s == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// Session holds the derived key between Unlock and Lock.
// A new Session starts Locked. It is safe for concurrent use.
//
// A session whose key predates a PIN change, restore or reset made through
// any session of the same Vault counts as Locked.
type Session struct {
	v *Vault

	mu    sync.RWMutex
	key   []byte
	epoch uint64
}

// State returns the current lock state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.current() {
		return Locked
	}
	return Unlocked
}

// current reports whether the session holds the key of the live credential.
// Callers hold s.mu.
func (s *Session) current() bool {
	return s.key != nil && s.epoch == s.v.epoch.Load()
}

// IsLocked reports whether the session holds no usable key.
func (s *Session) IsLocked() bool {
	return s.State() == Locked
}

// Vault returns the vault this session belongs to.
func (s *Session) Vault() *Vault {
	return s.v
}

// Unlock verifies pin and, on success, derives and installs the key.
// A wrong PIN or a missing credential returns (false, nil) and leaves the
// session as it was. While a cooldown is running ErrCooldownActive is
// returned without checking the PIN.
func (s *Session) Unlock(ctx context.Context, pin string) (bool, error) {
	v := s.v
	epoch := v.epoch.Load()
	if err := v.checkCooldown(ctx); err != nil {
		return false, err
	}

	cred, err := v.creds.Load(ctx)
	if err != nil {
		return false, err
	}
	if cred == nil {
		return false, nil
	}
	if !cred.matches(pin) {
		v.failedAttempt(ctx, audit.OpVaultUnlockFailed)
		return false, nil
	}

	key, err := v.creds.DeriveKey(cred, pin)
	if err != nil {
		return false, err
	}

	if err := v.clearLockState(ctx); err != nil {
		v.logger.Warn("failed to clear lock state", "error", err)
	}
	v.enableAudit(ctx, key)
	s.setKey(key, epoch)
	v.auditSuccess(audit.OpVaultUnlock, "")
	return true, nil
}

// Lock wipes the key. Locking a locked session is a no-op apart from
// wiping an outdated key.
func (s *Session) Lock() {
	if s.clearKey() {
		s.v.auditSuccess(audit.OpVaultLock, "")
		if s.v.audit != nil {
			s.v.audit.ClearHMACKey()
		}
	}
}

// Register creates the first credential, seeds collections that do not yet
// exist and leaves the session Unlocked. It refuses to overwrite an
// existing PIN; use ChangePIN for that.
func (s *Session) Register(ctx context.Context, pin string) error {
	if err := ValidatePIN(pin); err != nil {
		return err
	}

	v := s.v
	v.catMu.Lock()
	defer v.catMu.Unlock()
	v.txMu.Lock()
	defer v.txMu.Unlock()

	exists, err := v.creds.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyRegistered
	}

	if err := s.register(ctx, pin); err != nil {
		return err
	}
	v.auditSuccess(audit.OpVaultRegister, "")
	return nil
}

// register writes a new credential, installs its key and seeds absent
// collections. Callers hold both collection locks.
func (s *Session) register(ctx context.Context, pin string) error {
	v := s.v
	_, key, err := v.creds.Register(ctx, pin)
	if err != nil {
		return err
	}
	epoch := v.rotateEpoch()

	if err := seed(ctx, v, Categories, key, v.defaultCategories); err != nil {
		crypto.SecureWipe(key)
		return err
	}
	if err := seed(ctx, v, Transactions, key, []Transaction{}); err != nil {
		crypto.SecureWipe(key)
		return err
	}

	if err := v.clearLockState(ctx); err != nil {
		v.logger.Warn("failed to clear lock state", "error", err)
	}
	v.enableAudit(ctx, key)
	s.setKey(key, epoch)
	return nil
}

// ChangePIN re-keys the vault from currentPin to newPin.
//
// With no registered credential newPin is simply registered. A wrong
// currentPin returns (false, nil) with no side effects. Otherwise both
// collections are decrypted under the old key, the session is locked, a new
// credential with a fresh salt is written and both collections are
// re-encrypted under the new key, categories first. true is returned only
// once the last write has completed. Every other session of the vault is
// locked by the change.
//
// The steps are not atomic: an interruption after the new credential is
// written and before both collections are saved leaves data encrypted
// under the old key, which is then unrecoverable.
func (s *Session) ChangePIN(ctx context.Context, currentPin, newPin string) (bool, error) {
	if err := ValidatePIN(newPin); err != nil {
		return false, err
	}

	v := s.v
	v.catMu.Lock()
	defer v.catMu.Unlock()
	v.txMu.Lock()
	defer v.txMu.Unlock()

	cred, err := v.creds.Load(ctx)
	if err != nil {
		return false, err
	}
	if cred == nil {
		if err := s.register(ctx, newPin); err != nil {
			return false, err
		}
		v.auditSuccess(audit.OpVaultRegister, "")
		return true, nil
	}

	if err := v.checkCooldown(ctx); err != nil {
		return false, err
	}
	if !cred.matches(currentPin) {
		v.failedAttempt(ctx, audit.OpVaultPINChange)
		return false, nil
	}

	oldKey, err := v.creds.DeriveKey(cred, currentPin)
	if err != nil {
		return false, err
	}
	defer crypto.SecureWipe(oldKey)

	categories, err := load[Category](ctx, v, Categories, oldKey)
	if err != nil {
		return false, fmt.Errorf("vault: failed to read categories for re-keying: %w", err)
	}
	transactions, err := load[Transaction](ctx, v, Transactions, oldKey)
	if err != nil {
		return false, fmt.Errorf("vault: failed to read transactions for re-keying: %w", err)
	}

	v.stateMu.Lock()
	auditSecret, err := v.loadAuditSecret(ctx, oldKey)
	v.stateMu.Unlock()
	if err != nil {
		// A lost audit secret only restarts the audit chain
		v.logger.Warn("audit key unreadable during PIN change", "error", err)
		auditSecret = nil
	}
	defer crypto.SecureWipe(auditSecret)

	v.auditSuccess(audit.OpVaultPINChange, "")
	s.clearKey()

	_, newKey, err := v.creds.Register(ctx, newPin)
	if err != nil {
		return false, err
	}
	epoch := v.rotateEpoch()

	if err := save(ctx, v, Categories, newKey, categories); err != nil {
		crypto.SecureWipe(newKey)
		return false, err
	}
	if err := save(ctx, v, Transactions, newKey, transactions); err != nil {
		crypto.SecureWipe(newKey)
		return false, err
	}

	if len(auditSecret) > 0 {
		v.stateMu.Lock()
		err = v.saveAuditSecret(ctx, newKey, auditSecret)
		v.stateMu.Unlock()
		if err != nil {
			v.logger.Warn("failed to re-encrypt audit key", "error", err)
		}
	}
	v.enableAudit(ctx, newKey)
	s.setKey(newKey, epoch)

	if err := v.clearLockState(ctx); err != nil {
		v.logger.Warn("failed to clear lock state", "error", err)
	}
	return true, nil
}

// withKey runs fn with a copy of the session key.
func (s *Session) withKey(fn func(key []byte) error) error {
	s.mu.RLock()
	if !s.current() {
		s.mu.RUnlock()
		return ErrLocked
	}
	key := make([]byte, len(s.key))
	copy(key, s.key)
	s.mu.RUnlock()

	defer crypto.SecureWipe(key)
	return fn(key)
}

// setKey installs key as valid for epoch, wiping any previous one. The
// session takes ownership of key.
func (s *Session) setKey(key []byte, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		crypto.SecureWipe(s.key)
	}
	s.key = key
	s.epoch = epoch
}

// clearKey wipes the key and reports whether the session was unlocked.
// An outdated key is wiped but does not count as unlocked.
func (s *Session) clearKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return false
	}
	live := s.current()
	crypto.SecureWipe(s.key)
	s.key = nil
	return live
}
