// Package vault provides the encrypted local store behind finvault.
//
// A 4-digit PIN is turned into an AES-256-GCM key with PBKDF2. The key lives
// only inside an unlocked Session and protects two collections, transactions
// and categories, each persisted as one encrypted blob. Every mutation
// re-encrypts the whole collection; this is sized for personal data, not for
// large datasets.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forest6511/finvault/pkg/audit"
	"github.com/forest6511/finvault/pkg/crypto"
)

// Unlock attempt limits: 5 attempts -> 30s, 10 attempts -> 5min, 20 attempts -> 30min
const (
	CooldownThreshold1 = 5
	CooldownThreshold2 = 10
	CooldownThreshold3 = 20
	CooldownDuration1  = 30 * time.Second
	CooldownDuration2  = 5 * time.Minute
	CooldownDuration3  = 30 * time.Minute
)

// Theme values. The theme is a plain preference outside the encrypted data.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Collection names an encrypted record list.
type Collection string

const (
	Transactions Collection = "transactions"
	Categories   Collection = "categories"
)

// LockState tracks failed unlock attempts for cooldown enforcement
type LockState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

// Vault ties a Store to the key management and data operations.
// Sessions created from one Vault share its per-collection write locks.
type Vault struct {
	store     Store
	provider  crypto.Provider
	codec     Codec
	creds     *CredentialStore
	namespace string

	defaultCategories []Category

	audit       *audit.Logger
	auditSource string
	logger      *slog.Logger
	now         func() time.Time

	// Lock order: catMu before txMu.
	catMu   sync.Mutex
	txMu    sync.Mutex
	stateMu sync.Mutex // lockstate and auditkey records

	// epoch changes whenever the credential is replaced or removed.
	// Session keys taken under an older epoch are no longer usable.
	epoch atomic.Uint64
}

// Option configures a Vault.
type Option func(*Vault)

// WithProvider replaces the randomness/KDF/AEAD provider.
func WithProvider(p crypto.Provider) Option {
	return func(v *Vault) {
		if p != nil {
			v.provider = p
		}
	}
}

// WithNamespace sets the record key prefix (default "sft").
func WithNamespace(ns string) Option {
	return func(v *Vault) {
		if ns != "" {
			v.namespace = ns
		}
	}
}

// WithDefaultCategories seeds the category collection on first registration.
func WithDefaultCategories(cats []Category) Option {
	return func(v *Vault) {
		v.defaultCategories = append([]Category(nil), cats...)
	}
}

// WithAudit enables the HMAC-chained audit log.
func WithAudit(l *audit.Logger, source string) Option {
	return func(v *Vault) {
		v.audit = l
		if source != "" {
			v.auditSource = source
		}
	}
}

// WithLogger sets the diagnostic logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithClock overrides time.Now for timestamps and cooldowns.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// New creates a Vault over store.
func New(store Store, opts ...Option) *Vault {
	v := &Vault{
		store:       store,
		provider:    crypto.Default,
		namespace:   DefaultNamespace,
		auditSource: audit.SourceCLI,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.codec = NewCodec(v.provider)
	v.creds = NewCredentialStore(store, v.recordKey(recordSettings), v.provider)
	return v
}

// NewSession returns a Locked session bound to this vault.
func (v *Vault) NewSession() *Session {
	return &Session{v: v}
}

// Credentials exposes the credential store.
func (v *Vault) Credentials() *CredentialStore {
	return v.creds
}

// HasPIN reports whether a PIN has been registered.
func (v *Vault) HasPIN(ctx context.Context) (bool, error) {
	return v.creds.Exists(ctx)
}

// AuditLogger returns the audit logger, or nil when auditing is disabled.
func (v *Vault) AuditLogger() *audit.Logger {
	return v.audit
}

func (v *Vault) recordKey(name string) string {
	return v.namespace + "-" + name
}

func (v *Vault) collectionMutex(c Collection) *sync.Mutex {
	if c == Categories {
		return &v.catMu
	}
	return &v.txMu
}

// Theme returns the stored UI theme, "light" when unset.
func (v *Vault) Theme(ctx context.Context) (string, error) {
	raw, err := v.store.Get(ctx, v.recordKey(recordTheme))
	if err != nil {
		return "", fmt.Errorf("vault: failed to read theme: %w", err)
	}
	if len(raw) == 0 {
		return ThemeLight, nil
	}
	return string(raw), nil
}

// SetTheme stores the UI theme.
func (v *Vault) SetTheme(ctx context.Context, theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("%w: theme must be %q or %q", ErrValidation, ThemeLight, ThemeDark)
	}
	if err := v.store.Set(ctx, v.recordKey(recordTheme), []byte(theme)); err != nil {
		return fmt.Errorf("vault: failed to write theme: %w", err)
	}
	return nil
}

// Reset deletes every record of this vault's namespace, including the
// credential and all encrypted data. It is the only way out of
// ErrSettingsCorrupted and cannot be undone.
func (v *Vault) Reset(ctx context.Context) error {
	v.catMu.Lock()
	defer v.catMu.Unlock()
	v.txMu.Lock()
	defer v.txMu.Unlock()

	keys := []string{
		v.recordKey(recordSettings),
		v.recordKey(string(Transactions)),
		v.recordKey(string(Categories)),
		v.recordKey(recordLockState),
		v.recordKey(recordAuditKey),
		v.recordKey(recordTheme),
	}
	if l, ok := v.store.(Lister); ok {
		listed, err := l.Keys(ctx, v.namespace+"-")
		if err != nil {
			return err
		}
		keys = listed
	}

	for _, k := range keys {
		if err := v.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("vault: reset failed: %w", err)
		}
	}

	v.rotateEpoch()

	if v.audit != nil {
		if err := v.audit.Purge(); err != nil {
			v.logger.Warn("failed to purge audit log", "error", err)
		}
	}
	return nil
}

// rotateEpoch invalidates every session key and returns the new epoch.
// Callers must have written the new credential first, so a concurrent
// Unlock that read the old epoch cannot install a key for the new one.
func (v *Vault) rotateEpoch() uint64 {
	return v.epoch.Add(1)
}

// loadLockState reads the failed-attempt counter.
func (v *Vault) loadLockState(ctx context.Context) (*LockState, error) {
	raw, err := v.store.Get(ctx, v.recordKey(recordLockState))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read lock state: %w", err)
	}
	if len(raw) == 0 {
		return &LockState{}, nil
	}

	var state LockState
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupted counter - start over
		return &LockState{}, nil
	}
	return &state, nil
}

func (v *Vault) saveLockState(ctx context.Context, state *LockState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal lock state: %w", err)
	}
	if err := v.store.Set(ctx, v.recordKey(recordLockState), data); err != nil {
		return fmt.Errorf("vault: failed to write lock state: %w", err)
	}
	return nil
}

func (v *Vault) clearLockState(ctx context.Context) error {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	return v.store.Delete(ctx, v.recordKey(recordLockState))
}

// checkCooldown returns ErrCooldownActive while a cooldown is running.
func (v *Vault) checkCooldown(ctx context.Context) error {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()

	state, err := v.loadLockState(ctx)
	if err != nil {
		return err
	}
	now := v.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		remaining := state.CooldownUntil.Sub(now).Round(time.Second)
		return fmt.Errorf("%w: please wait %v", ErrCooldownActive, remaining)
	}
	return nil
}

// recordFailedAttempt bumps the counter and starts a cooldown at the thresholds.
func (v *Vault) recordFailedAttempt(ctx context.Context) (time.Duration, error) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()

	state, err := v.loadLockState(ctx)
	if err != nil {
		return 0, err
	}

	now := v.now()
	state.FailedAttempts++
	state.LastAttempt = now

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= CooldownThreshold3:
		cooldown = CooldownDuration3
	case state.FailedAttempts >= CooldownThreshold2:
		cooldown = CooldownDuration2
	case state.FailedAttempts >= CooldownThreshold1:
		cooldown = CooldownDuration1
	}
	if cooldown > 0 {
		state.CooldownUntil = now.Add(cooldown)
	}

	return cooldown, v.saveLockState(ctx, state)
}

// GetLockState returns the current lock state for display purposes
func (v *Vault) GetLockState(ctx context.Context) (*LockState, error) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	return v.loadLockState(ctx)
}

// RemainingCooldown returns the remaining cooldown time, or 0 if not in cooldown
func (v *Vault) RemainingCooldown(ctx context.Context) time.Duration {
	state, err := v.GetLockState(ctx)
	if err != nil {
		return 0
	}
	now := v.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now)
	}
	return 0
}

// failedAttempt records a wrong PIN and emits the audit/diagnostic events.
func (v *Vault) failedAttempt(ctx context.Context, op string) {
	cooldown, err := v.recordFailedAttempt(ctx)
	if err != nil {
		v.logger.Warn("failed to record unlock attempt", "error", err)
	}
	v.auditError(op, "", "AUTH_FAILED", "invalid PIN")
	if cooldown > 0 {
		v.logger.Warn("too many failed PIN attempts, cooldown activated", "cooldown", cooldown)
	}
}

// loadAuditSecret decrypts the audit HMAC secret. (nil, nil) if absent.
func (v *Vault) loadAuditSecret(ctx context.Context, key []byte) ([]byte, error) {
	raw, err := v.store.Get(ctx, v.recordKey(recordAuditKey))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read audit key: %w", err)
	}
	var secret []byte
	if err := v.codec.Decrypt(string(raw), key, &secret); err != nil {
		return nil, fmt.Errorf("vault: failed to decrypt audit key: %w", err)
	}
	return secret, nil
}

func (v *Vault) saveAuditSecret(ctx context.Context, key, secret []byte) error {
	blob, err := v.codec.Encrypt(secret, key)
	if err != nil {
		return err
	}
	if err := v.store.Set(ctx, v.recordKey(recordAuditKey), []byte(blob)); err != nil {
		return fmt.Errorf("vault: failed to write audit key: %w", err)
	}
	return nil
}

// enableAudit hands the audit secret for key to the logger, creating the
// secret on first use. Audit problems never block an unlock.
func (v *Vault) enableAudit(ctx context.Context, key []byte) {
	if v.audit == nil {
		return
	}

	v.stateMu.Lock()
	defer v.stateMu.Unlock()

	secret, err := v.loadAuditSecret(ctx, key)
	if err != nil && !errors.Is(err, ErrAuthentication) && !errors.Is(err, ErrFormat) {
		v.logger.Warn("failed to load audit key", "error", err)
		return
	}
	if len(secret) == 0 || err != nil {
		if err != nil {
			v.logger.Warn("audit key unreadable, starting a new audit chain", "error", err)
		}
		if secret, err = v.provider.RandomBytes(crypto.KeyLength); err != nil {
			v.logger.Warn("failed to create audit key", "error", err)
			return
		}
		if err := v.saveAuditSecret(ctx, key, secret); err != nil {
			v.logger.Warn("failed to store audit key", "error", err)
			return
		}
	}
	defer crypto.SecureWipe(secret)

	if err := v.audit.SetHMACKey(secret); err != nil {
		v.logger.Warn("failed to initialize audit logger", "error", err)
	}
}

func (v *Vault) auditSuccess(op, recordID string) {
	if v.audit == nil {
		return
	}
	if err := v.audit.LogSuccess(op, v.auditSource, recordID); err != nil {
		v.logger.Warn("failed to write audit event", "op", op, "error", err)
	}
}

func (v *Vault) auditError(op, recordID, code, msg string) {
	if v.audit == nil {
		return
	}
	if err := v.audit.LogError(op, v.auditSource, recordID, code, msg); err != nil {
		v.logger.Warn("failed to write audit event", "op", op, "error", err)
	}
}
