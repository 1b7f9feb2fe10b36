package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/forest6511/finvault/pkg/audit"
	"github.com/forest6511/finvault/pkg/backup"
	"github.com/forest6511/finvault/pkg/crypto"
)

// backupRecords are the records carried by a backup. The failed-attempt
// counter belongs to the device and is never backed up.
var backupRecords = []string{
	recordSettings,
	string(Categories),
	string(Transactions),
	recordAuditKey,
	recordTheme,
}

// Backup writes a sealed snapshot of every record to w. Records are copied
// as stored, still encrypted, and the snapshot is sealed again under a key
// derived from the session key, so only the current PIN can restore it.
func (s *Session) Backup(ctx context.Context, w io.Writer) (*backup.Header, error) {
	if s.IsLocked() {
		return nil, ErrLocked
	}

	v := s.v
	v.catMu.Lock()
	defer v.catMu.Unlock()
	v.txMu.Lock()
	defer v.txMu.Unlock()
	v.stateMu.Lock()
	defer v.stateMu.Unlock()

	cred, err := v.creds.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrLocked
	}
	_, salt, err := cred.decode()
	if err != nil {
		return nil, err
	}

	snap := &backup.Snapshot{
		Namespace: v.namespace,
		KDFSalt:   salt,
		Records:   make(map[string][]byte, len(backupRecords)),
	}
	for _, name := range backupRecords {
		raw, err := v.store.Get(ctx, v.recordKey(name))
		if err != nil {
			return nil, fmt.Errorf("vault: failed to read %s: %w", name, err)
		}
		if raw != nil {
			snap.Records[name] = raw
		}
	}

	var header *backup.Header
	err = s.withKey(func(key []byte) error {
		var err error
		header, err = backup.Write(w, snap, key, v.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	v.auditSuccess(audit.OpDataBackup, "")
	return header, nil
}

// OpenBackup checks a backup against pin without touching the store and
// returns its header and record count. A wrong PIN and a modified file both
// yield ErrAuthentication; anything that is not a finvault backup yields
// ErrFormat.
func (v *Vault) OpenBackup(r io.Reader, pin string) (*backup.Header, error) {
	header, _, key, err := v.openBackup(r, pin)
	if err != nil {
		return nil, err
	}
	crypto.SecureWipe(key)
	return header, nil
}

// openBackup returns the header, the records and the vault key of a backup.
func (v *Vault) openBackup(r io.Reader, pin string) (*backup.Header, map[string][]byte, []byte, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, nil, nil, err
	}

	var key []byte
	header, payload, err := backup.Open(r, func(salt []byte) ([]byte, error) {
		if len(salt) != crypto.SaltLength {
			return nil, fmt.Errorf("%w: backup KDF salt has %d bytes", ErrFormat, len(salt))
		}
		key = v.provider.DeriveKey([]byte(pin), salt)
		return append([]byte(nil), key...), nil
	})
	if err != nil {
		crypto.SecureWipe(key)
		switch {
		case errors.Is(err, ErrFormat):
			return nil, nil, nil, err
		case errors.Is(err, backup.ErrIntegrityFailed), errors.Is(err, backup.ErrDecryptionFailed):
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
		default:
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
	}

	if err := checkBackupRecords(payload.Records, header.KDFSalt, pin); err != nil {
		crypto.SecureWipe(key)
		return nil, nil, nil, err
	}
	return header, payload.Records, key, nil
}

// checkBackupRecords rejects unknown record names and a credential that
// does not belong to pin and the header salt.
func checkBackupRecords(records map[string][]byte, kdfSalt []byte, pin string) error {
	for name := range records {
		if !slices.Contains(backupRecords, name) {
			return fmt.Errorf("%w: unexpected record %q in backup", ErrFormat, name)
		}
	}

	var cred Credential
	if err := json.Unmarshal(records[recordSettings], &cred); err != nil {
		return fmt.Errorf("%w: backup has no PIN settings", ErrFormat)
	}
	_, salt, err := cred.decode()
	if err != nil || !bytes.Equal(salt, kdfSalt) || !cred.matches(pin) {
		return fmt.Errorf("%w: backup PIN settings do not match", ErrFormat)
	}
	return nil
}

// Restore replaces every record with the contents of a backup written by
// Backup. Every other session of the vault is locked by it. pin is the PIN that was active when the backup was taken; it
// becomes the PIN of this vault. The failed-attempt counter is cleared and
// records absent from the backup are deleted. Nothing is written unless
// the backup verifies. On success the session is unlocked under the
// restored credential.
//
// The audit log is purged when the backup carries a different audit secret,
// since the old chain could no longer be verified.
func (s *Session) Restore(ctx context.Context, r io.Reader, pin string) (*backup.Header, error) {
	v := s.v
	header, records, key, err := v.openBackup(r, pin)
	if err != nil {
		return nil, err
	}

	v.catMu.Lock()
	defer v.catMu.Unlock()
	v.txMu.Lock()
	defer v.txMu.Unlock()

	s.Lock()

	v.stateMu.Lock()
	oldAuditKey, err := v.store.Get(ctx, v.recordKey(recordAuditKey))
	if err == nil {
		err = v.replaceRecords(ctx, records)
	}
	v.stateMu.Unlock()
	if err != nil {
		crypto.SecureWipe(key)
		return nil, err
	}

	if v.audit != nil && !bytes.Equal(oldAuditKey, records[recordAuditKey]) {
		if err := v.audit.Purge(); err != nil {
			v.logger.Warn("failed to purge audit log", "error", err)
		}
	}

	epoch := v.rotateEpoch()
	v.enableAudit(ctx, key)
	s.setKey(key, epoch)
	v.auditSuccess(audit.OpDataRestore, "")
	return header, nil
}

// replaceRecords writes records and deletes every other backed-up record
// and the lock state. Callers hold all vault locks.
func (v *Vault) replaceRecords(ctx context.Context, records map[string][]byte) error {
	for _, name := range backupRecords {
		k := v.recordKey(name)
		var err error
		if raw, ok := records[name]; ok {
			err = v.store.Set(ctx, k, raw)
		} else {
			err = v.store.Delete(ctx, k)
		}
		if err != nil {
			return fmt.Errorf("vault: restore failed at %s: %w", name, err)
		}
	}
	if err := v.store.Delete(ctx, v.recordKey(recordLockState)); err != nil {
		return fmt.Errorf("vault: restore failed at %s: %w", recordLockState, err)
	}
	return nil
}
