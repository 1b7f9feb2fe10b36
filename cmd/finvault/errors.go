package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forest6511/finvault/pkg/vault"
)

// friendlyError maps vault sentinels to messages for the terminal.
func friendlyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vault.ErrSettingsCorrupted):
		return errors.New("PIN settings are corrupted and existing data cannot be recovered; run 'finvault reset' to start over")
	case errors.Is(err, vault.ErrCooldownActive):
		return fmt.Errorf("too many failed attempts: %s", strings.TrimPrefix(err.Error(), "vault: "))
	case errors.Is(err, vault.ErrAuthentication):
		return errors.New("stored data could not be decrypted: wrong key or the database was modified")
	case errors.Is(err, vault.ErrFormat):
		return fmt.Errorf("malformed data: %s", strings.TrimPrefix(err.Error(), vault.ErrFormat.Error()+": "))
	case errors.Is(err, vault.ErrValidation):
		return errors.New(strings.TrimPrefix(err.Error(), vault.ErrValidation.Error()+": "))
	case errors.Is(err, vault.ErrNotFound):
		return errors.New("record not found")
	case errors.Is(err, vault.ErrInvalidPIN):
		return errors.New("PIN must be exactly 4 digits")
	case errors.Is(err, vault.ErrAlreadyRegistered):
		return errors.New("a PIN is already registered, use 'finvault pin change'")
	case errors.Is(err, vault.ErrLocked):
		return errors.New("vault is locked")
	case errors.Is(err, vault.ErrInsufficientDisk):
		return fmt.Errorf("not enough disk space: %w", err)
	default:
		return err
	}
}
