package vault

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrLocked is returned by any data operation on a locked session.
	ErrLocked = errors.New("vault: vault is locked")

	// ErrAuthentication covers both a wrong key and tampered or corrupted
	// ciphertext. The two cases are deliberately indistinguishable.
	ErrAuthentication = errors.New("vault: authentication failed")

	// ErrFormat indicates a structurally malformed blob, settings record
	// or import payload.
	ErrFormat = errors.New("vault: malformed data")

	// ErrNotFound indicates the mutation target id does not exist.
	ErrNotFound = errors.New("vault: record not found")

	// ErrValidation indicates a record failed field validation.
	ErrValidation = errors.New("vault: validation failed")

	// ErrSettingsCorrupted means the PIN settings cannot be decoded. Key
	// derivation is impossible: the only way forward is Reset, which
	// destroys all encrypted data.
	ErrSettingsCorrupted = fmt.Errorf("%w: settings record is corrupted, existing data cannot be recovered", ErrFormat)

	ErrAlreadyRegistered = errors.New("vault: a PIN is already registered")
	ErrInvalidPIN        = errors.New("vault: PIN must be exactly 4 digits")
	ErrCooldownActive    = errors.New("vault: cooldown period active")
	ErrInsufficientDisk  = errors.New("vault: insufficient disk space")
)
