// Package backup reads and writes sealed snapshots of a finvault vault.
package backup

import "errors"

// Backup/Restore errors
var (
	// ErrInvalidMagic indicates the file is not a finvault backup.
	ErrInvalidMagic = errors.New("invalid backup file: magic number mismatch")

	// ErrUnsupportedVersion indicates the backup format version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported backup format version")

	// ErrTruncated indicates the file ends before the HMAC.
	ErrTruncated = errors.New("backup file truncated")

	// ErrIntegrityFailed indicates the HMAC did not verify: the PIN is wrong
	// or the file was modified.
	ErrIntegrityFailed = errors.New("backup integrity check failed: HMAC mismatch")

	// ErrDecryptionFailed indicates the payload could not be opened after
	// the HMAC verified.
	ErrDecryptionFailed = errors.New("backup decryption failed: corrupted data")

	// ErrEmptyKey indicates no vault key was supplied.
	ErrEmptyKey = errors.New("vault key cannot be empty")
)
