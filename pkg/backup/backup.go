package backup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/forest6511/finvault/pkg/crypto"
)

// MaxFileSize bounds how much of a backup is read into memory.
const MaxFileSize = 64 * 1024 * 1024

// Snapshot is the vault state handed to Write.
type Snapshot struct {
	Namespace string
	// KDFSalt is the PIN salt, stored in clear so the PIN can re-derive
	// the vault key on restore.
	KDFSalt []byte
	Records map[string][]byte
}

// Write seals snap under keys derived from vaultKey and writes
//
//	magic | header len | header | ciphertext len | ciphertext | HMAC
//
// The HMAC covers everything before it.
func Write(w io.Writer, snap *Snapshot, vaultKey []byte, createdAt time.Time) (*Header, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	encKey, macKey, err := DeriveBackupKeys(vaultKey, salt)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	payloadBytes, err := EncodePayload(&Payload{Records: snap.Records})
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(payloadBytes)

	ciphertext, err := EncryptPayload(payloadBytes, encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	header := &Header{
		Version:     FormatVersion,
		CreatedAt:   createdAt.UTC(),
		Namespace:   snap.Namespace,
		KDFSalt:     snap.KDFSalt,
		BackupSalt:  salt,
		RecordCount: len(snap.Records),
		MACAlgo:     macAlgo,
	}

	// Buffer first so the HMAC can cover the header
	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return nil, fmt.Errorf("failed to write ciphertext length: %w", err)
	}
	buf.Write(ciphertext)

	mac := ComputeHMAC(buf.Bytes(), macKey)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	if _, err := w.Write(mac); err != nil {
		return nil, fmt.Errorf("failed to write HMAC: %w", err)
	}
	return header, nil
}

// Open reads a backup from r, obtains the vault key from deriveKey using
// the header's KDF salt, verifies the HMAC and decrypts the payload.
// A wrong key and a modified file both yield ErrIntegrityFailed.
func Open(r io.Reader, deriveKey func(kdfSalt []byte) ([]byte, error)) (*Header, *Payload, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read backup: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, nil, fmt.Errorf("backup larger than %d bytes", MaxFileSize)
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	var ciphertextLen uint32
	if err := binary.Read(reader, binary.BigEndian, &ciphertextLen); err != nil {
		return nil, nil, fmt.Errorf("%w: ciphertext length", ErrTruncated)
	}
	if reader.Len() != int(ciphertextLen)+HMACLength {
		return nil, nil, ErrTruncated
	}
	signedLen := len(data) - HMACLength
	signed, storedMAC := data[:signedLen], data[signedLen:]
	ciphertext := data[signedLen-int(ciphertextLen) : signedLen]

	vaultKey, err := deriveKey(header.KDFSalt)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(vaultKey)

	encKey, macKey, err := DeriveBackupKeys(vaultKey, header.BackupSalt)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if !VerifyHMAC(signed, storedMAC, macKey) {
		return nil, nil, ErrIntegrityFailed
	}

	plaintext, err := DecryptPayload(ciphertext, encKey)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(plaintext)

	payload, err := DecodePayload(plaintext)
	if err != nil {
		return nil, nil, err
	}
	return header, payload, nil
}
