// Package audit provides an append-only operation log with an HMAC chain for
// tamper detection.
//
// Events carry operation names, outcomes and HMAC'd record ids only. Amounts,
// notes and category names never reach the log.
package audit

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Disk space constants
const (
	MinAuditDiskSpace = 1024 * 1024 // 1 MB minimum for audit logs
)

// Operation types for audit logging
const (
	// Vault operations
	OpVaultRegister     = "vault.register"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpVaultPINChange    = "vault.pin_change"

	// Record operations
	OpTxAdd          = "tx.add"
	OpTxUpdate       = "tx.update"
	OpTxDelete       = "tx.delete"
	OpCategoryAdd    = "category.add"
	OpCategoryUpdate = "category.update"
	OpCategoryDelete = "category.delete"

	// Data transfer
	OpDataExport  = "data.export"
	OpDataImport  = "data.import"
	OpDataBackup  = "data.backup"
	OpDataRestore = "data.restore"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceAPI = "api"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const (
	genesisHash = "genesis"
	metaFile    = "audit.meta"
	logSuffix   = ".jsonl"
	hkdfInfo    = "audit-log-v1"
)

// ErrKeyNotSet is returned when writing or verifying before SetHMACKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event is a single audit log record
type Event struct {
	Version   int    `json:"v"`  // Schema version (1)
	ID        string `json:"id"` // Time-ordered UUIDv7
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	Record    string `json:"record,omitempty"` // HMAC of the record id

	Actor Actor `json:"actor"`

	Result string     `json:"result"`          // success | error
	Error  *ErrorInfo `json:"error,omitempty"` // Error details

	Chain Chain `json:"chain"`
}

// Actor represents where the operation came from
type Actor struct {
	Source    string `json:"source"`     // cli | api
	SessionID string `json:"session_id"` // Process-level session
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links each record to its predecessor
type Chain struct {
	Sequence int64  `json:"seq"`  // Sequence number
	PrevHash string `json:"prev"` // Previous record HMAC
	HMAC     string `json:"hmac"` // This record's HMAC
}

// chainState is persisted in audit.meta between runs
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Logger handles audit log writing with HMAC chain
type Logger struct {
	path      string
	mu        sync.Mutex
	hmacKey   []byte // nil until SetHMACKey
	sequence  int64
	prevHash  string
	sessionID string
	now       func() time.Time
}

// NewLogger creates a logger writing monthly files into dir
func NewLogger(dir string) *Logger {
	return &Logger{
		path:      dir,
		prevHash:  genesisHash,
		sessionID: generateSessionID(),
		now:       time.Now,
	}
}

// SetHMACKey derives the chain key from secret using HKDF-SHA256 and loads
// the persisted chain position.
func (l *Logger) SetHMACKey(secret []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := make([]byte, 32)
	if _, err := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)).Read(key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.wipeKey()
	l.hmacKey = key

	if err := l.loadChainState(); err != nil {
		// First run
		l.sequence = 0
		l.prevHash = genesisHash
	}
	return nil
}

// ClearHMACKey wipes the chain key. Logging fails until SetHMACKey is
// called again.
func (l *Logger) ClearHMACKey() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wipeKey()
}

func (l *Logger) wipeKey() {
	for i := range l.hmacKey {
		l.hmacKey[i] = 0
	}
	l.hmacKey = nil
}

// Log appends one event to the chain
func (l *Logger) Log(op, source, result, recordID string, errInfo *ErrorInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	now := l.now().UTC()
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("audit: failed to generate event id: %w", err)
	}

	event := Event{
		Version:   1,
		ID:        id.String(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Actor: Actor{
			Source:    source,
			SessionID: l.sessionID,
		},
		Result: result,
		Error:  errInfo,
	}
	if recordID != "" {
		event.Record = l.mac([]byte(recordID))
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.mac(buildRecordData(&event))

	if err := l.writeEvent(&event, now); err != nil {
		return err
	}

	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, source, recordID string) error {
	return l.Log(op, source, ResultSuccess, recordID, nil)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, source, recordID, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, recordID, &ErrorInfo{Code: errCode, Message: errMsg})
}

func (l *Logger) mac(data []byte) string {
	m := hmac.New(sha256.New, l.hmacKey)
	m.Write(data)
	return hex.EncodeToString(m.Sum(nil))
}

// buildRecordData covers every field except the record's own HMAC
func buildRecordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = event.Error.Code + "|" + event.Error.Message
	}
	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.Record,
		event.Actor.Source,
		event.Actor.SessionID,
		event.Result,
		errorData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	))
}

// writeEvent appends to the month file of ts
func (l *Logger) writeEvent(event *Event, ts time.Time) error {
	name := filepath.Join(l.path, ts.Format("2006-01")+logSuffix)
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, metaFile))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, metaFile), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// generateSessionID creates a unique session identifier
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Verify checks sequence numbers, prev links and HMACs across all files
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := genesisHash
	var expectedSeq int64 = 1

	for _, event := range events {
		result.RecordsTotal++

		if event.Chain.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d",
				event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s", event.ID))
		}
		if !hmac.Equal([]byte(event.Chain.HMAC), []byte(l.mac(buildRecordData(&event)))) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		} else {
			result.RecordsVerified++
		}

		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}
	return result, nil
}

// ListEvents returns events newer than since (zero = all), keeping the most
// recent limit entries (0 = all).
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	filtered := events
	if !since.IsZero() {
		filtered = filtered[:0:0]
		for _, event := range events {
			ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if ts.After(since) {
				filtered = append(filtered, event)
			}
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// Export renders all events as "json" or "csv"
func (l *Logger) Export(format string) ([]byte, error) {
	l.mu.Lock()
	events, err := l.readAll()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	switch format {
	case "json":
		if events == nil {
			events = []Event{}
		}
		return json.MarshalIndent(events, "", "  ")
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"timestamp", "operation", "result", "record"})
		for _, e := range events {
			record := e.Record
			if len(record) > 16 {
				record = record[:16] + "..."
			}
			_ = w.Write([]string{
				csvSafe(e.Timestamp), csvSafe(e.Operation), csvSafe(e.Result), csvSafe(record),
			})
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	default:
		return nil, fmt.Errorf("audit: unsupported format: %s", format)
	}
}

// csvSafe neutralizes spreadsheet formula prefixes
func csvSafe(field string) string {
	if field != "" && strings.ContainsRune("=+-@", rune(field[0])) {
		return "'" + field
	}
	return field
}

// Purge deletes every log file and the chain state. The next event starts
// a new chain from genesis.
func (l *Logger) Purge() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := l.logFiles()
	if err != nil {
		return err
	}
	files = append(files, filepath.Join(l.path, metaFile))
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("audit: failed to delete %s: %w", f, err)
		}
	}

	l.sequence = 0
	l.prevHash = genesisHash
	return nil
}

// Path returns the audit log directory path
func (l *Logger) Path() string {
	return l.path
}

// logFiles lists month files in chronological order
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*"+logSuffix))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM names sort chronologically
	sort.Strings(files)
	return files, nil
}

func (l *Logger) readAll() ([]Event, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var event Event
			if err := json.Unmarshal(line, &event); err != nil {
				return nil, fmt.Errorf("audit: failed to parse %s: %w", file, err)
			}
			events = append(events, event)
		}
	}
	return events, nil
}
