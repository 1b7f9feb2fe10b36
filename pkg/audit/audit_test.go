package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testSecret(fill byte) []byte {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = fill + byte(i)
	}
	return secret
}

func newKeyedLogger(t *testing.T, dir string) *Logger {
	t.Helper()
	logger := NewLogger(dir)
	if err := logger.SetHMACKey(testSecret(0)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	return logger
}

func readEvents(t *testing.T, dir string) []Event {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		t.Fatalf("failed to list log files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(files))
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var events []Event
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte{'\n'}) {
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			t.Fatalf("failed to parse log entry: %v", err)
		}
		events = append(events, e)
	}
	return events
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	if logger.Path() != tmpDir {
		t.Errorf("expected path %s, got %s", tmpDir, logger.Path())
	}
	if logger.prevHash != genesisHash {
		t.Errorf("expected prevHash 'genesis', got %s", logger.prevHash)
	}
	if logger.sessionID == "" {
		t.Error("expected non-empty sessionID")
	}
}

func TestSetHMACKey(t *testing.T) {
	logger := newKeyedLogger(t, t.TempDir())
	if len(logger.hmacKey) != 32 {
		t.Errorf("expected hmacKey length 32, got %d", len(logger.hmacKey))
	}
}

func TestLogWithoutHMACKey(t *testing.T) {
	logger := NewLogger(t.TempDir())

	err := logger.LogSuccess(OpTxAdd, SourceCLI, "tx-1")
	if !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("expected ErrKeyNotSet, got %v", err)
	}
}

func TestClearHMACKey(t *testing.T) {
	logger := newKeyedLogger(t, t.TempDir())
	logger.ClearHMACKey()

	if err := logger.LogSuccess(OpVaultLock, SourceCLI, ""); !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("expected ErrKeyNotSet after clear, got %v", err)
	}
	if _, err := logger.Verify(); !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("expected ErrKeyNotSet from Verify, got %v", err)
	}
}

func TestLogSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newKeyedLogger(t, tmpDir)

	if err := logger.LogSuccess(OpTxAdd, SourceCLI, "tx-1"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	events := readEvents(t, tmpDir)
	event := events[0]

	if event.Version != 1 {
		t.Errorf("expected version 1, got %d", event.Version)
	}
	if event.Operation != OpTxAdd {
		t.Errorf("expected operation %s, got %s", OpTxAdd, event.Operation)
	}
	if event.Result != ResultSuccess {
		t.Errorf("expected result %s, got %s", ResultSuccess, event.Result)
	}
	if event.Actor.Source != SourceCLI {
		t.Errorf("expected source %s, got %s", SourceCLI, event.Actor.Source)
	}
	if event.Chain.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", event.Chain.Sequence)
	}
	if event.Chain.PrevHash != genesisHash {
		t.Errorf("expected prevHash 'genesis', got %s", event.Chain.PrevHash)
	}
	if event.Chain.HMAC == "" {
		t.Error("expected non-empty HMAC")
	}
	if event.Record == "" || event.Record == "tx-1" {
		t.Errorf("expected record id to be HMAC'd, got %q", event.Record)
	}
}

func TestLogError(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newKeyedLogger(t, tmpDir)

	if err := logger.LogError(OpVaultUnlockFailed, SourceCLI, "", "AUTH_FAILED", "invalid PIN"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}

	event := readEvents(t, tmpDir)[0]
	if event.Result != ResultError {
		t.Errorf("expected result %s, got %s", ResultError, event.Result)
	}
	if event.Error == nil {
		t.Fatal("expected error info to be set")
	}
	if event.Error.Code != "AUTH_FAILED" {
		t.Errorf("expected error code AUTH_FAILED, got %s", event.Error.Code)
	}
	if event.Record != "" {
		t.Errorf("expected no record for empty id, got %q", event.Record)
	}
}

func TestRecordHMACIsStable(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newKeyedLogger(t, tmpDir)

	_ = logger.LogSuccess(OpTxAdd, SourceCLI, "tx-1")
	_ = logger.LogSuccess(OpTxDelete, SourceCLI, "tx-1")
	_ = logger.LogSuccess(OpTxDelete, SourceCLI, "tx-2")

	events := readEvents(t, tmpDir)
	if events[0].Record != events[1].Record {
		t.Error("same record id should produce the same HMAC")
	}
	if events[1].Record == events[2].Record {
		t.Error("different record ids should produce different HMACs")
	}
}

func TestChainIntegrity(t *testing.T) {
	logger := newKeyedLogger(t, t.TempDir())

	for i := 0; i < 5; i++ {
		if err := logger.LogSuccess(OpCategoryAdd, SourceCLI, "cat-x"); err != nil {
			t.Fatalf("LogSuccess failed on iteration %d: %v", i, err)
		}
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid chain, got errors: %v", result.Errors)
	}
	if result.RecordsTotal != 5 || result.RecordsVerified != 5 {
		t.Errorf("expected 5/5 records, got %d/%d", result.RecordsVerified, result.RecordsTotal)
	}
}

func TestChainPersistence(t *testing.T) {
	tmpDir := t.TempDir()

	logger1 := newKeyedLogger(t, tmpDir)
	for i := 0; i < 3; i++ {
		if err := logger1.LogSuccess(OpTxAdd, SourceCLI, "a"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	// A new process continues the chain
	logger2 := newKeyedLogger(t, tmpDir)
	for i := 0; i < 2; i++ {
		if err := logger2.LogSuccess(OpTxUpdate, SourceCLI, "b"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	result, err := logger2.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid chain after resume, got errors: %v", result.Errors)
	}
	if result.RecordsTotal != 5 {
		t.Errorf("expected 5 total records, got %d", result.RecordsTotal)
	}
}

func TestGenerateSessionID(t *testing.T) {
	id1 := generateSessionID()
	id2 := generateSessionID()

	if len(id1) != 32 {
		t.Errorf("expected session ID length 32, got %d", len(id1))
	}
	if id1 == id2 {
		t.Error("expected unique session IDs")
	}
}

func TestTamperingDetection(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(data []byte) []byte
	}{
		{
			name: "modified record",
			tamper: func(data []byte) []byte {
				return []byte(strings.Replace(string(data), OpTxUpdate, OpTxDelete, 1))
			},
		},
		{
			name: "deleted record",
			tamper: func(data []byte) []byte {
				lines := bytes.SplitAfter(data, []byte{'\n'})
				return bytes.Join(append(lines[:2:2], lines[3:]...), nil)
			},
		},
		{
			name: "inserted record",
			tamper: func(data []byte) []byte {
				fake := `{"v":1,"id":"fake","ts":"2025-01-01T00:00:00Z","op":"tx.add",` +
					`"actor":{"source":"cli","session_id":"fake"},"result":"success",` +
					`"chain":{"seq":999,"prev":"fake_prev","hmac":"fake_hmac"}}` + "\n"
				first := bytes.IndexByte(data, '\n') + 1
				out := append([]byte{}, data[:first]...)
				out = append(out, fake...)
				return append(out, data[first:]...)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			logger := newKeyedLogger(t, tmpDir)
			for i := 0; i < 5; i++ {
				if err := logger.LogSuccess(OpTxUpdate, SourceCLI, "tx-1"); err != nil {
					t.Fatalf("LogSuccess failed: %v", err)
				}
			}

			files, _ := filepath.Glob(filepath.Join(tmpDir, "*.jsonl"))
			data, err := os.ReadFile(files[0])
			if err != nil {
				t.Fatalf("failed to read log file: %v", err)
			}
			if err := os.WriteFile(files[0], tt.tamper(data), 0600); err != nil {
				t.Fatalf("failed to write tampered file: %v", err)
			}

			result, err := newKeyedLogger(t, tmpDir).Verify()
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if result.Valid {
				t.Error("expected invalid chain after tampering")
			}
			if len(result.Errors) == 0 {
				t.Error("expected errors to be reported")
			}
		})
	}
}

func TestVerifyWrongKey(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newKeyedLogger(t, tmpDir)
	for i := 0; i < 3; i++ {
		_ = logger.LogSuccess(OpTxAdd, SourceCLI, "tx")
	}

	other := NewLogger(tmpDir)
	if err := other.SetHMACKey(testSecret(100)); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	result, err := other.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("expected invalid chain with wrong HMAC key")
	}
}

func TestVerifyEmptyLog(t *testing.T) {
	result, err := newKeyedLogger(t, t.TempDir()).Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid result for empty log: %v", result.Errors)
	}
	if result.RecordsTotal != 0 {
		t.Errorf("expected 0 records, got %d", result.RecordsTotal)
	}
}

func TestListEvents(t *testing.T) {
	logger := newKeyedLogger(t, t.TempDir())

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	logger.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	_ = logger.LogSuccess(OpVaultUnlock, SourceCLI, "")
	_ = logger.LogSuccess(OpTxAdd, SourceCLI, "tx-1")
	_ = logger.LogError(OpVaultUnlockFailed, SourceCLI, "", "AUTH_FAILED", "invalid PIN")
	_ = logger.LogSuccess(OpCategoryDelete, SourceAPI, "cat-1")
	_ = logger.LogSuccess(OpVaultLock, SourceCLI, "")

	events, err := logger.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}

	limited, err := logger.ListEvents(2, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(limited) != 2 || limited[1].Operation != OpVaultLock {
		t.Errorf("expected the 2 most recent events, got %+v", limited)
	}

	since, err := logger.ListEvents(0, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("expected 2 events after cutoff, got %d", len(since))
	}
}

func TestExport(t *testing.T) {
	logger := newKeyedLogger(t, t.TempDir())
	_ = logger.LogSuccess(OpDataExport, SourceCLI, "")
	_ = logger.LogSuccess(OpTxAdd, SourceCLI, "tx-1")

	data, err := logger.Export("json")
	if err != nil {
		t.Fatalf("Export json failed: %v", err)
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 exported events, got %d", len(events))
	}

	data, err = logger.Export("csv")
	if err != nil {
		t.Fatalf("Export csv failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Errorf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "timestamp,operation,result,record" {
		t.Errorf("unexpected csv header: %s", lines[0])
	}

	if _, err := logger.Export("xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestCSVSafe(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"tx.add", "tx.add"},
		{"=SUM(A1)", "'=SUM(A1)"},
		{"-1", "'-1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := csvSafe(tt.in); got != tt.want {
			t.Errorf("csvSafe(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPurge(t *testing.T) {
	tmpDir := t.TempDir()
	logger := newKeyedLogger(t, tmpDir)
	for i := 0; i < 3; i++ {
		_ = logger.LogSuccess(OpTxAdd, SourceCLI, "tx")
	}

	if err := logger.Purge(); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(tmpDir, "*"))
	if len(files) != 0 {
		t.Errorf("expected empty directory after purge, got %v", files)
	}

	if err := logger.LogSuccess(OpVaultRegister, SourceCLI, ""); err != nil {
		t.Fatalf("LogSuccess after purge failed: %v", err)
	}
	events := readEvents(t, tmpDir)
	if events[0].Chain.Sequence != 1 || events[0].Chain.PrevHash != genesisHash {
		t.Errorf("expected fresh chain after purge, got %+v", events[0].Chain)
	}
}
