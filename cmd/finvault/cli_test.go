package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest6511/finvault/internal/config"
	"github.com/forest6511/finvault/pkg/vault"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const testPIN = "5820"

// resetCommandFlags restores every flag of cmd and its children to its
// default so package-level flag variables do not leak between runs.
func resetCommandFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, child := range cmd.Commands() {
		resetCommandFlags(child)
	}
}

// runCLI executes the root command with pins answering PIN prompts in
// order and stdin answering confirmations. It returns stdout.
func runCLI(t *testing.T, pins []string, stdin string, args ...string) (string, error) {
	t.Helper()

	resetCommandFlags(rootCmd)
	stdinLines = nil
	readPIN = func(_ *cobra.Command, prompt string) (string, error) {
		if len(pins) == 0 {
			t.Fatalf("unexpected PIN prompt %q", prompt)
		}
		pin := pins[0]
		pins = pins[1:]
		return pin, nil
	}
	defer func() { readPIN = promptPIN }()

	// prompts and warnings go to stderr and stay out of JSON output
	var out, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	closeVault()
	if err != nil {
		t.Logf("finvault %s: %s", strings.Join(args, " "), stderr.String())
	}
	return out.String(), err
}

func setupHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "finvault")
	t.Setenv(config.HomeEnv, home)

	fixed := time.Date(2025, time.August, 20, 9, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })
	return home
}

func initVault(t *testing.T) {
	t.Helper()
	out, err := runCLI(t, []string{testPIN, testPIN}, "", "init")
	if err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}
}

func TestCLIInit(t *testing.T) {
	home := setupHome(t)
	initVault(t)

	if _, err := os.Stat(filepath.Join(home, vault.DBFileName)); err != nil {
		t.Errorf("database not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, config.FileName)); err != nil {
		t.Errorf("config not written on first init: %v", err)
	}

	if _, err := runCLI(t, nil, "", "init"); err == nil {
		t.Error("second init must fail")
	}

	out, err := runCLI(t, []string{testPIN}, "", "category", "list", "--json")
	if err != nil {
		t.Fatalf("category list failed: %v\n%s", err, out)
	}
	var cats []vault.Category
	if err := json.Unmarshal([]byte(out), &cats); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(cats) != 6 {
		t.Errorf("expected the 6 default categories, got %d", len(cats))
	}
}

func TestCLIInitMismatchedPIN(t *testing.T) {
	setupHome(t)
	if _, err := runCLI(t, []string{testPIN, "5821"}, "", "init"); err == nil {
		t.Fatal("expected error for mismatched PINs")
	}
	if _, err := runCLI(t, []string{"12a4", "12a4"}, "", "init"); err == nil {
		t.Fatal("expected error for a non-numeric PIN")
	}
}

func TestCLITransactionsAndReports(t *testing.T) {
	setupHome(t)
	initVault(t)

	adds := [][]string{
		{"tx", "add", "--type", "income", "--category", "Gaji", "--amount", "5jt", "--date", "2025-08-01"},
		{"tx", "add", "--type", "expense", "--category", "makan", "--amount", "Rp150.000", "--date", "2025-08-03", "--note", "belanja"},
		{"tx", "add", "--type", "expense", "--amount", "25rb"},
	}
	for _, args := range adds {
		if out, err := runCLI(t, []string{testPIN}, "", args...); err != nil {
			t.Fatalf("%v failed: %v\n%s", args, err, out)
		}
	}

	out, err := runCLI(t, []string{testPIN}, "", "tx", "list", "--json")
	if err != nil {
		t.Fatalf("tx list failed: %v\n%s", err, out)
	}
	var txs []vault.Transaction
	if err := json.Unmarshal([]byte(out), &txs); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	// newest first; the undated add defaults to today
	if txs[0].Date != "2025-08-20" || txs[0].Amount != 25_000 || txs[0].CategoryID != nil {
		t.Errorf("unexpected first transaction %+v", txs[0])
	}
	if txs[1].CategoryName != "Makan" || txs[1].Note != "belanja" {
		t.Errorf("unexpected second transaction %+v", txs[1])
	}

	out, err = runCLI(t, []string{testPIN}, "", "tx", "list", "--type", "income")
	if err != nil {
		t.Fatalf("tx list --type failed: %v", err)
	}
	if !strings.Contains(out, "Rp5.000.000") || strings.Contains(out, "belanja") {
		t.Errorf("unexpected filtered listing:\n%s", out)
	}

	out, err = runCLI(t, []string{testPIN}, "", "report", "summary")
	if err != nil {
		t.Fatalf("report summary failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Rp5.000.000", "Rp175.000", "Rp4.825.000", "hemat"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, []string{testPIN}, "", "report", "categories", "--json")
	if err != nil {
		t.Fatalf("report categories failed: %v\n%s", err, out)
	}
	var totals []struct {
		ID    string `json:"id"`
		Total int64  `json:"total"`
	}
	if err := json.Unmarshal([]byte(out), &totals); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(totals) != 2 || totals[0].ID != "cat-makan" || totals[1].ID != "lainnya" {
		t.Errorf("unexpected category totals %+v", totals)
	}

	out, err = runCLI(t, []string{testPIN}, "", "report", "trend", "--months", "3")
	if err != nil {
		t.Fatalf("report trend failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Jun 25", "Jul 25", "Agu 25"} {
		if !strings.Contains(out, want) {
			t.Errorf("trend missing %q:\n%s", want, out)
		}
	}
}

func TestCLIEditAndDelete(t *testing.T) {
	setupHome(t)
	initVault(t)

	if out, err := runCLI(t, []string{testPIN}, "", "tx", "add", "--type", "expense", "--category", "Makan", "--amount", "10000", "--date", "2025-08-01"); err != nil {
		t.Fatalf("tx add failed: %v\n%s", err, out)
	}
	txs := listTransactions(t)
	id := txs[0].ID

	// Switching to income drops the expense category
	if out, err := runCLI(t, []string{testPIN}, "", "tx", "edit", id[:8], "--type", "income", "--amount", "12rb"); err != nil {
		t.Fatalf("tx edit failed: %v\n%s", err, out)
	}
	txs = listTransactions(t)
	if txs[0].Type != vault.Income || txs[0].Amount != 12_000 || txs[0].CategoryID != nil {
		t.Errorf("unexpected edited transaction %+v", txs[0])
	}

	if _, err := runCLI(t, []string{testPIN}, "", "tx", "edit", id); err == nil {
		t.Error("edit without flags must fail")
	}

	out, err := runCLI(t, []string{testPIN}, "n\n", "tx", "delete", id)
	if err != nil || !strings.Contains(out, "Aborted") {
		t.Fatalf("declined delete: %v\n%s", err, out)
	}
	if out, err := runCLI(t, []string{testPIN}, "y\n", "tx", "delete", id); err != nil {
		t.Fatalf("tx delete failed: %v\n%s", err, out)
	}
	if txs := listTransactions(t); len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func listTransactions(t *testing.T) []vault.Transaction {
	t.Helper()
	out, err := runCLI(t, []string{testPIN}, "", "tx", "list", "--json")
	if err != nil {
		t.Fatalf("tx list failed: %v\n%s", err, out)
	}
	var txs []vault.Transaction
	if err := json.Unmarshal([]byte(out), &txs); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	return txs
}

func TestCLIWrongPIN(t *testing.T) {
	setupHome(t)
	initVault(t)

	_, err := runCLI(t, []string{"9999"}, "", "tx", "list")
	if err == nil || !strings.Contains(err.Error(), "incorrect PIN") {
		t.Fatalf("expected incorrect PIN error, got %v", err)
	}

	out, err := runCLI(t, nil, "", "lock-status")
	if err != nil {
		t.Fatalf("lock-status failed: %v", err)
	}
	if !strings.Contains(out, "Failed attempts: 1") {
		t.Errorf("expected one failed attempt:\n%s", out)
	}
}

func TestCLIPINChange(t *testing.T) {
	setupHome(t)
	initVault(t)

	if out, err := runCLI(t, []string{testPIN}, "", "tx", "add", "--type", "income", "--amount", "1000", "--date", "2025-08-01"); err != nil {
		t.Fatalf("tx add failed: %v\n%s", err, out)
	}
	if out, err := runCLI(t, []string{testPIN, "7305", "7305"}, "", "pin", "change"); err != nil {
		t.Fatalf("pin change failed: %v\n%s", err, out)
	}
	if _, err := runCLI(t, []string{testPIN}, "", "tx", "list"); err == nil {
		t.Error("old PIN must no longer unlock")
	}
	out, err := runCLI(t, []string{"7305"}, "", "tx", "list")
	if err != nil || !strings.Contains(out, "Rp1.000") {
		t.Errorf("new PIN must unlock the re-encrypted data: %v\n%s", err, out)
	}
}

func TestCLIExportImport(t *testing.T) {
	home := setupHome(t)
	initVault(t)

	if out, err := runCLI(t, []string{testPIN}, "", "tx", "add", "--type", "expense", "--category", "Tagihan", "--amount", "300rb", "--date", "2025-07-10"); err != nil {
		t.Fatalf("tx add failed: %v\n%s", err, out)
	}

	backup := filepath.Join(home, "backup.json")
	if out, err := runCLI(t, []string{testPIN}, "", "export", "-o", backup); err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}

	if out, err := runCLI(t, []string{testPIN}, "", "tx", "delete", "--force", listTransactions(t)[0].ID); err != nil {
		t.Fatalf("tx delete failed: %v\n%s", err, out)
	}

	if out, err := runCLI(t, []string{testPIN}, "", "import", "--force", backup); err != nil {
		t.Fatalf("import failed: %v\n%s", err, out)
	}
	txs := listTransactions(t)
	if len(txs) != 1 || txs[0].Amount != 300_000 || txs[0].CategoryName != "Tagihan" {
		t.Errorf("unexpected transactions after import %+v", txs)
	}

	bad := filepath.Join(home, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"transactions": {}, "categories": []}`), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := runCLI(t, []string{testPIN}, "", "import", "--force", bad)
	if err == nil || !strings.Contains(err.Error(), "malformed data") {
		t.Errorf("expected malformed data error, got %v", err)
	}
}

func TestCLITransactionImport(t *testing.T) {
	home := setupHome(t)
	initVault(t)

	file := filepath.Join(home, "mutasi.csv")
	csvData := "Tanggal;Keterangan;Debet;Kredit;Kategori\n" +
		"01/08/2025;GAJI;;5.000.000;Gaji\n" +
		"02/08/2025;WARUNG;25.000;;Makan\n" +
		"03/08/2025;TOKO;10.000;;Hobi\n" +
		"tanggal salah;X;1;;\n"
	if err := os.WriteFile(file, []byte(csvData), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, []string{testPIN}, "", "tx", "import", "--source", "statement", "--dry-run", file)
	if err != nil {
		t.Fatalf("dry run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 transaction(s) would be imported, 1 line(s) skipped") {
		t.Errorf("unexpected dry run output:\n%s", out)
	}
	if txs := listTransactions(t); len(txs) != 0 {
		t.Fatalf("dry run must not save, got %d", len(txs))
	}

	out, err = runCLI(t, []string{testPIN}, "", "tx", "import", "-s", "statement", "--force", file)
	if err != nil {
		t.Fatalf("import failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported 3 transaction(s)") {
		t.Errorf("unexpected import output:\n%s", out)
	}

	byNote := make(map[string]vault.Transaction)
	for _, tx := range listTransactions(t) {
		byNote[tx.Note] = tx
	}
	if tx := byNote["GAJI"]; tx.Type != vault.Income || tx.CategoryID == nil || *tx.CategoryID != "cat-gaji" {
		t.Errorf("salary should link to cat-gaji, got %+v", tx)
	}
	if tx := byNote["WARUNG"]; tx.Amount != 25_000 || tx.CategoryID == nil || *tx.CategoryID != "cat-makan" {
		t.Errorf("warung should link to cat-makan, got %+v", tx)
	}
	if tx := byNote["TOKO"]; tx.CategoryID != nil || tx.CategoryName != "Hobi" {
		t.Errorf("unknown category should be kept as text, got %+v", tx)
	}

	if _, err := runCLI(t, nil, "", "tx", "import", "--source", "ofx", file); err == nil {
		t.Error("unknown source must be rejected")
	}
}

func TestCLIBackupRestore(t *testing.T) {
	home := setupHome(t)
	initVault(t)

	if out, err := runCLI(t, []string{testPIN}, "", "tx", "add", "--type", "income", "--amount", "2jt", "--date", "2025-08-05"); err != nil {
		t.Fatalf("tx add failed: %v\n%s", err, out)
	}

	file := filepath.Join(home, "finvault.bkp")
	out, err := runCLI(t, []string{testPIN}, "", "backup", "-o", file)
	if err != nil {
		t.Fatalf("backup failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Backup written to") {
		t.Errorf("unexpected backup output:\n%s", out)
	}
	if _, err := runCLI(t, []string{testPIN}, "", "backup", "-o", file); err == nil {
		t.Error("backup must not overwrite without --force")
	}

	out, err = runCLI(t, []string{testPIN}, "", "restore", "--verify-only", file)
	if err != nil || !strings.Contains(out, "Backup verified") {
		t.Fatalf("verify-only failed: %v\n%s", err, out)
	}
	_, err = runCLI(t, []string{"0000"}, "", "restore", "--verify-only", file)
	if err == nil || !strings.Contains(err.Error(), "incorrect backup PIN") {
		t.Errorf("expected an incorrect backup PIN error, got %v", err)
	}

	// Declining the confirmation changes nothing
	out, err = runCLI(t, []string{testPIN, testPIN}, "n\n", "restore", file)
	if err != nil || !strings.Contains(out, "Aborted") {
		t.Errorf("expected abort: %v\n%s", err, out)
	}

	if out, err := runCLI(t, nil, "", "reset", "--force"); err != nil {
		t.Fatalf("reset failed: %v\n%s", err, out)
	}
	// Only the backup PIN is asked for once the vault is empty
	out, err = runCLI(t, []string{testPIN}, "", "restore", "--force", file)
	if err != nil || !strings.Contains(out, "Restore complete") {
		t.Fatalf("restore failed: %v\n%s", err, out)
	}

	txs := listTransactions(t)
	if len(txs) != 1 || txs[0].Amount != 2_000_000 {
		t.Errorf("unexpected transactions after restore %+v", txs)
	}
}

func TestCLIAudit(t *testing.T) {
	setupHome(t)
	initVault(t)

	if out, err := runCLI(t, []string{testPIN}, "", "tx", "add", "--type", "income", "--amount", "1000", "--date", "2025-08-01"); err != nil {
		t.Fatalf("tx add failed: %v\n%s", err, out)
	}

	out, err := runCLI(t, []string{testPIN}, "", "audit", "verify")
	if err != nil {
		t.Fatalf("audit verify failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "chain intact") {
		t.Errorf("expected an intact chain:\n%s", out)
	}

	out, err = runCLI(t, []string{testPIN}, "", "audit", "export", "--format", "csv")
	if err != nil {
		t.Fatalf("audit export failed: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "timestamp,operation,result,record") {
		t.Errorf("unexpected CSV header:\n%s", out)
	}
}

func TestCLIThemeAndReset(t *testing.T) {
	setupHome(t)
	initVault(t)

	out, err := runCLI(t, nil, "", "theme")
	if err != nil || strings.TrimSpace(out) != vault.ThemeLight {
		t.Fatalf("theme = %q, %v", out, err)
	}
	if _, err := runCLI(t, nil, "", "theme", "dark"); err != nil {
		t.Fatalf("theme dark failed: %v", err)
	}
	if _, err := runCLI(t, nil, "", "theme", "blue"); err == nil {
		t.Error("unknown theme must be rejected")
	}

	if out, err := runCLI(t, nil, "", "reset", "--force"); err != nil {
		t.Fatalf("reset failed: %v\n%s", err, out)
	}
	out, err = runCLI(t, nil, "", "lock-status")
	if err != nil || !strings.Contains(out, "PIN registered:  false") {
		t.Errorf("reset must remove the PIN: %v\n%s", err, out)
	}
}
