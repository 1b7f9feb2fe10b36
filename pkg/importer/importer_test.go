package importer

import (
	"testing"

	"github.com/forest6511/finvault/pkg/vault"
)

func TestGetParser(t *testing.T) {
	for _, name := range ValidSources() {
		p, err := GetParser(Source(name))
		if err != nil {
			t.Fatalf("GetParser(%q) failed: %v", name, err)
		}
		if p.Source() != Source(name) {
			t.Errorf("GetParser(%q).Source() = %q", name, p.Source())
		}
	}
	if _, err := GetParser("bitwarden"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Date":               "date",
		" Tanggal Transaksi": "tanggal_transaksi",
		"Amount (IDR)":       "amount_idr",
		"KETERANGAN":         "keterangan",
	}
	for in, want := range tests {
		if got := NormalizeHeader(in); got != want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2025-08-01", "2025-08-01", false},
		{"2025/08/01", "2025-08-01", false},
		{"01/08/2025", "2025-08-01", false},
		{"1/8/2025", "2025-08-01", false},
		{"01-08-2025", "2025-08-01", false},
		{"01/08/25", "2025-08-01", false},
		{"2025-08-01 10:15:00", "2025-08-01", false},
		{"2025-08-01T10:15:00Z", "2025-08-01", false},
		{"31/02/2025", "", true},
		{"August 1", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want vault.EntryType
	}{
		{"income", vault.Income},
		{"Pemasukan", vault.Income},
		{" masuk ", vault.Income},
		{"EXPENSE", vault.Expense},
		{"pengeluaran", vault.Expense},
		{"keluar", vault.Expense},
		{"transfer", ""},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if got != tt.want || (tt.want == "") != (err != nil) {
			t.Errorf("ParseType(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"150000", 150_000, false},
		{"150.000", 150_000, false},
		{"150.000,00", 150_000, false},
		{"1,500,000.00", 1_500_000, false},
		{"Rp 25.000", 25_000, false},
		{"25rb", 25_000, false},
		{"abc", 0, true},
		{"-5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseSigned(t *testing.T) {
	tests := []struct {
		in       string
		amount   int64
		negative bool
	}{
		{"150.000", 150_000, false},
		{"+150.000", 150_000, false},
		{"-150.000", 150_000, true},
		{"(150.000)", 150_000, true},
		{"150.000 DB", 150_000, true},
		{"150.000 CR", 150_000, false},
		{"150,000.00 db", 150_000, true},
	}
	for _, tt := range tests {
		amount, negative, err := parseSigned(tt.in)
		if err != nil {
			t.Errorf("parseSigned(%q) failed: %v", tt.in, err)
			continue
		}
		if amount != tt.amount || negative != tt.negative {
			t.Errorf("parseSigned(%q) = %d, %v", tt.in, amount, negative)
		}
	}
}

func TestIsEmptyOrWhitespace(t *testing.T) {
	if !IsEmptyOrWhitespace(" \t\n") || !IsEmptyOrWhitespace("") || IsEmptyOrWhitespace(" a ") {
		t.Error("unexpected IsEmptyOrWhitespace result")
	}
}

func TestImportedTransactionToTransaction(t *testing.T) {
	it := &ImportedTransaction{Row: 4, Date: "2025-08-01", Type: vault.Expense, Category: "Makan", Amount: 10, Note: "x"}
	got := it.ToTransaction()
	want := vault.Transaction{Date: "2025-08-01", Type: vault.Expense, CategoryName: "Makan", Amount: 10, Note: "x"}
	if got.ID != "" || got.CategoryID != nil || got.Date != want.Date || got.Type != want.Type ||
		got.CategoryName != want.CategoryName || got.Amount != want.Amount || got.Note != want.Note {
		t.Errorf("ToTransaction() = %+v", got)
	}
}
