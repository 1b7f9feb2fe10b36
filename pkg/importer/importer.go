// Package importer parses transaction lists exported by other tools into
// records a vault session can append.
//
// Parsers are header driven: columns are found by name (English or
// Indonesian), so column order and extra columns do not matter. Rows that
// cannot be read are skipped with a reason instead of failing the file.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/finvault/internal/cli"
	"github.com/forest6511/finvault/pkg/vault"
)

// Source names an input format.
type Source string

const (
	// SourceCSV has one row per transaction with an explicit type column.
	SourceCSV Source = "csv"
	// SourceStatement is a bank statement: a signed amount column, or
	// separate debit and credit columns.
	SourceStatement Source = "statement"
)

// MaxRows bounds how many data rows one file may hold.
const MaxRows = 10_000

// ImportedTransaction is one parsed row. Category is the free-text category
// from the file and still has to be matched against the vault's categories.
type ImportedTransaction struct {
	Row      int // line in the file
	Date     string
	Type     vault.EntryType
	Category string
	Amount   int64
	Note     string
}

// ToTransaction converts the row to a vault record without a category id.
func (t *ImportedTransaction) ToTransaction() vault.Transaction {
	return vault.Transaction{
		Date:         t.Date,
		Type:         t.Type,
		CategoryName: t.Category,
		Amount:       t.Amount,
		Note:         t.Note,
	}
}

// ImportResult holds the parsed rows and everything that was left out.
type ImportResult struct {
	Transactions []*ImportedTransaction
	Warnings     []string
	Skipped      []SkippedItem
}

// SkippedItem is a row that could not be imported.
type SkippedItem struct {
	Row    int
	Reason string
}

// Parser reads one input format.
type Parser interface {
	Parse(data []byte, opts ParseOptions) (*ImportResult, error)
	Source() Source
}

// ParseOptions tune parsing.
type ParseOptions struct {
	// DefaultType is used by SourceCSV rows with an empty type column.
	DefaultType vault.EntryType
}

// GetParser returns the parser for source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case SourceCSV:
		return &CSVParser{}, nil
	case SourceStatement:
		return &StatementParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources lists the accepted source names.
func ValidSources() []string {
	return []string{string(SourceCSV), string(SourceStatement)}
}

// column aliases, matched after NormalizeHeader
var (
	colDate     = []string{"date", "tanggal", "tgl", "transaction_date"}
	colType     = []string{"type", "jenis", "tipe"}
	colCategory = []string{"category", "kategori", "categoryname"}
	colAmount   = []string{"amount", "jumlah", "nominal", "mutasi"}
	colNote     = []string{"note", "catatan", "description", "keterangan", "deskripsi"}
	colDebit    = []string{"debit", "debet", "db", "keluar"}
	colCredit   = []string{"credit", "kredit", "cr", "masuk"}
)

var headerCleaner = regexp.MustCompile(`[^a-z0-9_]`)

// NormalizeHeader lowercases a column name and drops everything but
// letters, digits and underscores ("Tanggal Transaksi" -> "tanggal_transaksi").
func NormalizeHeader(name string) string {
	name = strings.ToLower(NormalizeValue(name))
	name = strings.ReplaceAll(name, " ", "_")
	return headerCleaner.ReplaceAllString(name, "")
}

// NormalizeValue trims whitespace and applies NFC.
func NormalizeValue(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// IsEmptyOrWhitespace reports whether s has no visible characters.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// table is a CSV file with a resolved header.
type table struct {
	reader *csv.Reader
	cols   map[string]int
}

func readTable(data []byte) (*table, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if semicolonSeparated(data) {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := NormalizeHeader(name)
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	return &table{reader: reader, cols: cols}, nil
}

// semicolonSeparated guesses the delimiter from the first line; spreadsheet
// exports in Indonesian locales use ';'.
func semicolonSeparated(data []byte) bool {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	return bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','})
}

// index returns the column of the first alias present, or -1.
func (t *table) index(aliases []string) int {
	for _, a := range aliases {
		if i, ok := t.cols[a]; ok {
			return i
		}
	}
	return -1
}

// rows calls fn for every non-blank data row with its line number.
func (t *table) rows(fn func(line int, rec []string)) error {
	count := 0
	for {
		rec, err := t.reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV: %w", err)
		}
		if blankRecord(rec) {
			continue
		}
		count++
		if count > MaxRows {
			return fmt.Errorf("file has more than %d rows", MaxRows)
		}
		line, _ := t.reader.FieldPos(0)
		fn(line, rec)
	}
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if !IsEmptyOrWhitespace(f) {
			return false
		}
	}
	return true
}

// field returns rec[i] normalized, or "" when the column is missing.
func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return NormalizeValue(rec[i])
}

var dateLayouts = []string{
	vault.DateLayout,
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02/01/06",
}

// ParseDate reads a date in ISO or day-first form and returns it as
// YYYY-MM-DD.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	// timestamps keep only the date part
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(vault.DateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// ParseType reads an entry type in English or Indonesian.
func ParseType(s string) (vault.EntryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "pemasukan", "masuk", "in", "cr", "kredit", "credit":
		return vault.Income, nil
	case "expense", "pengeluaran", "keluar", "out", "db", "debet", "debit":
		return vault.Expense, nil
	default:
		return "", fmt.Errorf("unknown type %q", s)
	}
}

var zeroCents = regexp.MustCompile(`[.,]00$`)

// ParseAmount reads a non-negative whole amount. Shorthands such as "25rb"
// are accepted, and a ",00" or ".00" fraction is dropped when the number
// also has thousand separators.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if loc := zeroCents.FindStringIndex(s); loc != nil && strings.ContainsAny(s[:loc[0]], ".,") {
		s = s[:loc[0]]
	}
	return cli.ParseAmount(s)
}

// parseSigned reads an amount that may carry a sign, a trailing "CR"/"DB"
// marker or accounting parentheses. negative reports money out.
func parseSigned(s string) (amount int64, negative bool, err error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DB"):
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative = true
		s = s[1 : len(s)-1]
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	amount, err = ParseAmount(s)
	return amount, negative, err
}
