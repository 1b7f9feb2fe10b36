package importer

import (
	"fmt"
	"strings"

	"github.com/forest6511/finvault/pkg/vault"
)

// CSVParser reads rows of date, type, category, amount and note. Only date
// and amount are required; the type falls back to ParseOptions.DefaultType.
type CSVParser struct{}

// Source returns SourceCSV.
func (p *CSVParser) Source() Source {
	return SourceCSV
}

// Parse parses CSV data.
func (p *CSVParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	t, err := readTable(data)
	if err != nil {
		return nil, err
	}

	iDate, iAmount := t.index(colDate), t.index(colAmount)
	if iDate < 0 {
		return nil, fmt.Errorf("missing required column: date")
	}
	if iAmount < 0 {
		return nil, fmt.Errorf("missing required column: amount")
	}
	iType, iCategory, iNote := t.index(colType), t.index(colCategory), t.index(colNote)
	if iType < 0 && !opts.DefaultType.Valid() {
		return nil, fmt.Errorf("missing column: type (or choose a default type)")
	}

	result := &ImportResult{}
	err = t.rows(func(row int, rec []string) {
		tx, reason := p.parseRow(rec, iDate, iType, iCategory, iAmount, iNote, opts)
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedItem{Row: row, Reason: reason})
			return
		}
		tx.Row = row
		if len(tx.Note) > vault.MaxNoteLength {
			tx.Note = truncate(tx.Note, vault.MaxNoteLength)
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: note truncated", row))
		}
		result.Transactions = append(result.Transactions, tx)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *CSVParser) parseRow(rec []string, iDate, iType, iCategory, iAmount, iNote int, opts ParseOptions) (*ImportedTransaction, string) {
	date, err := ParseDate(field(rec, iDate))
	if err != nil {
		return nil, err.Error()
	}

	typ := opts.DefaultType
	if raw := field(rec, iType); raw != "" {
		typ, err = ParseType(raw)
		if err != nil {
			return nil, err.Error()
		}
	}
	if !typ.Valid() {
		return nil, "missing type"
	}

	amount, err := ParseAmount(field(rec, iAmount))
	if err != nil {
		return nil, err.Error()
	}
	if amount == 0 {
		return nil, "zero amount"
	}

	return &ImportedTransaction{
		Date:     date,
		Type:     typ,
		Category: vault.NormalizeCategoryName(field(rec, iCategory)),
		Amount:   amount,
		Note:     field(rec, iNote),
	}, ""
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
