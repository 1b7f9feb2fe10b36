package importer

import (
	"fmt"

	"github.com/forest6511/finvault/pkg/vault"
)

// StatementParser reads a bank statement. The direction of each row comes
// from the sign of an amount column, or from which of a debit and a credit
// column is filled. Credits become income and debits expenses; the
// description becomes the note.
type StatementParser struct{}

// Source returns SourceStatement.
func (p *StatementParser) Source() Source {
	return SourceStatement
}

// Parse parses statement data.
func (p *StatementParser) Parse(data []byte, _ ParseOptions) (*ImportResult, error) {
	t, err := readTable(data)
	if err != nil {
		return nil, err
	}

	iDate := t.index(colDate)
	if iDate < 0 {
		return nil, fmt.Errorf("missing required column: date")
	}
	iAmount, iDebit, iCredit := t.index(colAmount), t.index(colDebit), t.index(colCredit)
	if iAmount < 0 && (iDebit < 0 || iCredit < 0) {
		return nil, fmt.Errorf("missing required columns: amount, or debit and credit")
	}
	iNote, iCategory := t.index(colNote), t.index(colCategory)

	result := &ImportResult{}
	err = t.rows(func(row int, rec []string) {
		date, err := ParseDate(field(rec, iDate))
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedItem{Row: row, Reason: err.Error()})
			return
		}

		var amount int64
		var typ vault.EntryType
		if iAmount >= 0 {
			amount, typ, err = signedAmount(field(rec, iAmount))
		} else {
			amount, typ, err = debitCredit(field(rec, iDebit), field(rec, iCredit))
		}
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedItem{Row: row, Reason: err.Error()})
			return
		}
		if amount == 0 {
			result.Skipped = append(result.Skipped, SkippedItem{Row: row, Reason: "zero amount"})
			return
		}

		tx := &ImportedTransaction{
			Row:      row,
			Date:     date,
			Type:     typ,
			Category: vault.NormalizeCategoryName(field(rec, iCategory)),
			Amount:   amount,
			Note:     field(rec, iNote),
		}
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

func signedAmount(s string) (int64, vault.EntryType, error) {
	amount, negative, err := parseSigned(s)
	if err != nil {
		return 0, "", err
	}
	if negative {
		return amount, vault.Expense, nil
	}
	return amount, vault.Income, nil
}

func debitCredit(debit, credit string) (int64, vault.EntryType, error) {
	var d, c int64
	var err error
	if debit != "" && debit != "-" {
		if d, err = ParseAmount(debit); err != nil {
			return 0, "", err
		}
	}
	if credit != "" && credit != "-" {
		if c, err = ParseAmount(credit); err != nil {
			return 0, "", err
		}
	}
	switch {
	case d > 0 && c > 0:
		return 0, "", fmt.Errorf("both debit and credit are set")
	case d > 0:
		return d, vault.Expense, nil
	default:
		return c, vault.Income, nil
	}
}
