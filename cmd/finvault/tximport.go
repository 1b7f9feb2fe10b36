package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forest6511/finvault/pkg/importer"
	"github.com/forest6511/finvault/pkg/report"
	"github.com/forest6511/finvault/pkg/vault"
)

// maxImportFileSize bounds the CSV read into memory.
const maxImportFileSize = 16 * 1024 * 1024

// Flags for tx import
var (
	importSource      string
	importDefaultType string
	importDryRun      bool
	txImportForce     bool
)

var txImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Append transactions from a CSV file or bank statement",
	Long: `Append transactions read from a CSV file. Existing transactions are kept.

Sources:
  csv        columns date, type, category, amount, note (English or
             Indonesian names, any order; only date and amount are required)
  statement  bank statement with a signed amount column, or debit and
             credit columns; credits become income, debits expenses

Categories are matched by name against your categories of the same type.
Unknown names are kept as text on the transaction. Rows that cannot be
read are reported and skipped.`,
	Example: `  finvault tx import mutasi.csv --source statement --dry-run
  finvault tx import pengeluaran.csv --type expense`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parser, err := importer.GetParser(importer.Source(importSource))
		if err != nil {
			return err
		}
		opts := importer.ParseOptions{DefaultType: vault.EntryType(importDefaultType)}
		if importDefaultType != "" && !opts.DefaultType.Valid() {
			return fmt.Errorf("--type must be income or expense")
		}

		data, err := readImportFile(args[0])
		if err != nil {
			return err
		}
		result, err := parser.Parse(data, opts)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		errOut := cmd.ErrOrStderr()
		for _, w := range result.Warnings {
			fmt.Fprintf(errOut, "Warning: %s\n", w)
		}
		for _, s := range result.Skipped {
			fmt.Fprintf(errOut, "Skipped line %d: %s\n", s.Row, s.Reason)
		}
		out := cmd.OutOrStdout()
		if len(result.Transactions) == 0 {
			fmt.Fprintln(out, "No transactions to import")
			return nil
		}

		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		ctx := cmdContext(cmd)
		cats, err := sess.Categories(ctx)
		if err != nil {
			return friendlyError(err)
		}
		txs := matchCategories(result.Transactions, cats, errOut)

		if importDryRun {
			printImportPreview(out, txs)
			fmt.Fprintf(out, "%d transaction(s) would be imported, %d line(s) skipped\n",
				len(txs), len(result.Skipped))
			return nil
		}
		question := fmt.Sprintf("Import %d transaction(s)?", len(txs))
		if !txImportForce && !confirm(cmd, question) {
			fmt.Fprintln(out, "Aborted")
			return nil
		}

		saved, err := sess.AddTransactions(ctx, txs)
		if err != nil {
			return friendlyError(err)
		}
		fmt.Fprintf(out, "Imported %d transaction(s), %d line(s) skipped\n", len(saved), len(result.Skipped))
		return nil
	},
}

func init() {
	txCmd.AddCommand(txImportCmd)

	txImportCmd.Flags().StringVarP(&importSource, "source", "s", string(importer.SourceCSV), "Input format: csv or statement")
	txImportCmd.Flags().StringVarP(&importDefaultType, "type", "t", "", "Type for csv rows without one: income or expense")
	txImportCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Show what would be imported without saving")
	txImportCmd.Flags().BoolVarP(&txImportForce, "force", "f", false, "Skip confirmation prompt")
}

func readImportFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	if info.Size() > maxImportFileSize {
		return nil, fmt.Errorf("import file too large: %s", formatSize(info.Size()))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	return data, nil
}

// matchCategories converts parsed rows, linking each category name to an
// existing category of the same type when there is exactly one.
func matchCategories(rows []*importer.ImportedTransaction, cats []vault.Category, warn io.Writer) []vault.Transaction {
	txs := make([]vault.Transaction, 0, len(rows))
	for _, row := range rows {
		tx := row.ToTransaction()
		if row.Category != "" {
			if cat, err := resolveCategory(cats, row.Category, row.Type); err == nil {
				tx.CategoryID = &cat.ID
				tx.CategoryName = cat.Name
			} else {
				fmt.Fprintf(warn, "Warning: line %d: %v, kept as text\n", row.Row, err)
			}
		}
		txs = append(txs, tx)
	}
	return txs
}

func printImportPreview(out io.Writer, txs []vault.Transaction) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTYPE\tCATEGORY\tAMOUNT\tNOTE")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tx.Date, tx.Type, categoryLabel(tx, nil),
			report.FormatAmount(tx.Amount, cfg.Currency), tx.Note)
	}
	_ = w.Flush()
}
