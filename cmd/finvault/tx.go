package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/forest6511/finvault/internal/cli"
	"github.com/forest6511/finvault/pkg/report"
	"github.com/forest6511/finvault/pkg/vault"

	"github.com/spf13/cobra"
)

// Flags for tx add
var (
	addDate     string
	addType     string
	addCategory string
	addAmount   string
	addNote     string
)

// Flags for tx edit
var (
	editDate          string
	editType          string
	editCategory      string
	editClearCategory bool
	editAmount        string
	editNote          string
)

// Flags for tx list
var (
	listType  string
	listMonth string
	listYear  string
	listJSON  bool
)

var deleteForce bool

// txCmd is the parent command for transactions
var txCmd = &cobra.Command{
	Use:     "tx",
	Aliases: []string{"transaction"},
	Short:   "Record, list, edit and delete transactions",
}

var txAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction",
	Example: `  finvault tx add --type expense --category Makan --amount 25rb --note "nasi goreng"
  finvault tx add --type income --category cat-gaji --amount 5jt --date 2025-08-01`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := vault.EntryType(addType)
		if !typ.Valid() {
			return fmt.Errorf("--type must be income or expense")
		}
		amount, err := cli.ParseAmount(addAmount)
		if err != nil {
			return err
		}
		date := addDate
		if date == "" {
			date = now().Format(vault.DateLayout)
		}

		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		tx := vault.Transaction{
			Date:   date,
			Type:   typ,
			Amount: amount,
			Note:   strings.TrimSpace(addNote),
		}
		if addCategory != "" {
			cats, err := sess.Categories(ctx)
			if err != nil {
				return friendlyError(err)
			}
			cat, err := resolveCategory(cats, addCategory, typ)
			if err != nil {
				return err
			}
			tx.CategoryID = &cat.ID
			tx.CategoryName = cat.Name
		}

		saved, err := sess.AddTransaction(ctx, tx)
		if err != nil {
			return friendlyError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s saved: %s %s\n",
			cli.ShortID(saved.ID), saved.Type, report.FormatAmount(saved.Amount, cfg.Currency))
		return nil
	},
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listFilter()
		if err != nil {
			return err
		}
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		txs, err := sess.Transactions(ctx)
		if err != nil {
			return friendlyError(err)
		}
		cats, err := sess.Categories(ctx)
		if err != nil {
			return friendlyError(err)
		}
		txs = report.FilterTransactions(txs, filter)

		out := cmd.OutOrStdout()
		if listJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(txs)
		}
		if len(txs) == 0 {
			fmt.Fprintln(out, "No transactions found")
			return nil
		}
		printTransactions(out, txs, cats)
		return nil
	},
}

var txEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of a transaction",
	Long: `Change fields of a transaction. Only the flags given are changed.
The id may be a unique prefix as shown by 'finvault tx list'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		txs, err := sess.Transactions(ctx)
		if err != nil {
			return friendlyError(err)
		}
		ids, err := cli.ExpandID(args[0], transactionIDs(txs))
		if err != nil {
			return err
		}
		if len(ids) != 1 {
			return fmt.Errorf("edit needs exactly one transaction, %q matches %d", args[0], len(ids))
		}
		current := findTransaction(txs, ids[0])

		patch, err := buildPatch(cmd, current)
		if err != nil {
			return err
		}
		if patch.CategoryID != nil {
			typ := current.Type
			if patch.Type != nil {
				typ = *patch.Type
			}
			cats, err := sess.Categories(ctx)
			if err != nil {
				return friendlyError(err)
			}
			cat, err := resolveCategory(cats, *patch.CategoryID, typ)
			if err != nil {
				return err
			}
			patch.CategoryID = &cat.ID
		}

		updated, err := sess.UpdateTransaction(ctx, current.ID, patch)
		if err != nil {
			return friendlyError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s updated\n", cli.ShortID(updated.ID))
		return nil
	},
}

var txDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete transactions",
	Long: `Delete one or more transactions by id, unique id prefix or glob
pattern (e.g. '3f2a*').`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(cmd); err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		txs, err := sess.Transactions(ctx)
		if err != nil {
			return friendlyError(err)
		}
		ids, err := cli.ExpandIDs(args, transactionIDs(txs))
		if err != nil {
			return err
		}

		if !deleteForce && !confirm(cmd, fmt.Sprintf("Delete %d transaction(s)?", len(ids))) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
		for _, id := range ids {
			if err := sess.DeleteTransaction(ctx, id); err != nil {
				return friendlyError(err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d transaction(s)\n", len(ids))
		return nil
	},
}

func init() {
	txCmd.AddCommand(txAddCmd)
	txCmd.AddCommand(txListCmd)
	txCmd.AddCommand(txEditCmd)
	txCmd.AddCommand(txDeleteCmd)

	txAddCmd.Flags().StringVar(&addDate, "date", "", "Date as YYYY-MM-DD (default: today)")
	txAddCmd.Flags().StringVarP(&addType, "type", "t", "", "income or expense")
	txAddCmd.Flags().StringVarP(&addCategory, "category", "c", "", "Category id or name")
	txAddCmd.Flags().StringVarP(&addAmount, "amount", "a", "", "Amount, e.g. 150000, 150.000, 25rb, 1,5jt")
	txAddCmd.Flags().StringVarP(&addNote, "note", "n", "", "Free-form note")
	_ = txAddCmd.MarkFlagRequired("type")
	_ = txAddCmd.MarkFlagRequired("amount")

	txEditCmd.Flags().StringVar(&editDate, "date", "", "New date as YYYY-MM-DD")
	txEditCmd.Flags().StringVarP(&editType, "type", "t", "", "New type: income or expense")
	txEditCmd.Flags().StringVarP(&editCategory, "category", "c", "", "New category id or name")
	txEditCmd.Flags().BoolVar(&editClearCategory, "clear-category", false, "Remove the category reference")
	txEditCmd.Flags().StringVarP(&editAmount, "amount", "a", "", "New amount")
	txEditCmd.Flags().StringVarP(&editNote, "note", "n", "", "New note")
	txEditCmd.MarkFlagsMutuallyExclusive("category", "clear-category")

	txListCmd.Flags().StringVarP(&listType, "type", "t", "", "Only income or expense")
	txListCmd.Flags().StringVarP(&listMonth, "month", "m", "", "Only this month (YYYY-MM)")
	txListCmd.Flags().StringVarP(&listYear, "year", "y", "", "Only this year (YYYY)")
	txListCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	txListCmd.MarkFlagsMutuallyExclusive("month", "year")

	txDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

// listFilter turns the list flags into a report filter.
func listFilter() (report.Filter, error) {
	var f report.Filter
	if listType != "" {
		f.Type = vault.EntryType(listType)
		if !f.Type.Valid() {
			return f, fmt.Errorf("--type must be income or expense")
		}
	}
	if listMonth != "" {
		year, month, err := cli.ParseMonth(listMonth)
		if err != nil {
			return f, err
		}
		f.Year, f.Month = year, month
	}
	if listYear != "" {
		if len(listYear) != 4 || strings.Trim(listYear, "0123456789") != "" {
			return f, fmt.Errorf("invalid year %q (expected YYYY)", listYear)
		}
		f.Year = listYear
	}
	return f, nil
}

// buildPatch collects the changed edit flags. The category reference is
// resolved by the caller.
func buildPatch(cmd *cobra.Command, current vault.Transaction) (vault.TransactionPatch, error) {
	var patch vault.TransactionPatch
	flags := cmd.Flags()

	if flags.Changed("date") {
		patch.Date = &editDate
	}
	if flags.Changed("type") {
		typ := vault.EntryType(editType)
		if !typ.Valid() {
			return patch, fmt.Errorf("--type must be income or expense")
		}
		patch.Type = &typ
		// A category of the old type cannot stay
		if typ != current.Type && !flags.Changed("category") && current.CategoryID != nil {
			patch.ClearCategory = true
		}
	}
	if flags.Changed("category") {
		patch.CategoryID = &editCategory
	}
	if editClearCategory {
		patch.ClearCategory = true
	}
	if flags.Changed("amount") {
		amount, err := cli.ParseAmount(editAmount)
		if err != nil {
			return patch, err
		}
		patch.Amount = &amount
	}
	if flags.Changed("note") {
		note := strings.TrimSpace(editNote)
		patch.Note = &note
	}

	if patch == (vault.TransactionPatch{}) {
		return patch, errors.New("nothing to change, pass at least one flag")
	}
	return patch, nil
}

func transactionIDs(txs []vault.Transaction) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func findTransaction(txs []vault.Transaction, id string) vault.Transaction {
	for _, tx := range txs {
		if tx.ID == id {
			return tx
		}
	}
	return vault.Transaction{}
}

// categoryLabel shows the live category name, the recorded snapshot when
// the category is gone, or "-".
func categoryLabel(tx vault.Transaction, names map[string]string) string {
	if tx.CategoryID != nil {
		if name, ok := names[*tx.CategoryID]; ok {
			return name
		}
	}
	if tx.CategoryName != "" {
		return tx.CategoryName
	}
	return "-"
}

func printTransactions(w io.Writer, txs []vault.Transaction, cats []vault.Category) {
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tNOTE")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			cli.ShortID(tx.ID), tx.Date, tx.Type, categoryLabel(tx, names),
			report.FormatAmount(tx.Amount, cfg.Currency), tx.Note)
	}
	_ = tw.Flush()
}
