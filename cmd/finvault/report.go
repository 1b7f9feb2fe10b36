package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/forest6511/finvault/internal/cli"
	"github.com/forest6511/finvault/pkg/report"
	"github.com/forest6511/finvault/pkg/vault"

	"github.com/spf13/cobra"
)

// Report flags
var (
	reportMonth  string
	reportMonths int
	reportJSON   bool
)

const trendBarWidth = 30

// reportCmd is the parent command for reports
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summaries computed from the decrypted ledger",
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Income, expense, balance and monthly average",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		txs, _, err := loadForReport(cmd)
		if err != nil {
			return err
		}
		totals := report.Summary(txs)
		average := report.MonthlyAverageExpense(txs)
		message := report.MonthMessage(txs, now())

		out := cmd.OutOrStdout()
		if reportJSON {
			return writeJSON(out, struct {
				report.Totals
				MonthlyAverageExpense int64  `json:"monthlyAverageExpense"`
				Message               string `json:"message"`
			}{totals, average, message})
		}

		cur := cfg.Currency
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Income:\t%s\n", report.FormatAmount(totals.Income, cur))
		fmt.Fprintf(tw, "Expense:\t%s\n", report.FormatAmount(totals.Expense, cur))
		fmt.Fprintf(tw, "Balance:\t%s\n", report.FormatAmount(totals.Balance, cur))
		fmt.Fprintf(tw, "Monthly average expense:\t%s\n", report.FormatAmount(average, cur))
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, message)
		return nil
	},
}

var reportCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Expenses per category, largest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		txs, cats, err := loadForReport(cmd)
		if err != nil {
			return err
		}
		totals := report.ExpenseByCategory(txs, cats)

		out := cmd.OutOrStdout()
		if reportJSON {
			return writeJSON(out, totals)
		}
		if len(totals) == 0 {
			fmt.Fprintln(out, "No expenses recorded")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "CATEGORY\tTOTAL\tSHARE\t")
		for _, t := range totals {
			fmt.Fprintf(tw, "%s\t%s\t%s%%\t\n", t.Name, report.FormatAmount(t.Total, cfg.Currency), t.Share.StringFixed(1))
		}
		return tw.Flush()
	},
}

var reportTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Monthly income and expense for recent months",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		months := reportMonths
		if !cmd.Flags().Changed("months") {
			months = cfg.TrendMonths
		}
		if months < 1 || months > 24 {
			return fmt.Errorf("--months must be between 1 and 24")
		}

		reportMonth = ""
		txs, _, err := loadForReport(cmd)
		if err != nil {
			return err
		}
		points := report.MonthlyTrend(txs, now(), months)

		out := cmd.OutOrStdout()
		if reportJSON {
			return writeJSON(out, points)
		}
		printTrend(out, points, cfg.Currency)
		return nil
	},
}

func init() {
	reportCmd.AddCommand(reportSummaryCmd)
	reportCmd.AddCommand(reportCategoriesCmd)
	reportCmd.AddCommand(reportTrendCmd)

	reportCmd.PersistentFlags().BoolVar(&reportJSON, "json", false, "Output as JSON")
	reportSummaryCmd.Flags().StringVarP(&reportMonth, "month", "m", "", "Only this month (YYYY-MM)")
	reportCategoriesCmd.Flags().StringVarP(&reportMonth, "month", "m", "", "Only this month (YYYY-MM)")
	reportTrendCmd.Flags().IntVar(&reportMonths, "months", report.DefaultTrendMonths, "Number of months to show (default from config)")
}

// loadForReport unlocks and returns transactions, narrowed by --month, and
// categories.
func loadForReport(cmd *cobra.Command) ([]vault.Transaction, []vault.Category, error) {
	var filter report.Filter
	if reportMonth != "" {
		year, month, err := cli.ParseMonth(reportMonth)
		if err != nil {
			return nil, nil, err
		}
		filter.Year, filter.Month = year, month
	}

	if err := ensureUnlocked(cmd); err != nil {
		return nil, nil, err
	}
	ctx := cmdContext(cmd)
	txs, err := sess.Transactions(ctx)
	if err != nil {
		return nil, nil, friendlyError(err)
	}
	cats, err := sess.Categories(ctx)
	if err != nil {
		return nil, nil, friendlyError(err)
	}
	if filter != (report.Filter{}) {
		txs = report.FilterTransactions(txs, filter)
	}
	return txs, cats, nil
}

func printTrend(w io.Writer, points []report.MonthPoint, currency string) {
	var peak int64
	for _, p := range points {
		peak = max(peak, p.Income, p.Expense)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tINCOME\tEXPENSE\t")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Label,
			report.FormatAmount(p.Income, currency),
			report.FormatAmount(p.Expense, currency),
			trendBar(p.Income, p.Expense, peak))
	}
	_ = tw.Flush()
}

// trendBar draws income as '+' and expense as '-' scaled to peak.
func trendBar(income, expense, peak int64) string {
	if peak == 0 {
		return ""
	}
	scale := func(n int64) int {
		return int(n * trendBarWidth / peak)
	}
	return strings.Repeat("+", scale(income)) + "|" + strings.Repeat("-", scale(expense))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
