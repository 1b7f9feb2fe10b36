// Package report aggregates decrypted transactions for display.
//
// Every function here works on plaintext slices handed over by a vault
// session and never touches storage or keys.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/forest6511/finvault/pkg/vault"
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = money.IDR

// DefaultTrendMonths is the window of MonthlyTrend when none is given.
const DefaultTrendMonths = 6

const (
	otherKey  = "lainnya"
	otherName = "Lainnya"
)

// Month summary messages
const (
	MsgNoTransactions = "Bulan ini belum ada transaksi. Mulai catat yuk!"
	MsgSaving         = "Bulan ini kamu hemat. Pertahankan!"
	MsgOverspending   = "Pengeluaran melebihi pemasukan, cek lagi ya."
)

var shortMonths = [...]string{"Jan", "Feb", "Mar", "Apr", "Mei", "Jun", "Jul", "Agu", "Sep", "Okt", "Nov", "Des"}

// Totals is the income, expense and balance over a set of transactions.
type Totals struct {
	Income  int64 `json:"income"`
	Expense int64 `json:"expense"`
	Balance int64 `json:"balance"`
}

// CategoryTotal is the expense sum for one category.
// Share is the percentage of all expenses, rounded to one decimal place.
type CategoryTotal struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Total int64           `json:"total"`
	Share decimal.Decimal `json:"share"`
}

// MonthTotals is the income and expense of one calendar month.
type MonthTotals struct {
	Income  int64 `json:"income"`
	Expense int64 `json:"expense"`
}

// MonthPoint is one bar of the monthly trend.
type MonthPoint struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Income  int64  `json:"income"`
	Expense int64  `json:"expense"`
}

// Summary sums income and expense. Anything not typed income counts as
// expense.
func Summary(txs []vault.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		if tx.Type == vault.Income {
			t.Income += tx.Amount
		} else {
			t.Expense += tx.Amount
		}
	}
	t.Balance = t.Income - t.Expense
	return t
}

// ExpenseByCategory groups expenses by category id, falling back to the
// recorded category name and then to "lainnya". Names come from cats when
// the key is a known category id. The result is sorted by total, largest
// first; ties keep a stable order by key.
func ExpenseByCategory(txs []vault.Transaction, cats []vault.Category) []CategoryTotal {
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}

	totals := make(map[string]int64)
	var grand int64
	for _, tx := range txs {
		if tx.Type != vault.Expense {
			continue
		}
		totals[expenseKey(tx)] += tx.Amount
		grand += tx.Amount
	}

	out := make([]CategoryTotal, 0, len(totals))
	for key, total := range totals {
		name, ok := names[key]
		if !ok {
			name = key
			if key == otherKey {
				name = otherName
			}
		}
		out = append(out, CategoryTotal{ID: key, Name: name, Total: total, Share: share(total, grand)})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func expenseKey(tx vault.Transaction) string {
	if tx.CategoryID != nil && *tx.CategoryID != "" {
		return *tx.CategoryID
	}
	if tx.CategoryName != "" {
		return tx.CategoryName
	}
	return otherKey
}

func share(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(whole), 1)
}

// GroupByMonth buckets transactions by the YYYY-MM prefix of their date.
// Transactions without a date are skipped.
func GroupByMonth(txs []vault.Transaction) map[string]MonthTotals {
	out := make(map[string]MonthTotals)
	for _, tx := range txs {
		if len(tx.Date) < 7 {
			continue
		}
		key := tx.Date[:7]
		m := out[key]
		if tx.Type == vault.Income {
			m.Income += tx.Amount
		} else {
			m.Expense += tx.Amount
		}
		out[key] = m
	}
	return out
}

// MonthlyAverageExpense is the total expense divided by the number of
// months that have any transaction, rounded half up. It is 0 when there
// are no dated transactions.
func MonthlyAverageExpense(txs []vault.Transaction) int64 {
	monthly := GroupByMonth(txs)
	if len(monthly) == 0 {
		return 0
	}
	total := decimal.Zero
	for _, m := range monthly {
		total = total.Add(decimal.NewFromInt(m.Expense))
	}
	return total.DivRound(decimal.NewFromInt(int64(len(monthly))), 0).IntPart()
}

// MonthlyTrend returns one point per month for the last months calendar
// months ending with the month of now, oldest first. Months without
// transactions are present with zero totals. A non-positive months uses
// DefaultTrendMonths.
func MonthlyTrend(txs []vault.Transaction, now time.Time, months int) []MonthPoint {
	if months <= 0 {
		months = DefaultTrendMonths
	}
	monthly := GroupByMonth(txs)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	out := make([]MonthPoint, 0, months)
	for i := months - 1; i >= 0; i-- {
		d := first.AddDate(0, -i, 0)
		key := MonthKey(d)
		m := monthly[key]
		out = append(out, MonthPoint{
			Key:     key,
			Label:   MonthLabel(d),
			Income:  m.Income,
			Expense: m.Expense,
		})
	}
	return out
}

// MonthMessage is a one-line verdict on the month of now.
func MonthMessage(txs []vault.Transaction, now time.Time) string {
	current, ok := GroupByMonth(txs)[MonthKey(now)]
	switch {
	case !ok:
		return MsgNoTransactions
	case current.Income >= current.Expense:
		return MsgSaving
	default:
		return MsgOverspending
	}
}

// Filter narrows a transaction listing. Empty fields match everything.
// Year is four digits and Month two digits, both matched against Date.
type Filter struct {
	Type  vault.EntryType
	Year  string
	Month string
}

// FilterTransactions returns the transactions matching f, newest date
// first. Transactions on the same date keep their stored order.
func FilterTransactions(txs []vault.Transaction, f Filter) []vault.Transaction {
	out := make([]vault.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.Year != "" && (len(tx.Date) < 4 || tx.Date[:4] != f.Year) {
			continue
		}
		if f.Month != "" && (len(tx.Date) < 7 || tx.Date[5:7] != f.Month) {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// MonthLabel formats t as a short Indonesian month and two-digit year,
// e.g. "Agu 25".
func MonthLabel(t time.Time) string {
	return fmt.Sprintf("%s %02d", shortMonths[t.Month()-1], t.Year()%100)
}

// FormatAmount renders a whole-unit amount in the given ISO currency,
// e.g. "Rp150.000". Unknown currencies fall back to the code followed by
// the plain number.
func FormatAmount(amount int64, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return fmt.Sprintf("%s %d", currency, amount)
	}
	// Amounts are stored in whole units, so no fraction digits are shown.
	f := money.NewFormatter(0, cur.Decimal, cur.Thousand, cur.Grapheme, cur.Template)
	return f.Format(amount)
}
