package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func validTx() Transaction {
	return Transaction{
		Date:         "2025-03-14",
		Type:         Expense,
		CategoryName: "Makan",
		Amount:       25000,
		Note:         "nasi goreng",
	}
}

func strPtr(s string) *string { return &s }

func TestAddTransaction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	s, _ := newUnlockedSession(t, WithClock(func() time.Time { return now }))

	tx, err := s.AddTransaction(ctx, validTx())
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	if tx.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if tx.CreatedAt == nil || !tx.CreatedAt.Equal(now) {
		t.Errorf("expected CreatedAt %v, got %v", now, tx.CreatedAt)
	}
	if tx.UpdatedAt != nil {
		t.Error("expected UpdatedAt to be unset on add")
	}

	txs, err := s.Transactions(ctx)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	got := txs[0]
	if got.ID != tx.ID || got.Amount != 25000 || got.Note != "nasi goreng" || got.Date != "2025-03-14" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestAddTransactionKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)

	var ids []string
	for i := 1; i <= 3; i++ {
		tx := validTx()
		tx.Amount = int64(i * 1000)
		added, err := s.AddTransaction(ctx, tx)
		if err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
		ids = append(ids, added.ID)
	}

	txs, _ := s.Transactions(ctx)
	for i, tx := range txs {
		if tx.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], tx.ID)
		}
	}
}

func TestAddTransactionWithCategory(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)

	tx := validTx()
	tx.CategoryID = strPtr("cat-makan")
	tx.CategoryName = ""
	added, err := s.AddTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	if added.CategoryName != "Makan" {
		t.Errorf("expected category name filled from category, got %q", added.CategoryName)
	}

	tests := []struct {
		name  string
		catID string
	}{
		{"unknown_category", "cat-nope"},
		{"type_mismatch", "cat-gaji"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTx()
			tx.CategoryID = strPtr(tt.catID)
			if _, err := s.AddTransaction(ctx, tx); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAddTransactionValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)

	tests := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"zero_amount", func(tx *Transaction) { tx.Amount = 0 }},
		{"negative_amount", func(tx *Transaction) { tx.Amount = -5 }},
		{"amount_over_max", func(tx *Transaction) { tx.Amount = MaxAmount + 1 }},
		{"bad_date", func(tx *Transaction) { tx.Date = "14/03/2025" }},
		{"impossible_date", func(tx *Transaction) { tx.Date = "2025-02-30" }},
		{"bad_type", func(tx *Transaction) { tx.Type = "transfer" }},
		{"long_note", func(tx *Transaction) { tx.Note = string(make([]byte, MaxNoteLength+1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTx()
			tt.mutate(&tx)
			if _, err := s.AddTransaction(ctx, tx); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	max := validTx()
	max.Amount = MaxAmount
	if _, err := s.AddTransaction(ctx, max); err != nil {
		t.Errorf("MaxAmount should be accepted: %v", err)
	}

	txs, _ := s.Transactions(ctx)
	if len(txs) != 1 {
		t.Errorf("rejected records must not be stored, got %d", len(txs))
	}
}

func TestAddTransactionDuplicateID(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)

	tx := validTx()
	tx.ID = "fixed"
	if _, err := s.AddTransaction(ctx, tx); err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	if _, err := s.AddTransaction(ctx, tx); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for duplicate id, got %v", err)
	}
}

func TestAddTransactions(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)
	_, _ = s.AddTransaction(ctx, validTx())

	income := validTx()
	income.Type = Income
	income.CategoryID = strPtr("cat-gaji")
	income.CategoryName = ""
	saved, err := s.AddTransactions(ctx, []Transaction{validTx(), income})
	if err != nil {
		t.Fatalf("AddTransactions failed: %v", err)
	}
	if len(saved) != 2 || saved[0].ID == "" || saved[0].ID == saved[1].ID {
		t.Fatalf("expected two distinct ids, got %+v", saved)
	}
	if saved[1].CategoryName != "Gaji" {
		t.Errorf("category name should be filled, got %q", saved[1].CategoryName)
	}

	txs, _ := s.Transactions(ctx)
	if len(txs) != 3 || txs[1].ID != saved[0].ID || txs[2].ID != saved[1].ID {
		t.Errorf("batch should be appended in order, got %+v", txs)
	}
}

func TestAddTransactionsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)

	wrongType := validTx()
	wrongType.CategoryID = strPtr("cat-gaji")
	if _, err := s.AddTransactions(ctx, []Transaction{validTx(), wrongType}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	invalid := validTx()
	invalid.Amount = 0
	if _, err := s.AddTransactions(ctx, []Transaction{validTx(), invalid}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if txs, _ := s.Transactions(ctx); len(txs) != 0 {
		t.Errorf("a failed batch must not store anything, got %d", len(txs))
	}
	if saved, err := s.AddTransactions(ctx, nil); err != nil || saved != nil {
		t.Errorf("empty batch: %v %v", saved, err)
	}
}

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	s, _ := newUnlockedSession(t, WithClock(func() time.Time { return now }))

	tx, _ := s.AddTransaction(ctx, validTx())
	now = now.Add(time.Hour)

	amount := int64(30000)
	updated, err := s.UpdateTransaction(ctx, tx.ID, TransactionPatch{Amount: &amount, Note: strPtr("")})
	if err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}
	if updated.ID != tx.ID {
		t.Error("id must not change")
	}
	if updated.Amount != 30000 || updated.Note != "" {
		t.Errorf("patch not applied: %+v", updated)
	}
	if updated.Date != tx.Date || updated.CategoryName != tx.CategoryName {
		t.Error("unpatched fields must be kept")
	}
	if updated.UpdatedAt == nil || !updated.UpdatedAt.Equal(now) {
		t.Errorf("expected UpdatedAt %v, got %v", now, updated.UpdatedAt)
	}

	txs, _ := s.Transactions(ctx)
	if txs[0].Amount != 30000 {
		t.Error("update was not persisted")
	}
}

func TestUpdateTransactionCategory(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)
	tx, _ := s.AddTransaction(ctx, validTx())

	updated, err := s.UpdateTransaction(ctx, tx.ID, TransactionPatch{CategoryID: strPtr("cat-makan")})
	if err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}
	if updated.CategoryID == nil || *updated.CategoryID != "cat-makan" || updated.CategoryName != "Makan" {
		t.Errorf("expected category set, got %+v", updated)
	}

	if _, err := s.UpdateTransaction(ctx, tx.ID, TransactionPatch{CategoryID: strPtr("cat-gaji")}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for type mismatch, got %v", err)
	}

	income := Income
	switched, err := s.UpdateTransaction(ctx, tx.ID, TransactionPatch{Type: &income, CategoryID: strPtr("cat-gaji")})
	if err != nil {
		t.Fatalf("switching type and category together should work: %v", err)
	}
	if switched.CategoryName != "Gaji" {
		t.Errorf("expected Gaji, got %q", switched.CategoryName)
	}

	cleared, err := s.UpdateTransaction(ctx, tx.ID, TransactionPatch{ClearCategory: true})
	if err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}
	if cleared.CategoryID != nil || cleared.CategoryName != "Gaji" {
		t.Errorf("expected category detached with name kept, got %+v", cleared)
	}
}

func TestUpdateTransactionErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)
	tx, _ := s.AddTransaction(ctx, validTx())

	if _, err := s.UpdateTransaction(ctx, "missing", TransactionPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	zero := int64(0)
	if _, err := s.UpdateTransaction(ctx, tx.ID, TransactionPatch{Amount: &zero}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	txs, _ := s.Transactions(ctx)
	if txs[0].Amount != tx.Amount {
		t.Error("invalid update must not be persisted")
	}
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)
	a, _ := s.AddTransaction(ctx, validTx())
	b, _ := s.AddTransaction(ctx, validTx())

	if err := s.DeleteTransaction(ctx, a.ID); err != nil {
		t.Fatalf("DeleteTransaction failed: %v", err)
	}
	if err := s.DeleteTransaction(ctx, "missing"); err != nil {
		t.Errorf("deleting an unknown id should succeed, got %v", err)
	}

	txs, _ := s.Transactions(ctx)
	if len(txs) != 1 || txs[0].ID != b.ID {
		t.Errorf("expected only %s left, got %+v", b.ID, txs)
	}
}

func TestSaveTransactions(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)
	_, _ = s.AddTransaction(ctx, validTx())

	replacement := []Transaction{validTx(), validTx()}
	replacement[0].ID = "one"
	replacement[1].ID = "two"
	if err := s.SaveTransactions(ctx, replacement); err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}
	txs, _ := s.Transactions(ctx)
	if len(txs) != 2 || txs[0].ID != "one" || txs[1].ID != "two" {
		t.Errorf("unexpected transactions %+v", txs)
	}

	if err := s.SaveTransactions(ctx, []Transaction{}); err != nil {
		t.Fatalf("SaveTransactions(empty) failed: %v", err)
	}
	txs, _ = s.Transactions(ctx)
	if txs == nil || len(txs) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", txs)
	}
}

func TestConcurrentAddTransaction(t *testing.T) {
	ctx := context.Background()
	s, _ := newUnlockedSession(t)
	other := s.Vault().NewSession()
	if ok, _ := other.Unlock(ctx, testPIN); !ok {
		t.Fatal("Unlock failed")
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		sess := s
		if i%2 == 1 {
			sess = other
		}
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			if _, err := sess.AddTransaction(ctx, validTx()); err != nil {
				errs <- err
			}
		}(sess)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent add failed: %v", err)
	}

	txs, _ := s.Transactions(ctx)
	if len(txs) != n {
		t.Errorf("expected %d transactions, got %d", n, len(txs))
	}
	seen := map[string]bool{}
	for _, tx := range txs {
		if seen[tx.ID] {
			t.Errorf("duplicate id %s", tx.ID)
		}
		seen[tx.ID] = true
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)
	s := v.NewSession()

	if err := s.Register(ctx, "1234"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := s.AddCategory(ctx, Category{ID: "c1", Name: "Food", Type: Expense}); err != nil {
		t.Fatalf("AddCategory failed: %v", err)
	}
	tx, err := s.AddTransaction(ctx, Transaction{
		Date: "2024-05-01", Type: Expense, CategoryID: strPtr("c1"),
		CategoryName: "Food", Amount: 50000,
	})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}

	s.Lock()
	if _, err := s.Transactions(ctx); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if ok, _ := s.Unlock(ctx, "1234"); !ok {
		t.Fatal("Unlock failed")
	}
	txs, err := s.Transactions(ctx)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != tx.ID || txs[0].Amount != 50000 || *txs[0].CategoryID != "c1" {
		t.Fatalf("unexpected transactions %+v", txs)
	}

	if ok, err := s.ChangePIN(ctx, "1234", "9876"); err != nil || !ok {
		t.Fatalf("ChangePIN failed: %v %v", ok, err)
	}

	s.Lock()
	if ok, _ := s.Unlock(ctx, "1234"); ok {
		t.Fatal("old PIN must fail")
	}
	if ok, _ := s.Unlock(ctx, "9876"); !ok {
		t.Fatal("new PIN must unlock")
	}
	again, _ := s.Transactions(ctx)
	if len(again) != 1 || again[0].ID != tx.ID || again[0].Amount != 50000 {
		t.Errorf("data changed after rotation: %+v", again)
	}
}
