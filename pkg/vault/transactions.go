package vault

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/forest6511/finvault/pkg/audit"
)

// Transactions returns all stored transactions in insertion order.
func (s *Session) Transactions(ctx context.Context) ([]Transaction, error) {
	return readCollection[Transaction](ctx, s, Transactions)
}

// SaveTransactions replaces the whole transaction collection.
func (s *Session) SaveTransactions(ctx context.Context, txs []Transaction) error {
	if s.IsLocked() {
		return ErrLocked
	}
	for i := range txs {
		if err := validateRecord(&txs[i]); err != nil {
			return err
		}
	}
	if err := checkTransactionIDs(txs); err != nil {
		return err
	}
	return mutateCollection(ctx, s, Transactions, func(_ []byte, _ []Transaction) ([]Transaction, error) {
		return append([]Transaction{}, txs...), nil
	})
}

// AddTransaction validates tx, assigns an id when it has none and appends it.
// A non-nil CategoryID must name an existing category of the same type; an
// empty CategoryName is then filled from that category.
func (s *Session) AddTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	if s.IsLocked() {
		return Transaction{}, ErrLocked
	}
	if err := validateRecord(&tx); err != nil {
		return Transaction{}, err
	}

	if tx.CategoryID != nil {
		// Keep the category from being deleted underneath us
		s.v.catMu.Lock()
		defer s.v.catMu.Unlock()
	}

	now := s.v.now().UTC()
	tx.CreatedAt = &now
	tx.UpdatedAt = nil

	err := mutateCollection(ctx, s, Transactions, func(key []byte, items []Transaction) ([]Transaction, error) {
		if tx.CategoryID != nil {
			cat, err := findCategory(ctx, s.v, key, *tx.CategoryID, tx.Type)
			if err != nil {
				return nil, err
			}
			if tx.CategoryName == "" {
				tx.CategoryName = cat.Name
			}
		}

		ids := transactionIDs(items)
		if tx.ID == "" {
			tx.ID = newTransactionID(ids)
		} else if ids[tx.ID] {
			return nil, fmt.Errorf("%w: transaction id %s already exists", ErrValidation, tx.ID)
		}
		return append(items, tx), nil
	})
	if err != nil {
		return Transaction{}, err
	}

	s.v.auditSuccess(audit.OpTxAdd, tx.ID)
	return tx, nil
}

// AddTransactions appends txs in one write with the same rules as
// AddTransaction. Either every transaction is stored or none is.
func (s *Session) AddTransactions(ctx context.Context, txs []Transaction) ([]Transaction, error) {
	if s.IsLocked() {
		return nil, ErrLocked
	}
	if len(txs) == 0 {
		return nil, nil
	}
	batch := make([]Transaction, len(txs))
	copy(batch, txs)
	for i := range batch {
		if err := validateRecord(&batch[i]); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i+1, err)
		}
	}

	s.v.catMu.Lock()
	defer s.v.catMu.Unlock()

	now := s.v.now().UTC()
	err := mutateCollection(ctx, s, Transactions, func(key []byte, items []Transaction) ([]Transaction, error) {
		cats, err := load[Category](ctx, s.v, Categories, key)
		if err != nil {
			return nil, err
		}
		ids := transactionIDs(items)
		for i := range batch {
			tx := &batch[i]
			if tx.CategoryID != nil {
				idx := indexOfCategory(cats, *tx.CategoryID)
				if idx < 0 || cats[idx].Type != tx.Type {
					return nil, fmt.Errorf("%w: transaction %d: category %s does not exist for %s",
						ErrValidation, i+1, *tx.CategoryID, tx.Type)
				}
				if tx.CategoryName == "" {
					tx.CategoryName = cats[idx].Name
				}
			}
			if tx.ID == "" {
				tx.ID = newTransactionID(ids)
			} else if ids[tx.ID] {
				return nil, fmt.Errorf("%w: transaction id %s already exists", ErrValidation, tx.ID)
			}
			ids[tx.ID] = true
			tx.CreatedAt = &now
			tx.UpdatedAt = nil
		}
		return append(items, batch...), nil
	})
	if err != nil {
		return nil, err
	}

	for _, tx := range batch {
		s.v.auditSuccess(audit.OpTxAdd, tx.ID)
	}
	return batch, nil
}

// UpdateTransaction applies patch to the transaction with id and returns the
// result. The id never changes. It returns ErrNotFound if no such
// transaction exists.
func (s *Session) UpdateTransaction(ctx context.Context, id string, patch TransactionPatch) (Transaction, error) {
	recategorize := patch.CategoryID != nil && !patch.ClearCategory
	if recategorize {
		s.v.catMu.Lock()
		defer s.v.catMu.Unlock()
	}

	var updated Transaction
	err := mutateCollection(ctx, s, Transactions, func(key []byte, items []Transaction) ([]Transaction, error) {
		idx := indexOfTransaction(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
		}

		next := items[idx]
		patch.apply(&next)
		next.ID = id

		if recategorize {
			cat, err := findCategory(ctx, s.v, key, *next.CategoryID, next.Type)
			if err != nil {
				return nil, err
			}
			if patch.CategoryName == nil {
				next.CategoryName = cat.Name
			}
		}
		if err := validateRecord(&next); err != nil {
			return nil, err
		}

		now := s.v.now().UTC()
		next.UpdatedAt = &now
		items[idx] = next
		updated = next
		return items, nil
	})
	if err != nil {
		return Transaction{}, err
	}

	s.v.auditSuccess(audit.OpTxUpdate, id)
	return updated, nil
}

// DeleteTransaction removes the transaction with id. Deleting an unknown id
// is not an error.
func (s *Session) DeleteTransaction(ctx context.Context, id string) error {
	err := mutateCollection(ctx, s, Transactions, func(_ []byte, items []Transaction) ([]Transaction, error) {
		if idx := indexOfTransaction(items, id); idx >= 0 {
			items = append(items[:idx], items[idx+1:]...)
		}
		return items, nil
	})
	if err != nil {
		return err
	}

	s.v.auditSuccess(audit.OpTxDelete, id)
	return nil
}

func indexOfTransaction(items []Transaction, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func transactionIDs(items []Transaction) map[string]bool {
	ids := make(map[string]bool, len(items))
	for _, tx := range items {
		ids[tx.ID] = true
	}
	return ids
}

// checkTransactionIDs rejects a collection in which a non-empty id repeats.
func checkTransactionIDs(txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.ID == "" {
			continue
		}
		if seen[tx.ID] {
			return fmt.Errorf("%w: duplicate transaction id %s", ErrValidation, tx.ID)
		}
		seen[tx.ID] = true
	}
	return nil
}

func newTransactionID(taken map[string]bool) string {
	for {
		id := uuid.NewString()
		if !taken[id] {
			return id
		}
	}
}
