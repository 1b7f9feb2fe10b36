package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forest6511/finvault/pkg/audit"
)

// Export is the plaintext backup document.
type Export struct {
	ExportedAt   time.Time     `json:"exportedAt"`
	Transactions []Transaction `json:"transactions"`
	Categories   []Category    `json:"categories"`
}

// Export returns both collections in plaintext. The caller is responsible
// for where the document ends up.
func (s *Session) Export(ctx context.Context) (*Export, error) {
	v := s.v
	v.catMu.Lock()
	defer v.catMu.Unlock()
	v.txMu.Lock()
	defer v.txMu.Unlock()

	out := &Export{ExportedAt: v.now().UTC()}
	err := s.withKey(func(key []byte) error {
		var err error
		if out.Transactions, err = load[Transaction](ctx, v, Transactions, key); err != nil {
			return err
		}
		out.Categories, err = load[Category](ctx, v, Categories, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	v.auditSuccess(audit.OpDataExport, "")
	return out, nil
}

// Import replaces both collections with the contents of an Export document
// and re-encrypts them under the session key. Both "transactions" and
// "categories" must be JSON arrays or ErrFormat is returned; records that
// fail validation or repeat an id yield ErrValidation. Records without an
// id get one.
func (s *Session) Import(ctx context.Context, payload []byte) error {
	if s.IsLocked() {
		return ErrLocked
	}
	var doc struct {
		Transactions json.RawMessage `json:"transactions"`
		Categories   json.RawMessage `json:"categories"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%w: import is not a JSON object: %v", ErrFormat, err)
	}
	if !isJSONArray(doc.Transactions) || !isJSONArray(doc.Categories) {
		return fmt.Errorf("%w: import must contain transactions and categories arrays", ErrFormat)
	}

	var txs []Transaction
	if err := json.Unmarshal(doc.Transactions, &txs); err != nil {
		return fmt.Errorf("%w: invalid transaction in import: %v", ErrFormat, err)
	}
	var cats []Category
	if err := json.Unmarshal(doc.Categories, &cats); err != nil {
		return fmt.Errorf("%w: invalid category in import: %v", ErrFormat, err)
	}

	if err := checkCategoryIDs(cats); err != nil {
		return err
	}
	if err := checkTransactionIDs(txs); err != nil {
		return err
	}

	v := s.v
	catIDs := make(map[string]bool, len(cats))
	for _, c := range cats {
		catIDs[c.ID] = true
	}
	for i := range cats {
		cats[i].Name = NormalizeCategoryName(cats[i].Name)
		if err := validateRecord(&cats[i]); err != nil {
			return err
		}
		if cats[i].ID == "" {
			id, err := newCategoryID(v.provider, catIDs)
			if err != nil {
				return err
			}
			cats[i].ID = id
			catIDs[id] = true
		}
	}

	if err := checkCategoryNames(cats); err != nil {
		return err
	}

	txIDs := transactionIDs(txs)
	for i := range txs {
		if err := validateRecord(&txs[i]); err != nil {
			return err
		}
		if txs[i].ID == "" {
			txs[i].ID = newTransactionID(txIDs)
			txIDs[txs[i].ID] = true
		}
	}

	v.catMu.Lock()
	defer v.catMu.Unlock()
	v.txMu.Lock()
	defer v.txMu.Unlock()

	err := s.withKey(func(key []byte) error {
		if err := save(ctx, v, Categories, key, cats); err != nil {
			return err
		}
		return save(ctx, v, Transactions, key, txs)
	})
	if err != nil {
		return err
	}

	v.auditSuccess(audit.OpDataImport, "")
	return nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
