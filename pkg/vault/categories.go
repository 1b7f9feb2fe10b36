package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/forest6511/finvault/pkg/audit"
	"github.com/forest6511/finvault/pkg/crypto"
)

const categoryIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Categories returns all stored categories.
func (s *Session) Categories(ctx context.Context) ([]Category, error) {
	return readCollection[Category](ctx, s, Categories)
}

// SaveCategories replaces the whole category collection.
// Transactions are left untouched.
func (s *Session) SaveCategories(ctx context.Context, cats []Category) error {
	if s.IsLocked() {
		return ErrLocked
	}
	normalized := make([]Category, len(cats))
	for i, c := range cats {
		c.Name = NormalizeCategoryName(c.Name)
		if err := validateRecord(&c); err != nil {
			return err
		}
		normalized[i] = c
	}
	if err := checkCategoryIDs(normalized); err != nil {
		return err
	}
	if err := checkCategoryNames(normalized); err != nil {
		return err
	}
	return mutateCollection(ctx, s, Categories, func(_ []byte, _ []Category) ([]Category, error) {
		return normalized, nil
	})
}

// AddCategory validates c, assigns a "cat-" id when it has none and appends
// it. Names must be unique per type, ignoring case.
func (s *Session) AddCategory(ctx context.Context, c Category) (Category, error) {
	if s.IsLocked() {
		return Category{}, ErrLocked
	}
	c.Name = NormalizeCategoryName(c.Name)
	if err := validateRecord(&c); err != nil {
		return Category{}, err
	}

	err := mutateCollection(ctx, s, Categories, func(_ []byte, items []Category) ([]Category, error) {
		ids := make(map[string]bool, len(items))
		for _, existing := range items {
			ids[existing.ID] = true
		}
		if c.ID == "" {
			id, err := newCategoryID(s.v.provider, ids)
			if err != nil {
				return nil, err
			}
			c.ID = id
		} else if ids[c.ID] {
			return nil, fmt.Errorf("%w: category id %s already exists", ErrValidation, c.ID)
		}

		next := append(items, c)
		if err := checkCategoryNames(next); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return Category{}, err
	}

	s.v.auditSuccess(audit.OpCategoryAdd, c.ID)
	return c, nil
}

// UpdateCategory applies patch to the category with id. Transactions keep
// their recorded CategoryName. It returns ErrNotFound if no such category
// exists.
func (s *Session) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (Category, error) {
	var updated Category
	err := mutateCollection(ctx, s, Categories, func(_ []byte, items []Category) ([]Category, error) {
		idx := indexOfCategory(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: category %s", ErrNotFound, id)
		}

		next := items[idx]
		patch.apply(&next)
		next.ID = id
		next.Name = NormalizeCategoryName(next.Name)
		if err := validateRecord(&next); err != nil {
			return nil, err
		}

		items[idx] = next
		if err := checkCategoryNames(items); err != nil {
			return nil, err
		}
		updated = next
		return items, nil
	})
	if err != nil {
		return Category{}, err
	}

	s.v.auditSuccess(audit.OpCategoryUpdate, id)
	return updated, nil
}

// DeleteCategory removes the category with id and sets CategoryID to nil
// on every transaction that referenced it. CategoryName is kept and no
// transaction is removed. Deleting an unknown id is not an error.
func (s *Session) DeleteCategory(ctx context.Context, id string) error {
	v := s.v
	v.catMu.Lock()
	defer v.catMu.Unlock()
	v.txMu.Lock()
	defer v.txMu.Unlock()

	err := s.withKey(func(key []byte) error {
		cats, err := load[Category](ctx, v, Categories, key)
		if err != nil {
			return err
		}
		txs, err := load[Transaction](ctx, v, Transactions, key)
		if err != nil {
			return err
		}

		if idx := indexOfCategory(cats, id); idx >= 0 {
			cats = append(cats[:idx], cats[idx+1:]...)
		}
		if err := save(ctx, v, Categories, key, cats); err != nil {
			return err
		}

		detached := 0
		for i := range txs {
			if txs[i].CategoryID != nil && *txs[i].CategoryID == id {
				txs[i].CategoryID = nil
				detached++
			}
		}
		if detached == 0 {
			return nil
		}
		return save(ctx, v, Transactions, key, txs)
	})
	if err != nil {
		return err
	}

	v.auditSuccess(audit.OpCategoryDelete, id)
	return nil
}

// findCategory loads the categories under key and returns the one with id.
// A non-empty typ must match. Callers hold catMu.
func findCategory(ctx context.Context, v *Vault, key []byte, id string, typ EntryType) (Category, error) {
	cats, err := load[Category](ctx, v, Categories, key)
	if err != nil {
		return Category{}, err
	}
	idx := indexOfCategory(cats, id)
	if idx < 0 {
		return Category{}, fmt.Errorf("%w: category %s does not exist", ErrValidation, id)
	}
	if typ != "" && cats[idx].Type != typ {
		return Category{}, fmt.Errorf("%w: category %s is %s, transaction is %s",
			ErrValidation, id, cats[idx].Type, typ)
	}
	return cats[idx], nil
}

// checkCategoryNames rejects two categories of the same type whose names
// differ only in case.
func checkCategoryNames(cats []Category) error {
	seen := make(map[string]bool, len(cats))
	for _, c := range cats {
		k := string(c.Type) + "\x00" + strings.ToLower(NormalizeCategoryName(c.Name))
		if seen[k] {
			return fmt.Errorf("%w: %s category %q already exists", ErrValidation, c.Type, c.Name)
		}
		seen[k] = true
	}
	return nil
}

// checkCategoryIDs rejects a collection in which a non-empty id repeats.
func checkCategoryIDs(cats []Category) error {
	seen := make(map[string]bool, len(cats))
	for _, c := range cats {
		if c.ID == "" {
			continue
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: duplicate category id %s", ErrValidation, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

func indexOfCategory(items []Category, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// newCategoryID returns "cat-" followed by 8 random base-36 characters,
// retrying on collision with taken.
func newCategoryID(p crypto.Provider, taken map[string]bool) (string, error) {
	for {
		buf, err := p.RandomBytes(categoryIDRandLen)
		if err != nil {
			return "", fmt.Errorf("vault: failed to generate category id: %w", err)
		}
		for i, b := range buf {
			buf[i] = categoryIDAlphabet[int(b)%len(categoryIDAlphabet)]
		}
		id := categoryIDPrefix + string(buf)
		if !taken[id] {
			return id, nil
		}
	}
}
