package vault

import (
	"context"
	"fmt"
)

// record is the constraint for values stored in a collection.
type record interface {
	Category | Transaction
}

// load reads and decrypts a whole collection. A missing collection is an
// empty list, never nil.
func load[T record](ctx context.Context, v *Vault, c Collection, key []byte) ([]T, error) {
	raw, err := v.store.Get(ctx, v.recordKey(string(c)))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read %s: %w", c, err)
	}

	items := []T{}
	if err := v.codec.Decrypt(string(raw), key, &items); err != nil {
		return nil, err
	}
	if items == nil {
		// "null" payload
		items = []T{}
	}
	return items, nil
}

// save encrypts and writes a whole collection.
func save[T record](ctx context.Context, v *Vault, c Collection, key []byte, items []T) error {
	if items == nil {
		items = []T{}
	}
	blob, err := v.codec.Encrypt(items, key)
	if err != nil {
		return err
	}
	if err := v.store.Set(ctx, v.recordKey(string(c)), []byte(blob)); err != nil {
		return fmt.Errorf("vault: failed to write %s: %w", c, err)
	}
	return nil
}

// seed writes items only when the collection has never been stored.
func seed[T record](ctx context.Context, v *Vault, c Collection, key []byte, items []T) error {
	raw, err := v.store.Get(ctx, v.recordKey(string(c)))
	if err != nil {
		return fmt.Errorf("vault: failed to read %s: %w", c, err)
	}
	if raw != nil {
		return nil
	}
	return save(ctx, v, c, key, append([]T{}, items...))
}

// readCollection loads c under the session key, serialized with writers.
func readCollection[T record](ctx context.Context, s *Session, c Collection) ([]T, error) {
	mu := s.v.collectionMutex(c)
	mu.Lock()
	defer mu.Unlock()

	var items []T
	err := s.withKey(func(key []byte) error {
		var err error
		items, err = load[T](ctx, s.v, c, key)
		return err
	})
	return items, err
}

// mutateCollection runs one read-decrypt-mutate-encrypt-write cycle under
// the collection lock. fn may change the slice in place or return a new one;
// it receives the session key for reading related collections.
func mutateCollection[T record](ctx context.Context, s *Session, c Collection, fn func(key []byte, items []T) ([]T, error)) error {
	mu := s.v.collectionMutex(c)
	mu.Lock()
	defer mu.Unlock()

	return s.withKey(func(key []byte) error {
		items, err := load[T](ctx, s.v, c, key)
		if err != nil {
			return err
		}
		items, err = fn(key, items)
		if err != nil {
			return err
		}
		return save(ctx, s.v, c, key, items)
	})
}
