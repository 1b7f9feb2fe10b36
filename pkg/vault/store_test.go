package vault

import (
	"context"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	var m MemoryStore // zero value is usable

	if v, err := m.Get(ctx, "missing"); v != nil || err != nil {
		t.Errorf("expected (nil, nil) for missing key, got %v %v", v, err)
	}

	value := []byte("abc")
	if err := m.Set(ctx, "k", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value[0] = 'X'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("store must copy on write, got %q", got)
	}
	got[0] = 'Y'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("store must copy on read, got %q", again)
	}

	_ = m.Set(ctx, "empty", []byte{})
	if v, _ := m.Get(ctx, "empty"); v == nil {
		t.Error("an empty value must not read as missing")
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if v, _ := m.Get(ctx, "k"); v != nil {
		t.Error("expected key to be deleted")
	}
}

func TestMemoryStoreKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, k := range []string{"sft-b", "sft-a", "other-a"} {
		_ = m.Set(ctx, k, []byte("v"))
	}

	keys, err := m.Keys(ctx, "sft-")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "sft-a" || keys[1] != "sft-b" {
		t.Errorf("unexpected keys %v", keys)
	}
}
