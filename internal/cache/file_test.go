package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fileEntry(source string, value string, ttl time.Duration) Entry {
	now := time.Now().UTC()
	return Entry{
		Value:     json.RawMessage(value),
		Source:    source,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestFileBackendStoreLookup(t *testing.T) {
	backend, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	ctx := context.Background()

	key := Key("govindia", map[string]string{"limit": "10"})
	if err := backend.Store(ctx, key, fileEntry("govindia", `{"n":1}`, time.Minute)); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, ok, err := backend.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(got.Value) != `{"n":1}` || got.Source != "govindia" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := backend.Lookup(ctx, key); ok {
		t.Fatalf("expected delete to remove entry")
	}
	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("delete of missing key should be silent: %v", err)
	}
}

func TestFileBackendLazyEviction(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	ctx := context.Background()

	key := Key("sba", nil)
	if err := backend.Store(ctx, key, fileEntry("sba", `[]`, 20*time.Millisecond)); err != nil {
		t.Fatalf("store: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	_, ok, err := backend.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Fatalf("expected expired entry to read as a miss")
	}

	names, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected lazy eviction to delete the file, found %d files", len(names))
	}
}

func TestFileBackendRejectsMissingExpiry(t *testing.T) {
	backend, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	entry := Entry{Value: json.RawMessage(`1`), Source: "sba", StoredAt: time.Now().UTC()}
	if err := backend.Store(context.Background(), Key("sba", nil), entry); err == nil {
		t.Fatalf("expected store without expiry to fail")
	}
}

func TestFileBackendCorruptFileReadsAsError(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	ctx := context.Background()

	key := Key("rapid", nil)
	if err := backend.Store(ctx, key, fileEntry("rapid", `{}`, time.Minute)); err != nil {
		t.Fatalf("store: %v", err)
	}
	names, err := os.ReadDir(dir)
	if err != nil || len(names) != 1 {
		t.Fatalf("expected one cache file, got %d (%v)", len(names), err)
	}
	if err := os.WriteFile(filepath.Join(dir, names[0].Name()), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	_, ok, err := backend.Lookup(ctx, key)
	if err == nil {
		t.Fatalf("expected corrupt entry to surface an error")
	}
	if ok {
		t.Fatalf("corrupt entry must not read as a hit")
	}
	if rest, _ := os.ReadDir(dir); len(rest) != 0 {
		t.Fatalf("expected corrupt file to be dropped")
	}
}

func TestFileBackendSweep(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	ctx := context.Background()

	if err := backend.Store(ctx, Key("govindia", nil), fileEntry("govindia", `1`, time.Minute)); err != nil {
		t.Fatalf("store fresh: %v", err)
	}
	if err := backend.Store(ctx, Key("sba", nil), fileEntry("sba", `2`, 5*time.Millisecond)); err != nil {
		t.Fatalf("store stale: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "loanfeed_junk_0000000000000000.json"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	sweeper := backend.(Sweeper)
	removed, err := sweeper.Sweep(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removals (stale + junk), got %d", removed)
	}

	if _, ok, _ := backend.Lookup(ctx, Key("govindia", nil)); !ok {
		t.Fatalf("fresh entry must survive the sweep")
	}
}

func TestFileBackendDeletePrefixAndEntries(t *testing.T) {
	backend, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	ctx := context.Background()

	for _, source := range []string{"govindia", "sba"} {
		if err := backend.Store(ctx, Key(source, nil), fileEntry(source, `0`, time.Minute)); err != nil {
			t.Fatalf("store %s: %v", source, err)
		}
	}

	lister := backend.(Lister)
	entries, err := lister.Entries(ctx, Namespace)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[Key("sba", nil)]; !ok {
		t.Fatalf("entries missing sba key")
	}

	if err := backend.DeletePrefix(ctx, Namespace); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	entries, err = lister.Entries(ctx, Namespace)
	if err != nil {
		t.Fatalf("entries after delete: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected namespace wipe, %d entries remain", len(entries))
	}
}
