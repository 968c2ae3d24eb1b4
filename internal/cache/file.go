package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fileBackend is the durable tier: one JSON file per key under a dedicated
// directory. Concurrent writers to the same key race at the filesystem level
// with last-write-wins semantics; staleness stays bounded by the TTL.
type fileBackend struct {
	dir string
}

// NewFile prepares the durable file backend, creating the cache directory if
// needed.
func NewFile(dir string) (Backend, error) {
	if dir == "" {
		return nil, errors.New("cache: file backend directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directory %s: %w", dir, err)
	}
	return &fileBackend{dir: dir}, nil
}

// Keys carry ':' which is awkward in shell globs, so file names swap it for
// '_'. Source names never contain underscores, making the mapping reversible.
func (b *fileBackend) path(key string) string {
	return filepath.Join(b.dir, strings.ReplaceAll(key, ":", "_")+".json")
}

func keyFromFileName(name string) (string, bool) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(base, "_", ":"), true
}

func (b *fileBackend) Lookup(_ context.Context, key string) (Entry, bool, error) {
	payload, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache: file read: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		// A corrupt file is unrecoverable; drop it so the next write heals.
		_ = os.Remove(b.path(key))
		return Entry{}, false, fmt.Errorf("cache: file unmarshal: %w", err)
	}
	if !entry.Valid(time.Now()) {
		_ = os.Remove(b.path(key))
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (b *fileBackend) Store(_ context.Context, key string, entry Entry) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.StoredAt) {
		return errors.New("cache: file entry expiry required")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: file marshal: %w", err)
	}
	target := b.path(key)
	tmp, err := os.CreateTemp(b.dir, ".write-*")
	if err != nil {
		return fmt.Errorf("cache: file temp: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: file write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: file close: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cache: file rename: %w", err)
	}
	return nil
}

func (b *fileBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: file delete: %w", err)
	}
	return nil
}

func (b *fileBackend) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	names, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("cache: file list: %w", err)
	}
	for _, de := range names {
		if de.IsDir() {
			continue
		}
		key, ok := keyFromFileName(de.Name())
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, de.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cache: file delete %s: %w", de.Name(), err)
		}
	}
	return nil
}

func (b *fileBackend) Ping(context.Context) error {
	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("cache: file stat: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cache: %s is not a directory", b.dir)
	}
	return nil
}

func (b *fileBackend) Close(context.Context) error {
	return nil
}

// Sweep removes every expired or unparseable entry and reports how many files
// it deleted. Safe to run concurrently with reads and writes.
func (b *fileBackend) Sweep(ctx context.Context, now time.Time) (int, error) {
	names, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, fmt.Errorf("cache: sweep list: %w", err)
	}
	removed := 0
	for _, de := range names {
		select {
		case <-ctx.Done():
			return removed, ctx.Err()
		default:
		}
		if de.IsDir() {
			continue
		}
		if _, ok := keyFromFileName(de.Name()); !ok {
			continue
		}
		path := filepath.Join(b.dir, de.Name())
		payload, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err == nil && entry.Valid(now) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Entries loads every stored entry under the prefix, expired ones included,
// so statistics can distinguish valid from stale without evicting anything.
func (b *fileBackend) Entries(ctx context.Context, prefix string) (map[string]Entry, error) {
	names, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("cache: entries list: %w", err)
	}
	out := make(map[string]Entry)
	for _, de := range names {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if de.IsDir() {
			continue
		}
		key, ok := keyFromFileName(de.Name())
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(b.dir, de.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		out[key] = entry
	}
	return out, nil
}
