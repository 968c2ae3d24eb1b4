package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRedisBackendStoreLookup(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	backend, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	ctx := context.Background()

	key := Key("govindia", map[string]string{"limit": "10"})
	now := time.Now().UTC()
	entry := Entry{
		Value:     json.RawMessage(`{"loans":3}`),
		Source:    "govindia",
		Params:    map[string]string{"limit": "10"},
		StoredAt:  now,
		ExpiresAt: now.Add(500 * time.Millisecond),
	}
	if err := backend.Store(ctx, key, entry); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, ok, err := backend.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected redis hit")
	}
	if string(got.Value) != `{"loans":3}` || got.Params["limit"] != "10" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	server.FastForward(time.Second)
	_, ok, err = backend.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("lookup after ttl: %v", err)
	}
	if ok {
		t.Fatalf("expected redis entry to expire")
	}

	if err := backend.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRedisBackendDeletePrefix(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	backend, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	ctx := context.Background()

	now := time.Now().UTC()
	for _, source := range []string{"govindia", "sba", "rapid"} {
		entry := Entry{
			Value:     json.RawMessage(`1`),
			Source:    source,
			StoredAt:  now,
			ExpiresAt: now.Add(time.Minute),
		}
		if err := backend.Store(ctx, Key(source, nil), entry); err != nil {
			t.Fatalf("store %s: %v", source, err)
		}
	}
	if err := server.Set("unrelated", "keep"); err != nil {
		t.Fatalf("seed unrelated key: %v", err)
	}

	if err := backend.DeletePrefix(ctx, Namespace); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}

	for _, source := range []string{"govindia", "sba", "rapid"} {
		if _, ok, _ := backend.Lookup(ctx, Key(source, nil)); ok {
			t.Fatalf("expected %s entry to be wiped", source)
		}
	}
	if !server.Exists("unrelated") {
		t.Fatalf("delete prefix must not touch foreign keys")
	}
}

func TestRedisBackendRequiresAddress(t *testing.T) {
	if _, err := NewRedis(RedisConfig{}); err == nil {
		t.Fatalf("expected construction without address to fail")
	}
}
