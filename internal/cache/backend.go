package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Namespace prefixes every key this service writes so ClearAll can scope its
// deletions when the backends are shared with other tenants.
const Namespace = "loanfeed:"

// Entry is the unit of storage: the cached payload plus the provenance and
// expiry metadata needed for introspection and lazy eviction.
type Entry struct {
	Value     json.RawMessage   `json:"value"`
	Source    string            `json:"source"`
	Params    map[string]string `json:"params,omitempty"`
	StoredAt  time.Time         `json:"storedAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Valid reports whether the entry may still be served.
func (e Entry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Backend abstracts one storage tier. The Store composes a durable backend
// with an optional fast one; both obey the same contract.
type Backend interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Sweeper is implemented by backends that hold expired entries until an
// explicit sweep. Backends with server-side expiry don't need it.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Lister is implemented by backends that can enumerate stored entries,
// including expired ones, for statistics.
type Lister interface {
	Entries(ctx context.Context, prefix string) (map[string]Entry, error)
}
