package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Key computes the deterministic cache key for a (source, params) pair using
// FNV-1a over a canonical representation. Params are written in sorted key
// order so map iteration order cannot change the result.
func Key(source string, params map[string]string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	_, _ = h.Write([]byte("|"))

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = h.Write([]byte(k))
			_, _ = h.Write([]byte(":"))
			_, _ = h.Write([]byte(params[k]))
			_, _ = h.Write([]byte("|"))
		}
	}

	return fmt.Sprintf("%s%s:%016x", Namespace, source, h.Sum64())
}
