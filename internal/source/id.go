package source

import (
	"strings"

	"github.com/google/uuid"
)

// recordID builds a globally unique, source-prefixed identifier. When the
// upstream record carries no stable id under any known field name, a random
// suffix keeps the record addressable without colliding across refreshes.
func recordID(prefix string, rec map[string]any, keys ...string) string {
	if id := firstString(rec, keys...); id != "" {
		return prefix + "-" + slugify(id)
	}
	return prefix + "-" + uuid.NewString()[:8]
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '/':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
