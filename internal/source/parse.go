package source

import (
	"fmt"
	"strconv"
	"strings"
)

// Upstream payloads are duck-typed: the same concept arrives under different
// field names and types depending on the provider. Every accessor here takes
// a chain of candidate keys and coerces defensively, so a malformed record
// degrades to zero values instead of poisoning the aggregate.

func firstValue(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	v, ok := firstValue(m, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// parseAmount extracts a non-negative integer from whatever the source sent:
// numbers pass through, strings are stripped of currency symbols and
// separators before parsing. Unparseable input yields 0.
func parseAmount(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		if t < 0 {
			return 0
		}
		return int64(t)
	case int:
		if t < 0 {
			return 0
		}
		return int64(t)
	case int64:
		if t < 0 {
			return 0
		}
		return t
	case string:
		digits := strings.Builder{}
		for _, r := range t {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			return 0
		}
		n, err := strconv.ParseInt(digits.String(), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func amountField(m map[string]any, keys ...string) int64 {
	v, ok := firstValue(m, keys...)
	if !ok {
		return 0
	}
	return parseAmount(v)
}

func intField(m map[string]any, keys ...string) int {
	return int(amountField(m, keys...))
}

func boolField(m map[string]any, keys ...string) bool {
	v, ok := firstValue(m, keys...)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "required":
			return true
		}
		return false
	case float64:
		return t != 0
	default:
		return false
	}
}

func stringList(m map[string]any, keys ...string) []string {
	v, ok := firstValue(m, keys...)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// recordList digs the array of raw records out of a source payload, trying
// the known top-level field names in order.
func recordList(payload map[string]any, keys ...string) []map[string]any {
	v, ok := firstValue(payload, keys...)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// classifyCategory maps free-text program descriptions onto the canonical
// category enum by keyword.
func classifyCategory(text string) Category {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "startup") || strings.Contains(lower, "start-up"):
		return CategoryStartup
	case strings.Contains(lower, "msme") || strings.Contains(lower, "sme") || strings.Contains(lower, "small business"):
		return CategorySME
	case strings.Contains(lower, "education") || strings.Contains(lower, "student"):
		return CategoryEducation
	case strings.Contains(lower, "agri") || strings.Contains(lower, "farm") || strings.Contains(lower, "rural"):
		return CategoryAgriculture
	case strings.Contains(lower, "ngo") || strings.Contains(lower, "non-profit") || strings.Contains(lower, "nonprofit"):
		return CategoryNGO
	default:
		return CategoryGeneral
	}
}

func classifyLenderType(text string) LenderType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "government") || strings.Contains(lower, "ministry") ||
		strings.Contains(lower, "administration") || strings.Contains(lower, "public"):
		return LenderGovernment
	case strings.Contains(lower, "bank") || strings.Contains(lower, "credit union") ||
		strings.Contains(lower, "nbfc") || strings.Contains(lower, "lender"):
		return LenderBank
	default:
		return LenderOther
	}
}
