// Package strings holds small string-slice helpers shared by auth and the CLI.
package strings

import (
	"strings"
)

// Dedupe trims every value, drops empty ones and keeps the first occurrence
// of each. Order is preserved. Nil in gives nil out.
func Dedupe(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeFold is Dedupe with lowercased values, so "Admin" and "admin" collapse.
func DedupeFold(values []string) []string {
	return dedupe(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

func dedupe(values []string, norm func(string) string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
