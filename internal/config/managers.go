package config

import (
	"maps"
	"slices"
	"strings"
)

// ManagerNames maps manager codes (the "m=" value in source URLs) to
// display names. It is a plain value passed to whoever needs it so tests
// can inject a fixed table.
type ManagerNames map[string]string

// Lookup returns the configured display name for code.
// Codes are matched case-insensitively.
func (n ManagerNames) Lookup(code string) (string, bool) {
	if len(n) == 0 {
		return "", false
	}
	if name, ok := n[code]; ok && name != "" {
		return name, true
	}
	for k, v := range n {
		if strings.EqualFold(k, code) && v != "" {
			return v, true
		}
	}
	return "", false
}

// Resolve picks the display name for a manager. A configured name always
// wins; otherwise the scraped name is used, and the code itself is the
// last resort.
func (n ManagerNames) Resolve(code, scraped string) string {
	if name, ok := n.Lookup(code); ok {
		return name
	}
	if scraped = strings.TrimSpace(scraped); scraped != "" {
		return scraped
	}
	return code
}

// Merge returns a new table with other's entries layered over n.
func (n ManagerNames) Merge(other ManagerNames) ManagerNames {
	out := make(ManagerNames, len(n)+len(other))
	maps.Copy(out, n)
	for k, v := range other {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Codes returns the configured codes in sorted order.
func (n ManagerNames) Codes() []string {
	return slices.Sorted(maps.Keys(n))
}
