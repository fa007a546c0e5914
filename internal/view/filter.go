package view

import "strings"

// Filter narrows an already-fetched collection with a case-insensitive
// substring match over the fields extracted per item. There is deliberately
// no server-side search: lists always load the full collection and filtering
// happens over it in memory. An empty query returns the collection unchanged.
func Filter[T any](items []T, query string, fields func(T) []string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}

	var out []T
	for _, item := range items {
		for _, f := range fields(item) {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}
