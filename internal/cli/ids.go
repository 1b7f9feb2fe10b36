// Package cli provides shared utilities for CLI commands.
package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrAmbiguous is returned when an id prefix matches more than one record.
var ErrAmbiguous = errors.New("ambiguous id")

// ExpandID resolves one user-supplied id against the known record ids.
// A pattern containing glob characters (*?[) may match several ids.
// Otherwise an exact id wins, then a prefix matching exactly one id.
func ExpandID(pattern string, ids []string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if strings.ContainsAny(pattern, "*?[") {
		var matches []string
		for _, id := range ids {
			if ok, _ := filepath.Match(pattern, id); ok {
				matches = append(matches, id)
			}
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no ids match pattern '%s'", pattern)
		}
		return matches, nil
	}

	var prefixed []string
	for _, id := range ids {
		if id == pattern {
			return []string{id}, nil
		}
		if pattern != "" && strings.HasPrefix(id, pattern) {
			prefixed = append(prefixed, id)
		}
	}
	switch len(prefixed) {
	case 0:
		return nil, fmt.Errorf("id '%s' not found", pattern)
	case 1:
		return prefixed, nil
	default:
		return nil, fmt.Errorf("%w: '%s' matches %d records", ErrAmbiguous, pattern, len(prefixed))
	}
}

// ExpandIDs expands several patterns. The result is deduplicated and keeps
// the order of first match.
func ExpandIDs(patterns []string, ids []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	for _, pattern := range patterns {
		matches, err := ExpandID(pattern, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range matches {
			if !seen[id] {
				seen[id] = true
				result = append(result, id)
			}
		}
	}
	return result, nil
}

// ShortID trims a UUID for table display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
