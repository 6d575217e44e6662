// Package strings holds list helpers for query parameters and env values.
package strings

import (
	"strings"
)

// SplitList splits each value on commas and returns the trimmed, non-empty
// parts in order of first appearance. Repeated parts are kept once.
//
//	SplitList("gender, region", "gender", " ")
//	// []string{"gender", "region"}
func SplitList(values ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// NormalizeCodes trims and upper-cases codes such as region identifiers,
// dropping blanks and case-insensitive duplicates.
func NormalizeCodes(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		c := strings.ToUpper(strings.TrimSpace(v))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
