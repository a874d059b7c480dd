package memory

import (
	"sort"
	"strings"
	"unicode"
)

// prepend inserts value at the front of the list and trims to cap. Existing
// duplicates are kept; most-recent ordering wins.
func prepend(list []string, value string, max int) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, value)
	out = append(out, list...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// prependIfNew inserts value at the front only when it is not already
// present, then trims to cap.
func prependIfNew(list []string, value string, max int) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return prepend(list, value, max)
}

// promote moves value to the front of the list, inserting it when absent,
// then trims to cap. Implements the move-to-front policy for top resources.
func promote(list []string, value string, max int) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, value)
	for _, existing := range list {
		if existing != value {
			out = append(out, existing)
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// tokenize splits a query into lowercase tokens longer than 3 characters.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) >= minTokenLength {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// unionPatterns merges newly learned tokens into the existing pattern list,
// newest first, dropping duplicates and trimming to cap from the back.
func unionPatterns(existing, tokens []string, max int) []string {
	seen := make(map[string]struct{}, len(existing)+len(tokens))
	out := make([]string, 0, len(existing)+len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	for _, pattern := range existing {
		if _, ok := seen[pattern]; ok {
			continue
		}
		seen[pattern] = struct{}{}
		out = append(out, pattern)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// dedupePatterns removes duplicates keeping first occurrence and trims to
// cap.
func dedupePatterns(patterns []string, max int) []string {
	return unionPatterns(patterns, nil, max)
}

// rankPreferredTypes orders interaction kinds by observed frequency,
// descending, with a stable alphabetical tiebreak.
func rankPreferredTypes(interactions map[string]int) []string {
	types := make([]string, 0, len(interactions))
	for kind := range interactions {
		types = append(types, kind)
	}
	sort.Slice(types, func(i, j int) bool {
		if interactions[types[i]] != interactions[types[j]] {
			return interactions[types[i]] > interactions[types[j]]
		}
		return types[i] < types[j]
	})
	return types
}
