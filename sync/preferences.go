// ABOUTME: Marketing preference token sets
// ABOUTME: Parses and joins semicolon-separated preference values with deterministic ordering
package sync

import (
	"sort"
	"strings"
)

// PreferenceSeparator joins preference tokens in HubSpot's multi-checkbox format.
const PreferenceSeparator = ";"

// PreferenceSet is an unordered set of preference tokens. Empty tokens are never members.
type PreferenceSet map[string]struct{}

// NewPreferenceSet builds a set from tokens, dropping empty ones.
func NewPreferenceSet(tokens ...string) PreferenceSet {
	s := make(PreferenceSet, len(tokens))
	for _, token := range tokens {
		if token != "" {
			s[token] = struct{}{}
		}
	}
	return s
}

// ParsePreferences splits a semicolon-joined value into a set.
func ParsePreferences(value string) PreferenceSet {
	if value == "" {
		return PreferenceSet{}
	}
	return NewPreferenceSet(strings.Split(value, PreferenceSeparator)...)
}

func (s PreferenceSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

func (s PreferenceSet) Len() int {
	return len(s)
}

// Union returns the tokens in s or other.
func (s PreferenceSet) Union(other PreferenceSet) PreferenceSet {
	out := make(PreferenceSet, len(s)+len(other))
	for token := range s {
		out[token] = struct{}{}
	}
	for token := range other {
		out[token] = struct{}{}
	}
	return out
}

// Difference returns the tokens in s that are not in other.
func (s PreferenceSet) Difference(other PreferenceSet) PreferenceSet {
	out := make(PreferenceSet, len(s))
	for token := range s {
		if !other.Has(token) {
			out[token] = struct{}{}
		}
	}
	return out
}

// Intersect returns the tokens in both s and other.
func (s PreferenceSet) Intersect(other PreferenceSet) PreferenceSet {
	out := make(PreferenceSet)
	for token := range s {
		if other.Has(token) {
			out[token] = struct{}{}
		}
	}
	return out
}

// Sorted returns the tokens in ascending order. The result is never nil.
func (s PreferenceSet) Sorted() []string {
	tokens := make([]string, 0, len(s))
	for token := range s {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// String joins the sorted tokens with the preference separator.
func (s PreferenceSet) String() string {
	return strings.Join(s.Sorted(), PreferenceSeparator)
}
