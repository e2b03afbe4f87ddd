package store

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// NormalizeTags prepares a caller-supplied tag list for persistence:
// names are whitespace-trimmed, empty strings dropped, and duplicates
// removed keeping the first occurrence. Identity is case-sensitive, so
// "ops" and "Ops" are distinct tags. This is the canonical store rule;
// any looser case-insensitive matching belongs to UI layers.
func NormalizeTags(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// newCollator returns the collator used for deterministic tag listing.
// Both backends sort the vocabulary with it so listings agree.
func newCollator() *collate.Collator {
	return collate.New(language.English)
}

func sortTags(c *collate.Collator, names []string) {
	c.SortStrings(names)
}

// sameTagSet compares two normalized tag lists as sets. Tag order does
// not convey meaning, so a reorder alone is not a change.
func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, name := range a {
		set[name] = true
	}
	for _, name := range b {
		if !set[name] {
			return false
		}
	}
	return true
}
