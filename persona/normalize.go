package persona

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// NormalizeKey canonicalizes a free-form fact key: lowercased, trimmed,
// punctuation stripped, whitespace runs collapsed to single underscores.
// Idempotent, so normalized keys pass through unchanged.
func NormalizeKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	pendingSep := false
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			// whitespace, punctuation, underscores: all collapse into one
			// separator between word runs
			pendingSep = true
		}
	}
	return b.String()
}

// DisambiguateKey returns canonical unchanged if it is free, otherwise the
// first numbered variant (canonical_2, canonical_3, ...) not present in
// existing. Distinct facts sharing a raw key label never overwrite each
// other.
func DisambiguateKey(canonical string, existing []string) string {
	if !slices.Contains(existing, canonical) {
		return canonical
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", canonical, n)
		if !slices.Contains(existing, candidate) {
			return candidate
		}
	}
}
