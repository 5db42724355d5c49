package schema

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxIdentLen is the Postgres identifier limit (NAMEDATALEN-1).
const maxIdentLen = 63

// NormalizeName converts an arbitrary field name into a lower-case identifier
// of [a-z0-9_], stripping diacritics ("Trésorier" -> "tresorier") and folding
// separators to single underscores.
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	prevLower := false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			// camelCase boundary
			if prevLower && !lastUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore, prevLower = false, false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore, prevLower = false, true
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			prevLower = false
		}
	}

	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return truncateName(out, maxIdentLen)
}

func truncateName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
