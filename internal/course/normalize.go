package course

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// gramSize is the longest n-gram kept in the substring index.
const gramSize = 3

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize folds text the same way for titles and queries: compatibility
// decomposition, diacritics dropped, case folded. It returns the distinct
// letter/digit runs in order of first appearance.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(fold(text), -1)
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	out := raw[:0]
	for _, t := range raw {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func fold(s string) string {
	// Transformers carry state, so the chain is built per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// grams returns every distinct 1..gramSize rune window of token.
func grams(token string) []string {
	rs := []rune(token)
	seen := make(map[string]struct{}, len(rs)*gramSize)
	out := make([]string, 0, len(rs)*gramSize)

	for n := 1; n <= gramSize; n++ {
		for i := 0; i+n <= len(rs); i++ {
			g := string(rs[i : i+n])
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}

// trigrams returns the gramSize windows used to narrow a long query token.
func trigrams(token string) []string {
	rs := []rune(token)
	out := make([]string, 0, len(rs))
	for i := 0; i+gramSize <= len(rs); i++ {
		out = append(out, string(rs[i:i+gramSize]))
	}
	return out
}
