package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Words too common on covers and in titles to say anything about a match.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "and": {}, "in": {},
	"to": {}, "for": {}, "on": {}, "with": {}, "at": {}, "by": {},
	"from": {}, "vol": {}, "volume": {}, "lp": {}, "ep": {},
}

// wordSet holds the significant words of a piece of text.
type wordSet map[string]struct{}

// foldText lowercases s and strips diacritics, so "Café" and "CAFE" compare
// equal. OCR output rarely keeps accents.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// significantWords splits s on anything that is not a letter or digit and
// drops stop words. Order is preserved and duplicates are kept.
func significantWords(s string) []string {
	fields := strings.FieldsFunc(foldText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			words = append(words, f)
		}
	}
	return words
}

func newWordSet(s string) wordSet {
	words := significantWords(s)
	set := make(wordSet, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// containsAll reports whether every significant word of phrase is in the set.
// A phrase made only of stop words never matches.
func (ws wordSet) containsAll(phrase string) bool {
	words := significantWords(phrase)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if _, ok := ws[w]; !ok {
			return false
		}
	}
	return true
}
