package repositorycache

import (
	"strings"
	"unicode"
)

// kebab turns a reflected type name into a key namespace: "BidResult"
// becomes "bid-result", "HTTPClient" becomes "http-client". Anything that is
// not a letter or digit separates words, so pointer markers and generic
// brackets drop out.
func kebab(name string) string {
	runes := []rune(name)
	words := make([]string, 0, 4)
	word := make([]rune, 0, len(runes))

	flush := func() {
		if len(word) > 0 {
			words = append(words, strings.ToLower(string(word)))
			word = word[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(word) > 0 {
			prev := word[len(word)-1]
			upper := unicode.IsUpper(r)
			switch {
			case upper && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
				flush()
			case upper && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				// end of an acronym: "HTTPClient"
				flush()
			case unicode.IsDigit(r) != unicode.IsDigit(prev):
				flush()
			}
		}
		word = append(word, r)
	}
	flush()

	return strings.Join(words, "-")
}
