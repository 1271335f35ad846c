package lexical

import (
	"strings"
	"unicode"
)

// Tokenize splits text into BM25 terms. Latin/digit runs become lowercased
// word tokens; Han runs additionally emit character unigrams and bigrams so
// unsegmented Chinese queries still overlap with corpus terms. The same
// tokenizer serves indexing and querying.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}

	out := make([]string, 0, 24)
	var word strings.Builder
	var han []rune

	flushWord := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	flushHan := func() {
		for i, r := range han {
			out = append(out, string(r))
			if i+1 < len(han) {
				out = append(out, string(han[i:i+2]))
			}
		}
		han = han[:0]
	}

	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word.WriteRune(unicode.ToLower(r))
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return out
}
