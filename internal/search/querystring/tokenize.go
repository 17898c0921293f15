package querystring

import (
	"strings"
	"unicode"
)

// Tokenize lower-cases s and splits it on every rune that is neither a letter
// nor a digit. It is used both when indexing documents and when parsing queries
// so the two always agree on token boundaries.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
