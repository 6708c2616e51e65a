package openapi

import (
	"strings"
	"unicode"
)

// Label turns a property name such as "employer_name", "employerName" or
// "address-line2" into a display label ("Employer Name", "Address Line 2").
func Label(name string) string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, capitalize(string(current)))
			current = current[:0]
		}
	}

	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		if r == '_' || r == '-' || r == '.' || unicode.IsSpace(r) {
			flush()
			continue
		}
		if i > 0 && len(current) > 0 && wordBoundary(runes[i-1], r) {
			flush()
		}
		current = append(current, r)
	}
	flush()
	return strings.Join(words, " ")
}

func wordBoundary(prev, r rune) bool {
	switch {
	case unicode.IsLower(prev) && unicode.IsUpper(r):
		return true
	case unicode.IsLetter(prev) && unicode.IsDigit(r):
		return true
	case unicode.IsDigit(prev) && unicode.IsLetter(r):
		return true
	}
	return false
}

func capitalize(word string) string {
	lower := []rune(strings.ToLower(word))
	lower[0] = unicode.ToUpper(lower[0])
	return string(lower)
}
