package visibility

import (
	"math"
	"strconv"
	"strings"

	"github.com/goliatone/go-formflow/pkg/model"
)

func contains(actual, expected model.Value) bool {
	needle, ok := expected.AsString()
	if !ok {
		return false
	}
	switch actual.Kind() {
	case model.KindString:
		haystack, _ := actual.AsString()
		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	case model.KindList:
		items, _ := actual.AsList()
		for _, item := range items {
			if item == needle {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compareNumbers(actual, expected model.Value, cmp func(a, b float64) bool) bool {
	a, ok := coerceNumber(actual)
	if !ok {
		return false
	}
	b, ok := coerceNumber(expected)
	if !ok {
		return false
	}
	return cmp(a, b)
}

// coerceNumber is a total numeric parse: numbers pass through, strings parse
// as decimal floats, everything else is non-numeric.
func coerceNumber(value model.Value) (float64, bool) {
	switch value.Kind() {
	case model.KindNumber:
		n, _ := value.AsNumber()
		return n, finite(n)
	case model.KindString:
		s, _ := value.AsString()
		return ParseNumber(s)
	default:
		return 0, false
	}
}

// ParseNumber parses s as a finite decimal number. NaN, infinities and hex
// floats are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
