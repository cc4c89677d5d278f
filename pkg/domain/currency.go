package domain

import (
	"strings"
	"unicode"

	dErrors "papernet/pkg/domain-errors"
)

// Currency is a three-letter working currency code, e.g. "USD". Currency
// conversion is out of scope: two amounts may only meet when their
// currencies match.
type Currency string

// ParseCurrency constructs a Currency from external input.
//
// Errors: returns CodeValidation unless the value is exactly three letters.
func ParseCurrency(s string) (Currency, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", dErrors.New(dErrors.CodeValidation, "currency must be a three-letter code")
	}
	for _, r := range s {
		if !unicode.IsUpper(r) {
			return "", dErrors.New(dErrors.CodeValidation, "currency must be a three-letter code")
		}
	}
	return Currency(s), nil
}

func (c Currency) String() string { return string(c) }
