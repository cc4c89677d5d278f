// Package domain holds the typed identifiers and small value objects shared
// across modules. Constructing them through the Parse helpers at trust
// boundaries enforces format invariants; direct casting bypasses validation.
package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "papernet/pkg/domain-errors"
)

// Symbol identifies a company on the network, e.g. "MAGNETOCORP".
type Symbol string

// ParseSymbol constructs a Symbol from external input.
//
// Errors: returns CodeValidation when the value is empty or contains
// characters outside [A-Z0-9.-].
func ParseSymbol(s string) (Symbol, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "company symbol cannot be empty")
	}
	for _, r := range s {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) && r != '.' && r != '-' {
			return "", dErrors.New(dErrors.CodeValidation, "company symbol must be alphanumeric")
		}
	}
	return Symbol(s), nil
}

func (s Symbol) String() string { return string(s) }

// AccountID identifies a trading account, e.g. "ACC-B1".
type AccountID string

// ParseAccountID constructs an AccountID from external input.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "account id cannot be empty")
	}
	return AccountID(s), nil
}

func (a AccountID) String() string { return string(a) }

// CUSIP identifies a single commercial paper instrument. It is the identity
// key in the paper registry and must be unique per instrument.
type CUSIP string

// ParseCUSIP constructs a CUSIP from external input.
func ParseCUSIP(s string) (CUSIP, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "cusip cannot be empty")
	}
	if strings.ContainsAny(s, " /") {
		return "", dErrors.New(dErrors.CodeValidation, "cusip cannot contain spaces or slashes")
	}
	return CUSIP(s), nil
}

// Sequence derives the distinguishing CUSIP for the n-th unit of a
// multi-unit issue. Unit 0 keeps the base CUSIP so single-unit issues are
// unaffected; later units get a numeric suffix zero-padded to three digits.
// Indexes past 999 keep all their digits so every unit stays distinct.
func (c CUSIP) Sequence(n int) CUSIP {
	if n == 0 {
		return c
	}
	return CUSIP(fmt.Sprintf("%s-%03d", c, n))
}

func (c CUSIP) String() string { return string(c) }

// MarketID identifies a market, e.g. "M1".
type MarketID string

// ParseMarketID constructs a MarketID from external input.
func ParseMarketID(s string) (MarketID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "market id cannot be empty")
	}
	return MarketID(s), nil
}

func (m MarketID) String() string { return string(m) }

// ListingID identifies a market listing. Listing IDs are minted by the
// market book, not supplied by callers.
type ListingID uuid.UUID

// NewListingID mints a fresh listing ID.
func NewListingID() ListingID { return ListingID(uuid.New()) }

// ParseListingID constructs a ListingID from external input.
func ParseListingID(s string) (ListingID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return ListingID{}, dErrors.New(dErrors.CodeValidation, "listing id must be a UUID")
	}
	return ListingID(u), nil
}

func (l ListingID) String() string { return uuid.UUID(l).String() }

// IsNil reports whether the listing ID is the zero value.
func (l ListingID) IsNil() bool { return uuid.UUID(l) == uuid.Nil }

// MarshalText implements encoding.TextMarshaler so listing IDs serialize as
// their canonical string form in JSON documents and map keys.
func (l ListingID) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ListingID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*l = ListingID(u)
	return nil
}
