package domain

import (
	"strings"

	dErrors "papernet/pkg/domain-errors"
)

// Supported DID scheme and method. The network pins participants to
// Sovrin-style DIDs; other methods are rejected at the boundary.
const (
	DIDScheme = "did"
	DIDMethod = "sov"
)

// DID is a decentralized identifier assigned to a company as its public
// identity, e.g. did:sov:6cgbu8ZPoWTnR5Rv5JcSMB.
type DID struct {
	Scheme     string `json:"scheme"`
	Method     string `json:"method"`
	Identifier string `json:"identifier"`
}

// ParseDID constructs a DID from its string form "did:sov:<identifier>".
//
// Errors: returns CodeValidation when the scheme or method is unsupported or
// the identifier is empty.
func ParseDID(s string) (DID, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) != 3 {
		return DID{}, dErrors.New(dErrors.CodeValidation, "did must have the form did:sov:<identifier>")
	}
	return NewDID(parts[0], parts[1], parts[2])
}

// NewDID constructs a DID from its parts, enforcing the supported scheme and
// method.
func NewDID(scheme, method, identifier string) (DID, error) {
	if scheme != DIDScheme {
		return DID{}, dErrors.Newf(dErrors.CodeValidation, "unsupported did scheme %q", scheme)
	}
	if method != DIDMethod {
		return DID{}, dErrors.Newf(dErrors.CodeValidation, "unsupported did method %q", method)
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return DID{}, dErrors.New(dErrors.CodeValidation, "did identifier cannot be empty")
	}
	return DID{Scheme: scheme, Method: method, Identifier: identifier}, nil
}

// IsZero reports whether no DID has been assigned.
func (d DID) IsZero() bool { return d == DID{} }

func (d DID) String() string {
	return d.Scheme + ":" + d.Method + ":" + d.Identifier
}
