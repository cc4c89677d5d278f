// Package identity resolves the calling participant and its authorization
// scope. Identity issuance and DID verification belong to the surrounding
// network layer; the core only needs to know which companies and accounts a
// caller may act for.
package identity

import (
	"context"

	id "papernet/pkg/domain"
)

// Resolver maps a credential presented by the caller to its authorization
// scope. Implementations: JWTResolver for bearer tokens, Static for tests
// and local development.
type Resolver interface {
	// ResolveCaller resolves the presented credential.
	//
	// Errors: CodeUnauthorized when the credential is missing, malformed,
	// expired, or unknown.
	ResolveCaller(ctx context.Context, credential string) (id.Caller, error)
}
