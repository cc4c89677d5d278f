package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "papernet/pkg/domain"
	dErrors "papernet/pkg/domain-errors"
)

// Claims carries the participant scope inside an access token.
type Claims struct {
	Companies []string `json:"companies"`
	Accounts  []string `json:"accounts"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 bearer tokens minted by the network's identity
// layer and turns their claims into a caller scope.
type JWTResolver struct {
	signingKey []byte
	issuer     string
}

// NewJWTResolver creates a resolver for tokens signed with signingKey.
func NewJWTResolver(signingKey, issuer string) *JWTResolver {
	return &JWTResolver{signingKey: []byte(signingKey), issuer: issuer}
}

func (r *JWTResolver) ResolveCaller(_ context.Context, credential string) (id.Caller, error) {
	if credential == "" {
		return id.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "missing credential")
	}

	parsed, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return r.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if r.issuer != "" && claims.Issuer != r.issuer {
		return id.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "unknown token issuer")
	}

	caller := id.Caller{ParticipantID: claims.Subject}
	for _, raw := range claims.Companies {
		symbol, err := id.ParseSymbol(raw)
		if err != nil {
			return id.Caller{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "malformed company claim")
		}
		caller.Companies = append(caller.Companies, symbol)
	}
	for _, raw := range claims.Accounts {
		account, err := id.ParseAccountID(raw)
		if err != nil {
			return id.Caller{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "malformed account claim")
		}
		caller.Accounts = append(caller.Accounts, account)
	}
	return caller, nil
}

// MintToken signs an access token for the given scope. Exposed for local
// development and tests; production tokens come from the identity layer.
func (r *JWTResolver) MintToken(caller id.Caller, expiresIn time.Duration) (string, error) {
	companies := make([]string, len(caller.Companies))
	for i, s := range caller.Companies {
		companies[i] = s.String()
	}
	accounts := make([]string, len(caller.Accounts))
	for i, a := range caller.Accounts {
		accounts[i] = a.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Companies: companies,
		Accounts:  accounts,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ParticipantID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(r.signingKey)
}
