// Package authn verifies bearer tokens minted by an external identity
// collaborator. Token issuance, password hashing, and session management are
// explicitly out of scope — this package only parses and validates.
package authn

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// issuedAtSkew tolerates modest clock drift between issuer and verifier.
const issuedAtSkew = 30 * time.Second

// ErrInvalidToken is returned for any token that fails parsing, signature
// verification, or claim validation.
var ErrInvalidToken = errors.New("authn: invalid token")

// Claims identifies the caller and their tenant.
type Claims struct {
	OrganizationID uuid.UUID
	Subject        string
	Role           string
}

// Verifier validates a bearer token string and returns the caller's claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// JWTVerifier verifies HS256-signed tokens using a shared secret, matching
// the SECRET_KEY / JWT_ALGORITHM configuration contract.
type JWTVerifier struct {
	secret    []byte
	algorithm string
}

// NewJWTVerifier builds a Verifier for the given secret and algorithm. Only
// HS256 is currently supported; any other configured algorithm is rejected
// at verify time rather than at construction, matching the contract's
// "algorithm is configuration, not a compile-time choice" stance.
func NewJWTVerifier(secret, algorithm string) *JWTVerifier {
	if algorithm == "" {
		algorithm = "HS256"
	}
	return &JWTVerifier{secret: []byte(secret), algorithm: algorithm}
}

type registeredClaims struct {
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// Verify parses and validates token, returning the organization and subject
// it authenticates.
func (v *JWTVerifier) Verify(token string) (Claims, error) {
	if v.algorithm != "HS256" {
		return Claims{}, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidToken, v.algorithm)
	}

	claims := &registeredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithLeeway(issuedAtSkew))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	orgID, err := uuid.Parse(claims.OrganizationID)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: organization_id claim: %v", ErrInvalidToken, err)
	}

	return Claims{
		OrganizationID: orgID,
		Subject:        claims.Subject,
		Role:           claims.Role,
	}, nil
}
