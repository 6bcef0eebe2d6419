// Package auth holds the credential primitives of the server: password
// hashing, access token signing and validation, and the role model.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSigningKeyLength is the shortest HS512 key accepted, in bytes.
const MinSigningKeyLength = 64

// ErrWeakSigningKey is returned by NewTokenSigner for short keys.
var ErrWeakSigningKey = fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLength)

var signingMethod = jwt.SigningMethodHS512

// Claims carried by an access token. Subject and UserID both hold the user
// id; UserID keeps a stable custom claim for clients that ignore "sub".
type Claims struct {
	jwt.RegisteredClaims
	Name   string `json:"name"`
	UserID string `json:"uid"`
	Role   Role   `json:"role"`
}

// TokenSigner issues and validates HS512 access tokens. It keeps no
// per-token state, so any instance sharing the key accepts any token.
type TokenSigner struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// SignerOption customises a TokenSigner.
type SignerOption func(*TokenSigner)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SignerOption {
	return func(s *TokenSigner) { s.now = now }
}

// NewTokenSigner returns a signer for tokens valid for ttl.
func NewTokenSigner(key []byte, issuer, audience string, ttl time.Duration, opts ...SignerOption) (*TokenSigner, error) {
	if len(key) < MinSigningKeyLength {
		return nil, ErrWeakSigningKey
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if ttl <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}

	s := &TokenSigner{
		key:      append([]byte(nil), key...),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccessToken signs a token identifying the given user.
func (s *TokenSigner) IssueAccessToken(userID, userName string, role Role) (string, error) {
	now := s.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Name:   userName,
		UserID: userID,
		Role:   role,
	}

	token, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// Validate parses token and checks its signature, issuer, audience and
// expiry. Expired tokens yield common.ErrTokenExpired, everything else
// common.ErrMalformedToken.
func (s *TokenSigner) Validate(token string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedToken, err)
	}

	if claims.Subject == "" || claims.UserID != claims.Subject || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: incomplete claims", common.ErrMalformedToken)
	}

	return claims, nil
}

// TTL is the lifetime of issued tokens.
func (s *TokenSigner) TTL() time.Duration { return s.ttl }
