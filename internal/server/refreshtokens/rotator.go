// Package refreshtokens generates refresh tokens and rotates the single
// active token stored on each user record.
package refreshtokens

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
)

// TokenBytes is the amount of randomness in a refresh token.
const TokenBytes = 32

// Generate returns a fresh refresh token: TokenBytes from crypto/rand,
// standard base64 encoded.
func Generate() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Rotator issues, checks and rotates refresh tokens. It holds no state of its
// own; the repository is passed per call so the caller controls transactions.
type Rotator struct {
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

// Option customises a Rotator.
type Option func(*Rotator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Rotator) { r.now = now }
}

// WithGenerator replaces Generate.
func WithGenerator(gen func() (string, error)) Option {
	return func(r *Rotator) { r.generate = gen }
}

func NewRotator(ttl time.Duration, opts ...Option) *Rotator {
	r := &Rotator{ttl: ttl, now: time.Now, generate: Generate}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IssueAndPersist stores a new token on user, replacing whatever was there,
// and returns it. Concurrent calls for the same user are last-write-wins.
func (r *Rotator) IssueAndPersist(ctx context.Context, repo users.Repository, user *models.User) (string, error) {
	token, err := r.generate()
	if err != nil {
		return "", err
	}
	expiresAt := r.now().Add(r.ttl)

	user.RefreshToken = &token
	user.RefreshTokenExpiresAt = &expiresAt

	if err := repo.Save(ctx, user); err != nil {
		return "", fmt.Errorf("save refresh token: %w", err)
	}
	return token, nil
}

// Validate loads the user and checks that presented is its current,
// unexpired refresh token. Every mismatch returns
// common.ErrInvalidOrExpiredRefreshToken.
func (r *Rotator) Validate(ctx context.Context, repo users.Repository, userID, presented string) (*models.User, error) {
	user, err := repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidOrExpiredRefreshToken
		}
		return nil, err
	}

	if !user.HasRefreshToken() || user.RefreshTokenExpiresAt == nil || presented == "" {
		return nil, common.ErrInvalidOrExpiredRefreshToken
	}
	if subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(presented)) != 1 {
		return nil, common.ErrInvalidOrExpiredRefreshToken
	}
	if !r.now().Before(*user.RefreshTokenExpiresAt) {
		return nil, common.ErrInvalidOrExpiredRefreshToken
	}

	return user, nil
}

// Rotate replaces presented with a new token, provided presented is still the
// stored value. Losing a concurrent rotation returns
// common.ErrInvalidOrExpiredRefreshToken, so every token is single-use.
func (r *Rotator) Rotate(ctx context.Context, repo users.Repository, user *models.User, presented string) (string, error) {
	token, err := r.generate()
	if err != nil {
		return "", err
	}
	expiresAt := r.now().Add(r.ttl)

	swapped, err := repo.CompareAndSwapRefreshToken(ctx, user.ID, presented, token, expiresAt)
	if err != nil {
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		return "", common.ErrInvalidOrExpiredRefreshToken
	}

	user.RefreshToken = &token
	user.RefreshTokenExpiresAt = &expiresAt
	return token, nil
}
