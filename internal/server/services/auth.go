// Package services contains the server business logic. AuthService handles
// registration, password login and refresh token rotation, and validates
// access tokens on behalf of the transports.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// MaxUsernameBytes bounds usernames accepted at registration.
const MaxUsernameBytes = 64

// TokenPair is the result of a successful Login or Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *auth.PasswordHasher
	signer      *auth.TokenSigner
	rotator     *refreshtokens.Rotator
	admins      map[string]struct{}
	now         func() time.Time
}

type serviceOptions struct {
	now func() time.Time
}

// Option customises NewAuthService.
type Option func(*serviceOptions)

// WithClock drives token timestamps and expiry checks from now.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// NewAuthService builds the service from cfg. It fails when the signing key
// or hashing parameters are unusable.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) (*AuthService, error) {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	hasher, err := auth.NewPasswordHasher(cfg.PasswordAlgorithm, auth.Argon2Params{
		Time:      cfg.Argon2Time,
		MemoryKiB: cfg.Argon2MemoryKiB,
		Threads:   cfg.Argon2Threads,
	}, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	signer, err := auth.NewTokenSigner([]byte(cfg.SecretKey), cfg.Issuer, cfg.Audience,
		cfg.AccessTokenValidityDuration, auth.WithClock(o.now))
	if err != nil {
		return nil, err
	}

	admins := make(map[string]struct{}, len(cfg.AdminUsers))
	for _, name := range cfg.AdminUsers {
		admins[name] = struct{}{}
	}

	return &AuthService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		signer:      signer,
		rotator:     refreshtokens.NewRotator(cfg.RefreshTokenValidityDuration, refreshtokens.WithClock(o.now)),
		admins:      admins,
		now:         o.now,
	}, nil
}

// Register creates a user. The username must be unused; the check and the
// insert share one transaction and the unique index backs them up.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.NewString(),
		UserName:     username,
		PasswordHash: hash,
		Role:         s.roleFor(username),
		CreatedAt:    s.now().UTC(),
	}

	var created *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		exists, err := repo.Exists(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrDuplicateUsername
		}

		created, err = repo.Insert(ctx, user)
		if errors.Is(err, common.ErrConflict) {
			return common.ErrDuplicateUsername
		}
		return err
	})
	if err != nil {
		return nil, classify(err)
	}

	return created, nil
}

// Login checks the password and returns a fresh token pair. Unknown users and
// wrong passwords are both ErrInvalidCredentials and cost the same hashing
// work.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDecoy(password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, classify(err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, common.ErrInvalidCredentials
	}

	access, err := s.signer.IssueAccessToken(user.ID, user.UserName, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	refresh, err := s.rotator.IssueAndPersist(ctx, repo, user)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, classify(err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges the user's current refresh token for a new pair. The
// presented token is consumed; reusing it fails.
func (s *AuthService) Refresh(ctx context.Context, userID, refreshToken string) (*TokenPair, error) {
	if _, err := uuid.Parse(userID); err != nil || refreshToken == "" {
		return nil, common.ErrInvalidOrExpiredRefreshToken
	}

	repo := s.repomanager.Users(s.db)

	user, err := s.rotator.Validate(ctx, repo, userID, refreshToken)
	if err != nil {
		return nil, classify(err)
	}

	access, err := s.signer.IssueAccessToken(user.ID, user.UserName, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	refresh, err := s.rotator.Rotate(ctx, repo, user, refreshToken)
	if err != nil {
		return nil, classify(err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateAccessToken returns the claims of a valid access token, or
// common.ErrTokenExpired / common.ErrMalformedToken.
func (s *AuthService) ValidateAccessToken(token string) (*auth.Claims, error) {
	return s.signer.Validate(token)
}

// GetUser looks a user up by id; malformed ids are reported as not found.
func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	user, err := s.repomanager.Users(s.db).FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, classify(err)
	}
	return user, nil
}

func (s *AuthService) roleFor(username string) auth.Role {
	if _, ok := s.admins[username]; ok {
		return auth.RoleAdmin
	}
	return auth.DefaultRole
}

func validateCredentials(username, password string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", common.ErrValidation)
	case password == "":
		return fmt.Errorf("%w: password is required", common.ErrValidation)
	case len(username) > MaxUsernameBytes:
		return fmt.Errorf("%w: username longer than %d bytes", common.ErrValidation, MaxUsernameBytes)
	case len(password) > auth.MaxPasswordBytes:
		return fmt.Errorf("%w: password longer than %d bytes", common.ErrValidation, auth.MaxPasswordBytes)
	}
	return nil
}

// classify passes known error kinds through and reports anything else, such
// as a failed BEGIN or COMMIT, as a storage failure.
func classify(err error) error {
	known := []error{
		common.ErrDuplicateUsername,
		common.ErrInvalidCredentials,
		common.ErrInvalidOrExpiredRefreshToken,
		common.ErrStorageUnavailable,
		common.ErrValidation,
		common.ErrorInternal,
		common.ErrorNotFound,
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
}
