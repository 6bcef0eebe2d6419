// Package users persists user accounts and their current refresh token.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// Repository is the user registry. Lookups return common.ErrorNotFound for
// unknown users, Insert returns common.ErrConflict for a taken username and
// every driver failure is wrapped in common.ErrStorageUnavailable.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Exists(ctx context.Context, username string) (bool, error)
	Insert(ctx context.Context, user *models.User) (*models.User, error)
	// Save writes the refresh token fields of user; nothing else changes.
	Save(ctx context.Context, user *models.User) error
	// CompareAndSwapRefreshToken replaces the stored refresh token only if it
	// still equals expected, reporting whether the swap happened.
	CompareAndSwapRefreshToken(ctx context.Context, userID, expected, token string, expiresAt time.Time) (bool, error)
}
