// Package models defines the records the server persists.
package models

import (
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
)

// User is a registered account. PasswordHash holds the encoded hash, never
// the password itself. The refresh token fields are nil until the first
// successful login.
type User struct {
	ID                    string
	UserName              string
	PasswordHash          string
	Role                  auth.Role
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
}

// HasRefreshToken reports whether a refresh token is currently stored.
func (u *User) HasRefreshToken() bool {
	return u.RefreshToken != nil && *u.RefreshToken != ""
}
