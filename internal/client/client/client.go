package client

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/authrpc"
)

// Client is the API surface the CLI uses.
type Client interface {
	Close() error
	Register(ctx context.Context, username string, password []byte) (*authrpc.UserResponse, error)
	Login(ctx context.Context, username string, password []byte) error
	Refresh(ctx context.Context) error
	WhoAmI(ctx context.Context) (*authrpc.UserResponse, error)
	Ping(ctx context.Context) error
	Logout()
	IsLoggedIn() bool
	UserID() string
}
