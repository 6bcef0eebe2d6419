package grpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/authrpc"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// fakeAuth answers with fixed values unless the matching error is set.
type fakeAuth struct {
	registerErr error
	loginErr    error
	refreshErr  error
	validateErr error
	getUserErr  error

	gotUser, gotPassword, gotRefreshUserID, gotRefreshToken string
}

var alice = &models.User{ID: "u-1", UserName: "alice", PasswordHash: "secret-hash", Role: auth.RoleUser}

func (f *fakeAuth) Register(ctx context.Context, username, password string) (*models.User, error) {
	f.gotUser, f.gotPassword = username, password
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return alice, nil
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (*services.TokenPair, error) {
	f.gotUser, f.gotPassword = username, password
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
}

func (f *fakeAuth) Refresh(ctx context.Context, userID, refreshToken string) (*services.TokenPair, error) {
	f.gotRefreshUserID, f.gotRefreshToken = userID, refreshToken
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeAuth) ValidateAccessToken(token string) (*auth.Claims, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	if token != "good-token" {
		return nil, common.ErrMalformedToken
	}
	c := &auth.Claims{UserID: alice.ID, Name: alice.UserName, Role: alice.Role}
	c.Subject = alice.ID
	return c, nil
}

func (f *fakeAuth) GetUser(ctx context.Context, id string) (*models.User, error) {
	if f.getUserErr != nil {
		return nil, f.getUserErr
	}
	if id != alice.ID {
		return nil, common.ErrorNotFound
	}
	return alice, nil
}

func startBufServer(t *testing.T, a Authenticator) *authrpc.AuthServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("bufnet", nopLogger{}, a).NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return authrpc.NewAuthServiceClient(conn)
}

func withToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authrpc.AccessTokenMetadataKey, token)
}

func TestRegister(t *testing.T) {
	f := &fakeAuth{}
	c := startBufServer(t, f)

	resp, err := c.Register(context.Background(), &authrpc.RegisterRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, &authrpc.UserResponse{ID: "u-1", Username: "alice", Role: "User"}, resp)
	assert.Equal(t, "alice", f.gotUser)
	assert.Equal(t, "pw1", f.gotPassword)
}

func TestLoginAndRefresh(t *testing.T) {
	f := &fakeAuth{}
	c := startBufServer(t, f)

	pair, err := c.Login(context.Background(), &authrpc.LoginRequest{Username: "alice", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, "access-1", pair.AccessToken)
	assert.Equal(t, "refresh-1", pair.RefreshToken)

	pair, err = c.RefreshToken(context.Background(), &authrpc.RefreshTokenRequest{UserID: "u-1", RefreshToken: "refresh-1"})
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", pair.RefreshToken)
	assert.Equal(t, "u-1", f.gotRefreshUserID)
	assert.Equal(t, "refresh-1", f.gotRefreshToken)
}

func TestPing(t *testing.T) {
	c := startBufServer(t, &fakeAuth{})

	resp, err := c.Ping(context.Background(), &authrpc.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Status)
}

func TestWhoAmI(t *testing.T) {
	c := startBufServer(t, &fakeAuth{})

	resp, err := c.WhoAmI(withToken(context.Background(), "good-token"), &authrpc.WhoAmIRequest{})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "User", resp.Role)
}

func TestWhoAmI_TokenErrors(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		auth    *fakeAuth
		wantMsg string
	}{
		{"missing token", context.Background(), &fakeAuth{}, "missing token"},
		{"malformed token", withToken(context.Background(), "forged"), &fakeAuth{}, "invalid token"},
		{"expired token", withToken(context.Background(), "good-token"), &fakeAuth{validateErr: common.ErrTokenExpired}, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := startBufServer(t, tt.auth)

			_, err := c.WhoAmI(tt.ctx, &authrpc.WhoAmIRequest{})
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, codes.Unauthenticated, st.Code())
			assert.Equal(t, tt.wantMsg, st.Message())
		})
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"duplicate", common.ErrDuplicateUsername, codes.AlreadyExists},
		{"validation", fmt.Errorf("%w: username is required", common.ErrValidation), codes.InvalidArgument},
		{"credentials", common.ErrInvalidCredentials, codes.Unauthenticated},
		{"storage", fmt.Errorf("%w: dial tcp", common.ErrStorageUnavailable), codes.Unavailable},
		{"unexpected", fmt.Errorf("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := startBufServer(t, &fakeAuth{registerErr: tt.err, loginErr: tt.err})

			_, err := c.Register(context.Background(), &authrpc.RegisterRequest{Username: "a", Password: "b"})
			assert.Equal(t, tt.want, status.Code(err))

			_, err = c.Login(context.Background(), &authrpc.LoginRequest{Username: "a", Password: "b"})
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	c := startBufServer(t, &fakeAuth{refreshErr: common.ErrInvalidOrExpiredRefreshToken})

	_, err := c.RefreshToken(context.Background(), &authrpc.RefreshTokenRequest{UserID: "u-1", RefreshToken: "old"})
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, "invalid or expired refresh token", st.Message())
}

func TestInternalErrorsHideDetails(t *testing.T) {
	c := startBufServer(t, &fakeAuth{loginErr: fmt.Errorf("%w: password=hunter2 host=db", common.ErrStorageUnavailable)})

	_, err := c.Login(context.Background(), &authrpc.LoginRequest{Username: "a", Password: "b"})
	st, _ := status.FromError(err)
	assert.NotContains(t, st.Message(), "hunter2")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	srv := NewGRPCServer("127.0.0.1:0", nopLogger{}, &fakeAuth{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	srv := NewGRPCServer("127.0.0.1:99999", nopLogger{}, &fakeAuth{})

	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
