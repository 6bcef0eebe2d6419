package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/tokenkeeper/internal/authrpc"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *authrpc.AuthServiceClient

	mu           sync.Mutex
	userID       string
	accessToken  string
	refreshToken string

	// refreshMu serialises refreshes so concurrent expired calls rotate once.
	refreshMu sync.Mutex
}

var _ Client = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (s *GRPCClient) tokens() (userID, access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(userID, access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID, s.accessToken, s.refreshToken = userID, access, refresh
}

// accessTokenInterceptor attaches the access token and, on "token expired",
// refreshes the pair and retries the call once.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	_, access, refresh := s.tokens()
	if access != "" {
		ctx = withAccessToken(ctx, access)
	}

	err := invoker(ctx, method, req, reply, cc, opts...)
	if err == nil || method == authrpc.RefreshTokenMethod || !isTokenExpired(err) {
		return err
	}
	if refresh == "" {
		return err
	}

	if err := s.refreshIfStale(ctx, refresh); err != nil {
		return err
	}

	_, access, _ = s.tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

// refreshIfStale rotates the pair unless another call already replaced the
// refresh token that was seen to be paired with an expired access token.
func (s *GRPCClient) refreshIfStale(ctx context.Context, seen string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	userID, _, current := s.tokens()
	if current == "" {
		return ErrNotLoggedIn
	}
	if current != seen {
		return nil
	}

	resp, err := s.client.RefreshToken(ctx, &authrpc.RefreshTokenRequest{UserID: userID, RefreshToken: current})
	if err != nil {
		return err
	}
	return s.storePair(resp)
}

// NewGRPCClient creates a client for endpointURL. Extra dial options are
// appended after the defaults.
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = authrpc.NewAuthServiceClient(conn)
	return c, nil
}

// storePair keeps a token pair, taking the user id from the access token's
// subject. The signature is not checked here; the server does that.
func (s *GRPCClient) storePair(resp *authrpc.TokenResponse) error {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, &claims); err != nil {
		return fmt.Errorf("decode access token: %w", err)
	}
	if claims.Subject == "" {
		return errors.New("decode access token: missing subject")
	}

	s.setTokens(claims.Subject, resp.AccessToken, resp.RefreshToken)
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, userName string, password []byte) (*authrpc.UserResponse, error) {
	resp, err := s.client.Register(ctx, &authrpc.RegisterRequest{Username: userName, Password: string(password)})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Login(ctx context.Context, userName string, password []byte) error {
	resp, err := s.client.Login(ctx, &authrpc.LoginRequest{Username: userName, Password: string(password)})
	if err != nil {
		return s.mapError(err)
	}
	return s.storePair(resp)
}

// Refresh rotates the token pair explicitly.
func (s *GRPCClient) Refresh(ctx context.Context) error {
	_, _, refresh := s.tokens()
	if refresh == "" {
		return ErrNotLoggedIn
	}
	return s.mapError(s.refreshIfStale(ctx, refresh))
}

func (s *GRPCClient) WhoAmI(ctx context.Context) (*authrpc.UserResponse, error) {
	if !s.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	resp, err := s.client.WhoAmI(ctx, &authrpc.WhoAmIRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &authrpc.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

// Logout forgets the token pair. Nothing is sent to the server.
func (s *GRPCClient) Logout() {
	s.setTokens("", "", "")
}

func (s *GRPCClient) IsLoggedIn() bool {
	_, access, _ := s.tokens()
	return access != ""
}

func (s *GRPCClient) UserID() string {
	id, _, _ := s.tokens()
	return id
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotLoggedIn) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
