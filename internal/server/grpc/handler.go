package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tokenkeeper/internal/authrpc"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Register(ctx context.Context, req *authrpc.RegisterRequest) (*authrpc.UserResponse, error) {
	user, err := s.auth.Register(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.mapError(ctx, "register", err)
	}

	s.logger.Info(ctx, "Registered", "user_id", user.ID, "role", user.Role.String())
	return toUserResponse(user), nil
}

func (s *GRPCServer) Login(ctx context.Context, req *authrpc.LoginRequest) (*authrpc.TokenResponse, error) {
	pair, err := s.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.mapError(ctx, "login", err)
	}
	return &authrpc.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *authrpc.RefreshTokenRequest) (*authrpc.TokenResponse, error) {
	pair, err := s.auth.Refresh(ctx, req.UserID, req.RefreshToken)
	if err != nil {
		return nil, s.mapError(ctx, "refresh", err)
	}
	return &authrpc.TokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *authrpc.PingRequest) (*authrpc.PingResponse, error) {
	return &authrpc.PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) WhoAmI(ctx context.Context, req *authrpc.WhoAmIRequest) (*authrpc.UserResponse, error) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	user, err := s.auth.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, s.mapError(ctx, "whoami", err)
	}
	return toUserResponse(user), nil
}

func toUserResponse(u *models.User) *authrpc.UserResponse {
	return &authrpc.UserResponse{ID: u.ID, Username: u.UserName, Role: u.Role.String()}
}

// mapError converts service errors to gRPC statuses. Unexpected errors are
// logged and reported without detail.
func (s *GRPCServer) mapError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrDuplicateUsername):
		return status.Error(codes.AlreadyExists, "username already exists")
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, common.ErrInvalidOrExpiredRefreshToken):
		return status.Error(codes.Unauthenticated, "invalid or expired refresh token")
	case errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	case errors.Is(err, common.ErrMalformedToken):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrStorageUnavailable):
		s.logger.Error(ctx, "storage unavailable", "op", op, "error", err.Error())
		return status.Error(codes.Unavailable, "service unavailable")
	default:
		s.logger.Error(ctx, "internal error", "op", op, "error", err.Error())
		return status.Error(codes.Internal, "internal error")
	}
}
