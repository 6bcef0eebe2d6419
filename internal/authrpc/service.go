// Package authrpc defines the tokenkeeper.AuthService gRPC contract shared by
// the server and the CLI client: message types, a JSON codec, the service
// descriptor and a client stub.
package authrpc

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"google.golang.org/grpc"
)

const ServiceName = "tokenkeeper.AuthService"

const (
	RegisterMethod     = "/" + ServiceName + "/Register"
	LoginMethod        = "/" + ServiceName + "/Login"
	RefreshTokenMethod = "/" + ServiceName + "/RefreshToken"
	PingMethod         = "/" + ServiceName + "/Ping"
	WhoAmIMethod       = "/" + ServiceName + "/WhoAmI"
)

// AccessTokenMetadataKey carries the access token on authenticated calls.
const AccessTokenMetadataKey = common.AccessTokenHeaderName

// AuthServiceServer is implemented by the server transport.
type AuthServiceServer interface {
	Register(context.Context, *RegisterRequest) (*UserResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*TokenResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	WhoAmI(context.Context, *WhoAmIRequest) (*UserResponse, error)
}

func unary[Req, Resp any](fullMethod string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes tokenkeeper.AuthService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unary(RegisterMethod, AuthServiceServer.Register)},
		{MethodName: "Login", Handler: unary(LoginMethod, AuthServiceServer.Login)},
		{MethodName: "RefreshToken", Handler: unary(RefreshTokenMethod, AuthServiceServer.RefreshToken)},
		{MethodName: "Ping", Handler: unary(PingMethod, AuthServiceServer.Ping)},
		{MethodName: "WhoAmI", Handler: unary(WhoAmIMethod, AuthServiceServer.WhoAmI)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tokenkeeper/auth.json",
}

// RegisterAuthServiceServer registers srv on s.
func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// AuthServiceClient calls tokenkeeper.AuthService using the JSON codec.
type AuthServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthServiceClient(cc grpc.ClientConnInterface) *AuthServiceClient {
	return &AuthServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AuthServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, RegisterMethod, in, opts)
}

func (c *AuthServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, LoginMethod, in, opts)
}

func (c *AuthServiceClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, RefreshTokenMethod, in, opts)
}

func (c *AuthServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, PingMethod, in, opts)
}

func (c *AuthServiceClient) WhoAmI(ctx context.Context, in *WhoAmIRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, WhoAmIMethod, in, opts)
}
