package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "rideauth.v1.AuthService"

const (
	MethodRequestVerificationCode = "RequestVerificationCode"
	MethodRegister                = "Register"
	MethodLogin                   = "Login"
	MethodChangePassword          = "ChangePassword"
	MethodRefreshToken            = "RefreshToken"
	MethodCurrentUser             = "CurrentUser"
	MethodChangePhone             = "ChangePhone"
	MethodLogout                  = "Logout"
)

// FullMethod is the method path as seen by interceptors.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type AuthServiceServer interface {
	RequestVerificationCode(context.Context, *RequestVerificationCodeRequest) (*RequestVerificationCodeResponse, error)
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*AuthResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*AuthResponse, error)
	CurrentUser(context.Context, *CurrentUserRequest) (*UserResponse, error)
	ChangePhone(context.Context, *ChangePhoneRequest) (*UserResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
}

var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRequestVerificationCode, AuthServiceServer.RequestVerificationCode),
		unary(MethodRegister, AuthServiceServer.Register),
		unary(MethodLogin, AuthServiceServer.Login),
		unary(MethodChangePassword, AuthServiceServer.ChangePassword),
		unary(MethodRefreshToken, AuthServiceServer.RefreshToken),
		unary(MethodCurrentUser, AuthServiceServer.CurrentUser),
		unary(MethodChangePhone, AuthServiceServer.ChangePhone),
		unary(MethodLogout, AuthServiceServer.Logout),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rideauth/v1/auth",
}

func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthServiceDesc, srv)
}

// unary builds the method descriptor for one call, decoding into Req and
// running the server's interceptor chain.
func unary[Req, Resp any](method string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
