// Package grpc exposes the auth service over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/rideauth/internal/logging"
	"github.com/dmitrijs2005/rideauth/internal/rpc"
	"github.com/dmitrijs2005/rideauth/internal/server/auth"
	"github.com/dmitrijs2005/rideauth/internal/server/models"
	"github.com/dmitrijs2005/rideauth/internal/server/services"
	"google.golang.org/grpc"
)

// AuthService is the orchestrator the handlers delegate to.
type AuthService interface {
	RequestVerificationCode(ctx context.Context, phone string) (string, error)
	Register(ctx context.Context, req services.RegisterRequest) (*services.AuthResult, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.AuthResult, error)
	ChangePassword(ctx context.Context, req services.ChangePasswordRequest) (*services.AuthResult, error)
	Refresh(ctx context.Context, req services.RefreshRequest) (*services.AuthResult, error)
	CurrentUser(ctx context.Context, userID string) (*models.User, error)
	ChangePhone(ctx context.Context, req services.ChangePhoneRequest) (*models.User, error)
	Logout(ctx context.Context, userID string) error
}

// AccessVerifier checks access tokens for the guarded methods.
type AccessVerifier interface {
	VerifyAccess(access string) (*auth.Claims, error)
}

type GRPCServer struct {
	address string
	auth    AuthService
	tokens  AccessVerifier
	logger  logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, svc AuthService, tokens AccessVerifier) *GRPCServer {
	return &GRPCServer{
		address: address,
		auth:    svc,
		tokens:  tokens,
		logger:  l.With("module", "grpc_server"),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis and stops gracefully when ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	rpc.RegisterAuthServiceServer(srv, &authHandler{auth: s.auth, logger: s.logger})

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	return srv.Serve(lis)
}
