package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/logging"
	"github.com/dmitrijs2005/rideauth/internal/rpc"
	"github.com/dmitrijs2005/rideauth/internal/server/models"
	"github.com/dmitrijs2005/rideauth/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type authHandler struct {
	auth   AuthService
	logger logging.Logger
}

func toUser(u *models.User) rpc.User {
	return rpc.User{ID: u.ID, Username: u.Username, Phone: u.Phone, CreatedAt: u.CreatedAt}
}

func toAuthResponse(r *services.AuthResult) *rpc.AuthResponse {
	return &rpc.AuthResponse{
		User:         toUser(r.User),
		AccessToken:  r.Tokens.AccessToken,
		RefreshToken: r.Tokens.RefreshToken,
	}
}

func (h *authHandler) RequestVerificationCode(ctx context.Context, req *rpc.RequestVerificationCodeRequest) (*rpc.RequestVerificationCodeResponse, error) {
	token, err := h.auth.RequestVerificationCode(ctx, req.Phone)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.RequestVerificationCodeResponse{VerificationToken: token}, nil
}

func (h *authHandler) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.AuthResponse, error) {
	result, err := h.auth.Register(ctx, services.RegisterRequest{
		Phone:             req.Phone,
		Username:          req.Username,
		Password:          req.Password,
		VerificationToken: req.VerificationToken,
		VerificationCode:  req.VerificationCode,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toAuthResponse(result), nil
}

// Login answers an unknown username exactly like a wrong password.
func (h *authHandler) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.AuthResponse, error) {
	result, err := h.auth.Login(ctx, services.LoginRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			err = common.ErrWrongCredentials
		}
		return nil, toStatus(err)
	}
	return toAuthResponse(result), nil
}

func (h *authHandler) ChangePassword(ctx context.Context, req *rpc.ChangePasswordRequest) (*rpc.AuthResponse, error) {
	result, err := h.auth.ChangePassword(ctx, services.ChangePasswordRequest{
		Phone:             req.Phone,
		Password:          req.Password,
		VerificationToken: req.VerificationToken,
		VerificationCode:  req.VerificationCode,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toAuthResponse(result), nil
}

func (h *authHandler) RefreshToken(ctx context.Context, req *rpc.RefreshTokenRequest) (*rpc.AuthResponse, error) {
	result, err := h.auth.Refresh(ctx, services.RefreshRequest{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken})
	if err != nil {
		return nil, toStatus(err)
	}
	return toAuthResponse(result), nil
}

func (h *authHandler) CurrentUser(ctx context.Context, _ *rpc.CurrentUserRequest) (*rpc.UserResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	user, err := h.auth.CurrentUser(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.UserResponse{User: toUser(user)}, nil
}

func (h *authHandler) ChangePhone(ctx context.Context, req *rpc.ChangePhoneRequest) (*rpc.UserResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	user, err := h.auth.ChangePhone(ctx, services.ChangePhoneRequest{
		UserID:            userID,
		Phone:             req.Phone,
		VerificationToken: req.VerificationToken,
		VerificationCode:  req.VerificationCode,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.UserResponse{User: toUser(user)}, nil
}

func (h *authHandler) Logout(ctx context.Context, _ *rpc.LogoutRequest) (*rpc.LogoutResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if err := h.auth.Logout(ctx, userID); err != nil {
		return nil, toStatus(err)
	}
	h.logger.Info(ctx, "logged out", "user_id", userID)
	return &rpc.LogoutResponse{}, nil
}
