package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/rpc"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// guarded lists the methods that need a valid access token.
var guarded = map[string]bool{
	rpc.FullMethod(rpc.MethodCurrentUser): true,
	rpc.FullMethod(rpc.MethodChangePhone): true,
	rpc.FullMethod(rpc.MethodLogout):      true,
}

func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func firstValue(ctx context.Context, key string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// loggingInterceptor tags each call with a request id, echoed back in the
// response header, and logs its outcome and duration.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	requestID := firstValue(ctx, common.RequestIDHeaderName)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(common.RequestIDHeaderName, requestID))

	start := time.Now()
	resp, err := handler(ctx, req)

	log := s.logger.With("request_id", requestID, "method", info.FullMethod,
		"code", status.Code(err).String(), "duration", time.Since(start))
	if status.Code(err) == codes.Internal {
		log.Error(ctx, "request failed")
	} else {
		log.Info(ctx, "request served")
	}
	return resp, err
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !guarded[info.FullMethod] {
		return handler(ctx, req)
	}

	accessToken := firstValue(ctx, common.AccessTokenHeaderName)
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}

	return handler(context.WithValue(ctx, userIDKey, claims.UserID), req)
}
