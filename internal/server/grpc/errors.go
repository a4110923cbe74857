package grpc

import (
	"errors"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var outcomeCodes = []struct {
	err  error
	code codes.Code
}{
	{common.ErrInvalidRequest, codes.InvalidArgument},
	{common.ErrInvalidPhone, codes.InvalidArgument},
	{common.ErrDeliveryFailed, codes.Unavailable},
	{common.ErrNoVerificationInProgress, codes.InvalidArgument},
	{common.ErrWrongCode, codes.InvalidArgument},
	{common.ErrPhoneTaken, codes.AlreadyExists},
	{common.ErrUsernameTaken, codes.AlreadyExists},
	{common.ErrUserNotFound, codes.NotFound},
	{common.ErrWrongCredentials, codes.Unauthenticated},
	{common.ErrMalformedTokenPair, codes.InvalidArgument},
	{common.ErrRefreshRevoked, codes.Unauthenticated},
	{common.ErrUserGone, codes.NotFound},
	{common.ErrTokenExpired, codes.Unauthenticated},
	{common.ErrInvalidToken, codes.Unauthenticated},
}

// toStatus converts a service error into a gRPC status carrying the
// outcome's own message, never the wrapped detail. Unknown errors become a
// bare Internal.
func toStatus(err error) error {
	for _, o := range outcomeCodes {
		if errors.Is(err, o.err) {
			return status.Error(o.code, o.err.Error())
		}
	}
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}
