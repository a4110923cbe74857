// Package sessions stores the one refresh token each user currently holds.
package sessions

import "context"

// Repository keeps at most one refresh token per user. Set replaces any
// previous token. Get returns common.ErrorNotFound when the user has no
// session.
type Repository interface {
	Get(ctx context.Context, userID string) (string, error)
	Set(ctx context.Context, userID, refreshToken string) error
	Delete(ctx context.Context, userID string) error
}
