// Package users is the user persistence the auth flows depend on.
package users

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/server/models"
)

// Unique-constraint violations on Create and UpdatePhone. Both match
// common.ErrorAlreadyExists.
var (
	ErrUsernameConflict = fmt.Errorf("username: %w", common.ErrorAlreadyExists)
	ErrPhoneConflict    = fmt.Errorf("phone: %w", common.ErrorAlreadyExists)
)

// Repository looks up and mutates users. Lookups return common.ErrorNotFound
// when no row matches.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	Exists(ctx context.Context, username string) (bool, error)
	UpdateCredentials(ctx context.Context, userID string, salt, passwordHash []byte) (*models.User, error)
	UpdatePhone(ctx context.Context, userID, phone string) (*models.User, error)
}
