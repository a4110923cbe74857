// Package verifications stores the live one-time-code record of each phone.
package verifications

import (
	"context"

	"github.com/dmitrijs2005/rideauth/internal/server/models"
)

// Repository keeps at most one record per phone. Get returns
// common.ErrorNotFound when the phone has no record.
type Repository interface {
	Get(ctx context.Context, phone string) (*models.Verification, error)
	Update(ctx context.Context, v *models.Verification) error
	Delete(ctx context.Context, phone string) error
}
