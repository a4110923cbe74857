package verifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/dbx"
	"github.com/dmitrijs2005/rideauth/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, phone string) (*models.Verification, error) {
	query :=
		`SELECT phone, secret, token, code, updated_at
		 FROM verifications
		 WHERE phone = $1`

	v := &models.Verification{}
	err := r.db.QueryRowContext(ctx, query, phone).Scan(&v.Phone, &v.Secret, &v.Token, &v.Code, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) Update(ctx context.Context, v *models.Verification) error {
	query :=
		`INSERT INTO verifications (phone, secret, token, code, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (phone) DO UPDATE
		 SET secret = EXCLUDED.secret, token = EXCLUDED.token, code = EXCLUDED.code, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, v.Phone, v.Secret, v.Token, v.Code, v.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, phone string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM verifications WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
