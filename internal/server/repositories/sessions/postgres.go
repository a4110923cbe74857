package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `SELECT refresh_token FROM sessions WHERE user_id = $1`, userID).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) Set(ctx context.Context, userID, refreshToken string) error {
	query :=
		`INSERT INTO sessions (user_id, refresh_token, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET refresh_token = EXCLUDED.refresh_token, updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, userID, refreshToken); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
