// Package repomanager wires the repository constructors together and runs
// the embedded goose migrations. Users always live in PostgreSQL; the
// verification and session stores move to redis when a client is given.
package repomanager

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/dbx"
	"github.com/dmitrijs2005/rideauth/internal/server/migrations"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/verifications"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
)

type PostgresRepositoryManager struct {
	redis           redis.UniversalClient
	verificationTTL time.Duration
	sessionTTL      time.Duration
}

type Option func(*PostgresRepositoryManager)

// WithRedis keeps verification records for verificationTTL and sessions
// for sessionTTL in redis instead of PostgreSQL.
func WithRedis(client redis.UniversalClient, verificationTTL, sessionTTL time.Duration) Option {
	return func(m *PostgresRepositoryManager) {
		m.redis = client
		m.verificationTTL = verificationTTL
		m.sessionTTL = sessionTTL
	}
}

func NewPostgresRepositoryManager(opts ...Option) *PostgresRepositoryManager {
	m := &PostgresRepositoryManager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Verifications(db dbx.DBTX) verifications.Repository {
	if m.redis != nil {
		return verifications.NewRedisRepository(m.redis, m.verificationTTL)
	}
	return verifications.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	if m.redis != nil {
		return sessions.NewRedisRepository(m.redis, m.sessionTTL)
	}
	return sessions.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
