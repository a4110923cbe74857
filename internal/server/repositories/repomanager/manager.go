package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/rideauth/internal/dbx"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/verifications"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// service code runs against *sql.DB or inside a *sql.Tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Verifications(db dbx.DBTX) verifications.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
