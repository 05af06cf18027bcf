package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-registration/internal/models"
)

// partial unique indexes carry the one-live-row-per-user rules; both
// Postgres and SQLite accept this syntax.
var schemaIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_registrations_event_user_confirmed
		ON registrations (event_id, user_id) WHERE status = 'confirmed'`,
	`CREATE INDEX IF NOT EXISTS ix_registrations_user ON registrations (user_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_waitlist_event_user_active
		ON waitlist_entries (event_id, user_id) WHERE status IN ('waiting', 'offered')`,
	`CREATE INDEX IF NOT EXISTS ix_waitlist_event_status_joined
		ON waitlist_entries (event_id, status, joined_at, id)`,
}

// CreateSchema builds the tables from the bun models. Production Postgres uses
// the SQL migrations instead; this is for SQLite-backed tests and local runs.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.Registration)(nil),
		(*models.WaitlistEntry)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
	}
	for _, stmt := range schemaIndexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
