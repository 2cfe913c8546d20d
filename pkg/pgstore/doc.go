// Package pgstore is the PostgreSQL implementation of
// notifications.Repository.
//
// Notifications live in one table keyed by id; preferences are stored as a
// JSONB document per user. The schema ships embedded in Migrations and is
// applied with Migrate:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
//	    return err
//	}
//	repo, err := pgstore.New(pool)
//
// Status changes go through UpdateStatus, which locks the row and applies
// the same transition rules as the in-memory repository. A unique violation
// on insert surfaces as notifications.ErrDuplicateID.
package pgstore
