// Package pg opens the PostgreSQL pool used by pgstore, applies embedded
// goose migrations and classifies driver errors.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//	    return err
//	}
//
// Connect retries RetryAttempts times, waiting RetryInterval multiplied by
// the attempt number between tries. Healthcheck returns a probe suitable for
// the readiness endpoint.
//
// IsDuplicateKeyError, IsNotFoundError and IsSerializationError unwrap
// *pgconn.PgError so callers can map driver failures to their own sentinels.
package pg
