// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Config is populated from PG_* environment variables. Connect opens a
// *pgxpool.Pool with retries, Migrate runs goose migrations from an fs.FS
// (usually an embed.FS owned by the storage package) and Healthcheck
// returns a probe for the readiness endpoint:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, billing.Migrations, billing.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify driver errors without
// leaking pgx types into callers.
package pg
