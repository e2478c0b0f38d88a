package billing

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/billingsync/pkg/pg"
)

// Migrations holds the goose migrations for the subscriptions relation.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that goose reads from.
const MigrationsDir = "migrations"

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgStore struct {
	db DB
}

// NewPGStore returns a Store backed by PostgreSQL.
// Panics if db is nil.
func NewPGStore(db DB) Store {
	if db == nil {
		panic("billing: DB is required")
	}
	return &pgStore{db: db}
}

const selectColumns = `id, user_id, external_customer_id, external_subscription_id, status, plan,
	current_period_start, current_period_end, cancel_at, canceled_at, last_event_at, created_at, updated_at`

const upsertQuery = `
INSERT INTO subscriptions (
	id, user_id, external_customer_id, external_subscription_id, status, plan,
	current_period_start, current_period_end, cancel_at, canceled_at, last_event_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (external_subscription_id) DO UPDATE SET
	user_id              = EXCLUDED.user_id,
	external_customer_id = COALESCE(NULLIF(EXCLUDED.external_customer_id, ''), subscriptions.external_customer_id),
	status               = EXCLUDED.status,
	plan                 = EXCLUDED.plan,
	current_period_start = EXCLUDED.current_period_start,
	current_period_end   = EXCLUDED.current_period_end,
	cancel_at            = EXCLUDED.cancel_at,
	canceled_at          = EXCLUDED.canceled_at,
	last_event_at        = COALESCE(EXCLUDED.last_event_at, subscriptions.last_event_at),
	updated_at           = now()
WHERE subscriptions.last_event_at IS NULL
	OR EXCLUDED.last_event_at IS NULL
	OR subscriptions.last_event_at <= EXCLUDED.last_event_at`

const updateFromEventQuery = `
UPDATE subscriptions SET
	external_customer_id = COALESCE(NULLIF($2, ''), external_customer_id),
	status               = $3,
	plan                 = $4,
	current_period_start = $5,
	current_period_end   = $6,
	cancel_at            = $7,
	canceled_at          = $8,
	last_event_at        = COALESCE($9, last_event_at),
	updated_at           = now()
WHERE external_subscription_id = $1
	AND (last_event_at IS NULL OR $9::timestamptz IS NULL OR last_event_at <= $9::timestamptz)`

func (s *pgStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	)
	return scanRecord(row)
}

func (s *pgStore) GetByExternalID(ctx context.Context, subscriptionID string) (*Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM subscriptions WHERE external_subscription_id = $1`,
		subscriptionID,
	)
	return scanRecord(row)
}

func (s *pgStore) Upsert(ctx context.Context, rec *Record) (bool, error) {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	tag, err := s.db.Exec(ctx, upsertQuery,
		id, rec.UserID, rec.ExternalCustomerID, rec.ExternalSubscriptionID, string(rec.Status), rec.Plan,
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd, rec.CancelAt, rec.CanceledAt, rec.LastEventAt,
	)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgStore) UpdateFromEvent(ctx context.Context, rec *Record) (bool, error) {
	tag, err := s.db.Exec(ctx, updateFromEventQuery,
		rec.ExternalSubscriptionID, rec.ExternalCustomerID, string(rec.Status), rec.Plan,
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd, rec.CancelAt, rec.CanceledAt, rec.LastEventAt,
	)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, s.ensureExists(ctx, rec.ExternalSubscriptionID)
}

func (s *pgStore) SetCancellation(ctx context.Context, subscriptionID string, cancelAt, canceledAt, periodEnd time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE subscriptions SET cancel_at = $2, canceled_at = $3, current_period_end = $4, updated_at = now()
		WHERE external_subscription_id = $1`,
		subscriptionID, cancelAt, canceledAt, periodEnd,
	)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *pgStore) ClearCancellation(ctx context.Context, subscriptionID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE subscriptions SET cancel_at = NULL, canceled_at = NULL, updated_at = now()
		WHERE external_subscription_id = $1`,
		subscriptionID,
	)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *pgStore) MarkCanceled(ctx context.Context, subscriptionID string, canceledAt time.Time, cancelAt *time.Time, eventAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE subscriptions SET status = $2, canceled_at = $3, cancel_at = $4, last_event_at = $5, updated_at = now()
		WHERE external_subscription_id = $1 AND (last_event_at IS NULL OR last_event_at <= $5)`,
		subscriptionID, string(StatusCanceled), canceledAt, cancelAt, eventAt,
	)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, s.ensureExists(ctx, subscriptionID)
}

// ensureExists distinguishes a stale write (nil) from a missing record.
func (s *pgStore) ensureExists(ctx context.Context, subscriptionID string) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE external_subscription_id = $1)`,
		subscriptionID,
	).Scan(&exists)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if !exists {
		return ErrSubscriptionNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec    Record
		status string
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.ExternalCustomerID, &rec.ExternalSubscriptionID, &status, &rec.Plan,
		&rec.CurrentPeriodStart, &rec.CurrentPeriodEnd, &rec.CancelAt, &rec.CanceledAt, &rec.LastEventAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	rec.Status = Status(status)
	return &rec, nil
}
