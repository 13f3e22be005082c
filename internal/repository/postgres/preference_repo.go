// internal/repository/postgres/preference_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type PreferenceRepository struct {
	db *DB
}

func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

const preferenceColumns = `id, user_id, type_id, email_enabled, push_enabled, in_app_enabled, updated_at`

// ListByUser returns the stored preferences of a user
func (r *PreferenceRepository) ListByUser(ctx context.Context, userID string) ([]notification.NotificationPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM notification_preferences WHERE user_id = $1 ORDER BY type_id`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	prefs := []notification.NotificationPreference{}
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, *p)
	}

	return prefs, rows.Err()
}

// Find returns the preference for (user, type), or the defaults when none is stored
func (r *PreferenceRepository) Find(ctx context.Context, userID string, typeID int64) (*notification.NotificationPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM notification_preferences WHERE user_id = $1 AND type_id = $2`

	p, err := scanPreference(r.db.Pool().QueryRow(ctx, query, userID, typeID))
	if errors.Is(err, pgx.ErrNoRows) {
		def := notification.DefaultPreference(userID, typeID)
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find preference: %w", err)
	}

	return p, nil
}

// Upsert inserts or patches the (user, type) preference. Toggles absent
// from upd keep their stored value, or default to true on insert.
func (r *PreferenceRepository) Upsert(ctx context.Context, userID string, typeID int64, upd notification.PreferenceUpdate) (*notification.NotificationPreference, error) {
	query := `
		INSERT INTO notification_preferences AS p (user_id, type_id, email_enabled, push_enabled, in_app_enabled)
		VALUES ($1, $2, COALESCE($3, true), COALESCE($4, true), COALESCE($5, true))
		ON CONFLICT (user_id, type_id) DO UPDATE SET
			email_enabled  = COALESCE($3, p.email_enabled),
			push_enabled   = COALESCE($4, p.push_enabled),
			in_app_enabled = COALESCE($5, p.in_app_enabled),
			updated_at     = NOW()
		RETURNING ` + preferenceColumns

	p, err := scanPreference(r.db.Pool().QueryRow(
		ctx, query, userID, typeID, upd.EmailEnabled, upd.PushEnabled, upd.InAppEnabled,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, fmt.Errorf("notification type %d: %w", typeID, xerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to upsert preference: %w", err)
	}

	return p, nil
}

func scanPreference(row pgx.Row) (*notification.NotificationPreference, error) {
	var p notification.NotificationPreference
	err := row.Scan(&p.ID, &p.UserID, &p.TypeID, &p.EmailEnabled, &p.PushEnabled, &p.InAppEnabled, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
