// internal/repository/postgres/notification_type_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type NotificationTypeRepository struct {
	db *DB
}

func NewNotificationTypeRepository(db *DB) *NotificationTypeRepository {
	return &NotificationTypeRepository{db: db}
}

const typeColumns = `id, name, display_name, description, icon, color, default_priority, channels, is_active, created_at`

// ListActive returns the active notification types ordered by name
func (r *NotificationTypeRepository) ListActive(ctx context.Context) ([]notification.NotificationType, error) {
	query := `SELECT ` + typeColumns + ` FROM notification_types WHERE is_active ORDER BY name`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification types: %w", err)
	}
	defer rows.Close()

	types := []notification.NotificationType{}
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification type: %w", err)
		}
		types = append(types, *t)
	}

	return types, rows.Err()
}

// FindByName looks up a type regardless of its active flag
func (r *NotificationTypeRepository) FindByName(ctx context.Context, name string) (*notification.NotificationType, error) {
	query := `SELECT ` + typeColumns + ` FROM notification_types WHERE name = $1`

	t, err := scanType(r.db.Pool().QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification type %s: %w", name, xerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notification type: %w", err)
	}

	return t, nil
}

func scanType(row pgx.Row) (*notification.NotificationType, error) {
	var t notification.NotificationType

	err := row.Scan(
		&t.ID, &t.Name, &t.DisplayName, &t.Description, &t.Icon, &t.Color,
		&t.DefaultPriority, &t.Channels, &t.IsActive, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
