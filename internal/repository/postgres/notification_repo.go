// internal/repository/postgres/notification_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

// ErrUnknownType is returned when a notification references a missing or inactive type
var ErrUnknownType = fmt.Errorf("unknown or inactive notification type: %w", xerrors.ErrInvalidInput)

const notificationColumns = `
	n.id, n.user_id, t.name, n.title, n.message, n.data, n.priority,
	n.is_read, n.created_at, n.read_at, n.expires_at, t.icon, t.color`

type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification, resolving its type by name. ID and
// CreatedAt are filled in on success.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	query := `
		WITH t AS (
			SELECT id, icon, color FROM notification_types WHERE name = $3 AND is_active
		), ins AS (
			INSERT INTO notifications (id, user_id, type_id, title, message, data, priority, expires_at)
			SELECT $1, $2, t.id, $4, $5, $6, $7, $8 FROM t
			RETURNING created_at
		)
		SELECT ins.created_at, t.icon, t.color FROM ins, t
	`

	dataJSON, err := marshalData(n.Data)
	if err != nil {
		return err
	}

	if n.ID == "" {
		n.ID = ulid.Make().String()
	}

	err = r.db.Pool().QueryRow(
		ctx, query,
		n.ID, n.UserID, n.TypeName, n.Title, n.Message, dataJSON, n.Priority, n.ExpiresAt,
	).Scan(&n.CreatedAt, &n.Icon, &n.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUnknownType
	}
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// CreateBulk inserts one copy of tmpl per user id and returns the new ids
func (r *NotificationRepository) CreateBulk(ctx context.Context, userIDs []string, tmpl *notification.Notification) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	dataJSON, err := marshalData(tmpl.Data)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(userIDs))
	for i := range userIDs {
		ids[i] = ulid.Make().String()
	}

	query := `
		INSERT INTO notifications (id, user_id, type_id, title, message, data, priority, expires_at)
		SELECT u.id, u.user_id, t.id, $4, $5, $6, $7, $8
		FROM unnest($1::text[], $2::text[]) AS u(id, user_id)
		CROSS JOIN notification_types t
		WHERE t.name = $3 AND t.is_active
	`

	tag, err := r.db.Pool().Exec(
		ctx, query,
		pq.Array(ids), pq.Array(userIDs), tmpl.TypeName, tmpl.Title, tmpl.Message, dataJSON, tmpl.Priority, tmpl.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk notifications: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUnknownType
	}

	return ids, nil
}

// FindByID retrieves a notification by ID
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications n
		JOIN notification_types t ON t.id = n.type_id
		WHERE n.id = $1
	`

	n, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, xerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}

	return n, nil
}

// ListRecent returns a user's notifications newest-first, skipping expired ones
func (r *NotificationRepository) ListRecent(ctx context.Context, userID string, limit, offset int) ([]notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications n
		JOIN notification_types t ON t.id = n.type_id
		WHERE n.user_id = $1 AND (n.expires_at IS NULL OR n.expires_at > NOW())
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []notification.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}

	return notifications, rows.Err()
}

// UnreadCount gets the count of unread, unexpired notifications
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND is_read = false AND (expires_at IS NULL OR expires_at > NOW())
	`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}

	return count, nil
}

// MarkAsRead marks a notification as read. Marking an already-read
// notification succeeds without touching the row.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, userID string) error {
	query := `
		UPDATE notifications
		SET is_read = true, read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_read = false
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`,
		id, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check notification: %w", err)
	}
	if !exists {
		return fmt.Errorf("notification %s: %w", id, xerrors.ErrNotFound)
	}

	return nil
}

// MarkAllAsRead marks every unread notification of the user and returns how many changed
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = true, read_at = NOW()
		WHERE user_id = $1 AND is_read = false
	`

	tag, err := r.db.Pool().Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all as read: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ArchiveOlderThan moves read notifications older than daysOld, and expired
// ones, into notifications_archive
func (r *NotificationRepository) ArchiveOlderThan(ctx context.Context, daysOld int) (int64, error) {
	query := `
		WITH moved AS (
			DELETE FROM notifications
			WHERE (is_read AND created_at < NOW() - make_interval(days => $1::int))
			   OR (expires_at IS NOT NULL AND expires_at < NOW())
			RETURNING id, user_id, type_id, title, message, data, priority,
			          is_read, read_at, created_at, expires_at
		)
		INSERT INTO notifications_archive (id, user_id, type_id, title, message, data, priority,
		                                   is_read, read_at, created_at, expires_at)
		SELECT * FROM moved
	`

	var archived int64
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, daysOld)
		if err != nil {
			return fmt.Errorf("failed to archive notifications: %w", err)
		}
		archived = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return archived, nil
}

func marshalData(data map[string]interface{}) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	return b, nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	var dataJSON []byte

	err := row.Scan(
		&n.ID, &n.UserID, &n.TypeName, &n.Title, &n.Message, &dataJSON, &n.Priority,
		&n.IsRead, &n.CreatedAt, &n.ReadAt, &n.ExpiresAt, &n.Icon, &n.Color,
	)
	if err != nil {
		return nil, err
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}

	return &n, nil
}
