package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/MedLinkBack/internal/models"
)

const notificationColumns = `
	id, user_id, actor_id, message, type, related_entity_type,
	related_entity_id, read, created_at
`

type NotificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var notification models.Notification
	err := row.Scan(
		&notification.ID,
		&notification.UserID,
		&notification.ActorID,
		&notification.Message,
		&notification.Type,
		&notification.RelatedEntityType,
		&notification.RelatedEntityID,
		&notification.Read,
		&notification.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *notification)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *NotificationRepository) Create(ctx context.Context, input models.NewNotification) (*models.Notification, error) {
	return scanNotification(r.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, actor_id, message, type, related_entity_type, related_entity_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+notificationColumns,
		input.UserID,
		input.ActorID,
		input.Message,
		input.Type,
		input.RelatedEntityType,
		input.RelatedEntityID,
	))
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	return requireAffected(r.db.Exec(ctx, `
		UPDATE notifications
		SET read = TRUE
		WHERE id = $1 AND user_id = $2
	`, id, userID))
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET read = TRUE
		WHERE user_id = $1 AND read = FALSE
	`, userID)
	return err
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) error {
	return requireAffected(r.db.Exec(ctx, `
		DELETE FROM notifications
		WHERE id = $1 AND user_id = $2
	`, id, userID))
}

func (r *NotificationRepository) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	return err
}
