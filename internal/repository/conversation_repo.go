package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/MedLinkBack/internal/models"
)

const conversationColumns = `
	id, participant1_id, participant2_id, last_message_at, created_at,
	deleted_by_participant1, deleted_by_participant2
`

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conversation models.Conversation
	err := row.Scan(
		&conversation.ID,
		&conversation.Participant1ID,
		&conversation.Participant2ID,
		&conversation.LastMessageAt,
		&conversation.CreatedAt,
		&conversation.DeletedByParticipant1,
		&conversation.DeletedByParticipant2,
	)
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListForParticipant returns the conversations participantID has not
// soft-deleted, most recent activity first.
func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID string,
) ([]models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE (participant1_id = $1 AND NOT deleted_by_participant1)
		   OR (participant2_id = $1 AND NOT deleted_by_participant2)
		ORDER BY last_message_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conversation)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return conversations, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID string) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1
	`
	return scanConversation(r.db.QueryRow(ctx, query, conversationID))
}

// FindBetween looks the pair up in either participant order.
func (r *ConversationRepository) FindBetween(ctx context.Context, a, b string) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE (participant1_id = $1 AND participant2_id = $2)
		   OR (participant1_id = $2 AND participant2_id = $1)
		LIMIT 1
	`
	return scanConversation(r.db.QueryRow(ctx, query, a, b))
}

// Create inserts the pair, or returns the row a concurrent writer
// created first.
func (r *ConversationRepository) Create(
	ctx context.Context,
	participant1ID string,
	participant2ID string,
	at time.Time,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (participant1_id, participant2_id, last_message_at)
		VALUES ($1, $2, $3)
		ON CONFLICT ((LEAST(participant1_id, participant2_id)), (GREATEST(participant1_id, participant2_id)))
		DO NOTHING
		RETURNING ` + conversationColumns

	conversation, err := scanConversation(r.db.QueryRow(ctx, query, participant1ID, participant2ID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.FindBetween(ctx, participant1ID, participant2ID)
	}
	return conversation, err
}

// Touch advances last_message_at and makes the conversation visible to
// both participants again.
func (r *ConversationRepository) Touch(ctx context.Context, conversationID string, at time.Time) error {
	return requireAffected(r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(last_message_at, $2),
		    deleted_by_participant1 = FALSE,
		    deleted_by_participant2 = FALSE
		WHERE id = $1
	`, conversationID, at))
}

// SetDeleted sets participantID's soft-delete flag and returns the row
// after the update.
func (r *ConversationRepository) SetDeleted(
	ctx context.Context,
	conversationID string,
	participantID string,
	deleted bool,
) (*models.Conversation, error) {
	query := `
		UPDATE conversations
		SET deleted_by_participant1 = CASE WHEN participant1_id = $2 THEN $3 ELSE deleted_by_participant1 END,
		    deleted_by_participant2 = CASE WHEN participant2_id = $2 THEN $3 ELSE deleted_by_participant2 END
		WHERE id = $1 AND (participant1_id = $2 OR participant2_id = $2)
		RETURNING ` + conversationColumns
	return scanConversation(r.db.QueryRow(ctx, query, conversationID, participantID, deleted))
}

// Delete removes the conversation; its messages cascade.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
	return err
}
