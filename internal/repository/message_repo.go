package repository

import (
	"context"

	"github.com/saeid-a/MedLinkBack/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(
	ctx context.Context,
	conversationID string,
	senderID string,
	content string,
) (*models.Message, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, content, read)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, conversation_id, sender_id, content, read, created_at
	`

	var message models.Message
	err := r.db.QueryRow(ctx, query, conversationID, senderID, content).Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.Content,
		&message.Read,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// ListByConversation returns the conversation's messages oldest first.
func (r *MessageRepository) ListByConversation(
	ctx context.Context,
	conversationID string,
) ([]models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, read, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.SenderID,
			&message.Content,
			&message.Read,
			&message.CreatedAt,
		); err != nil {
			return nil, err
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *MessageRepository) MarkConversationRead(
	ctx context.Context,
	conversationID string,
	readerID string,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET read = TRUE
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND read = FALSE
	`, conversationID, readerID)
	return err
}

// CountUnread counts unread messages addressed to userID across all of
// their conversations.
func (r *MessageRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.participant1_id = $1 OR c.participant2_id = $1)
		  AND m.sender_id <> $1
		  AND m.read = FALSE
	`, userID).Scan(&total)
	return total, err
}
