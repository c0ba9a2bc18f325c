package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
)

const (
	tableConversations = "conversations"
	tableMessages      = "messages"
)

type Conversations struct {
	s *Store
}

func (r *Conversations) ListForParticipant(ctx context.Context, participantID string) ([]models.Conversation, error) {
	if err := r.s.before(ctx, "conversations.list"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	conversations := make([]models.Conversation, 0)
	for _, conversation := range r.s.conversations {
		if conversation.HasParticipant(participantID) && !conversation.DeletedBy(participantID) {
			conversations = append(conversations, conversation)
		}
	}
	sort.Slice(conversations, func(i, j int) bool {
		if !conversations[i].LastMessageAt.Equal(conversations[j].LastMessageAt) {
			return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
		}
		return conversations[i].ID > conversations[j].ID
	})
	return conversations, nil
}

func (r *Conversations) GetByID(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if err := r.s.before(ctx, "conversations.get"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	conversation, ok := r.s.conversations[conversationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &conversation, nil
}

func (r *Conversations) FindBetween(ctx context.Context, a, b string) (*models.Conversation, error) {
	if err := r.s.before(ctx, "conversations.find"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if conversation, ok := r.s.findConversation(a, b); ok {
		return &conversation, nil
	}
	return nil, pgx.ErrNoRows
}

// Create inserts the pair, or returns the existing row for it.
func (r *Conversations) Create(ctx context.Context, participant1ID, participant2ID string, at time.Time) (*models.Conversation, error) {
	if err := r.s.before(ctx, "conversations.create"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if participant1ID == participant2ID {
		return nil, checkViolation("conversations_distinct_participants")
	}
	if err := r.s.requireProfile(participant1ID, "conversations_participant1_id_fkey"); err != nil {
		return nil, err
	}
	if err := r.s.requireProfile(participant2ID, "conversations_participant2_id_fkey"); err != nil {
		return nil, err
	}
	if existing, ok := r.s.findConversation(participant1ID, participant2ID); ok {
		return &existing, nil
	}

	conversation := models.Conversation{
		ID:             uuid.NewString(),
		Participant1ID: participant1ID,
		Participant2ID: participant2ID,
		LastMessageAt:  at.UTC(),
		CreatedAt:      r.s.tick(),
	}
	r.s.conversations[conversation.ID] = conversation
	r.s.publish(tableConversations, realtime.EventInsert, conversation, nil)
	return &conversation, nil
}

func (r *Conversations) Touch(ctx context.Context, conversationID string, at time.Time) error {
	if err := r.s.before(ctx, "conversations.touch"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.conversations[conversationID]
	if !ok {
		return pgx.ErrNoRows
	}
	updated := old
	if at.After(updated.LastMessageAt) {
		updated.LastMessageAt = at.UTC()
	}
	updated.DeletedByParticipant1 = false
	updated.DeletedByParticipant2 = false
	r.s.conversations[conversationID] = updated
	r.s.publish(tableConversations, realtime.EventUpdate, updated, old)
	return nil
}

func (r *Conversations) SetDeleted(ctx context.Context, conversationID, participantID string, deleted bool) (*models.Conversation, error) {
	if err := r.s.before(ctx, "conversations.set_deleted"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old, ok := r.s.conversations[conversationID]
	if !ok || !old.HasParticipant(participantID) {
		return nil, pgx.ErrNoRows
	}
	updated := old
	if updated.Participant1ID == participantID {
		updated.DeletedByParticipant1 = deleted
	}
	if updated.Participant2ID == participantID {
		updated.DeletedByParticipant2 = deleted
	}
	r.s.conversations[conversationID] = updated
	r.s.publish(tableConversations, realtime.EventUpdate, updated, old)
	return &updated, nil
}

// Delete removes the conversation and, first, its messages.
func (r *Conversations) Delete(ctx context.Context, conversationID string) error {
	if err := r.s.before(ctx, "conversations.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	conversation, ok := r.s.conversations[conversationID]
	if !ok {
		return nil
	}
	for _, message := range r.s.messagesOf(conversationID) {
		delete(r.s.messages, message.ID)
		r.s.publish(tableMessages, realtime.EventDelete, nil, message)
	}
	delete(r.s.conversations, conversationID)
	r.s.publish(tableConversations, realtime.EventDelete, nil, conversation)
	return nil
}

type Messages struct {
	s *Store
}

// Create inserts an unread message. A missing conversation or sender fails
// with a foreign key violation; a sender outside the conversation fails
// like a row-level security denial.
func (r *Messages) Create(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	if err := r.s.before(ctx, "messages.create"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	conversation, ok := r.s.conversations[conversationID]
	if !ok {
		return nil, foreignKeyViolation("messages_conversation_id_fkey")
	}
	if err := r.s.requireProfile(senderID, "messages_sender_id_fkey"); err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(senderID) {
		return nil, insufficientPrivilege(tableMessages)
	}

	message := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      r.s.tick(),
	}
	r.s.messages[message.ID] = message
	r.s.publish(tableMessages, realtime.EventInsert, message, nil)
	return &message, nil
}

func (r *Messages) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	if err := r.s.before(ctx, "messages.list"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.messagesOf(conversationID), nil
}

func (r *Messages) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	if err := r.s.before(ctx, "messages.mark_read"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, old := range r.s.messagesOf(conversationID) {
		if old.SenderID == readerID || old.Read {
			continue
		}
		updated := old
		updated.Read = true
		r.s.messages[updated.ID] = updated
		r.s.publish(tableMessages, realtime.EventUpdate, updated, old)
	}
	return nil
}

func (r *Messages) CountUnread(ctx context.Context, userID string) (int, error) {
	if err := r.s.before(ctx, "messages.count_unread"); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	total := 0
	for _, message := range r.s.messages {
		if message.Read || message.SenderID == userID {
			continue
		}
		conversation, ok := r.s.conversations[message.ConversationID]
		if ok && conversation.HasParticipant(userID) {
			total++
		}
	}
	return total, nil
}

// Callers hold s.mu.
func (s *Store) findConversation(a, b string) (models.Conversation, bool) {
	for _, conversation := range s.conversations {
		if samePair(conversation.Participant1ID, conversation.Participant2ID, a, b) {
			return conversation, true
		}
	}
	return models.Conversation{}, false
}

// Callers hold s.mu.
func (s *Store) messagesOf(conversationID string) []models.Message {
	messages := make([]models.Message, 0)
	for _, message := range s.messages {
		if message.ConversationID == conversationID {
			messages = append(messages, message)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	return messages
}
