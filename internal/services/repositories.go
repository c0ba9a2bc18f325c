package services

import (
	"context"
	"time"

	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
	"github.com/saeid-a/MedLinkBack/internal/subscription"
)

type ConversationStore interface {
	ListForParticipant(ctx context.Context, participantID string) ([]models.Conversation, error)
	GetByID(ctx context.Context, conversationID string) (*models.Conversation, error)
	FindBetween(ctx context.Context, a, b string) (*models.Conversation, error)
	Create(ctx context.Context, participant1ID, participant2ID string, at time.Time) (*models.Conversation, error)
	Touch(ctx context.Context, conversationID string, at time.Time) error
	SetDeleted(ctx context.Context, conversationID, participantID string, deleted bool) (*models.Conversation, error)
	Delete(ctx context.Context, conversationID string) error
}

type MessageStore interface {
	Create(ctx context.Context, conversationID, senderID, content string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

type ProfileReader interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Profile, error)
	SearchByName(ctx context.Context, name string, limit int) ([]models.Profile, error)
}

type SettingsStore interface {
	GetBlockedUsers(ctx context.Context, userID string) ([]string, error)
	SetBlockedUsers(ctx context.Context, userID string, blocked []string) error
	ListBlockers(ctx context.Context, userID string) ([]string, error)
}

type ConnectionStore interface {
	ListForUser(ctx context.Context, userID string) ([]models.Connection, error)
	GetByID(ctx context.Context, id string) (*models.Connection, error)
	FindBetween(ctx context.Context, a, b string) (*models.Connection, error)
	Create(ctx context.Context, senderID, receiverID string) (*models.Connection, error)
	Accept(ctx context.Context, id, receiverID string) (*models.Connection, error)
	Delete(ctx context.Context, id, participantID string) error
}

type NotificationStore interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	Create(ctx context.Context, input models.NewNotification) (*models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, id, userID string) error
	DeleteAll(ctx context.Context, userID string) error
}

type ContentReader interface {
	GetPost(ctx context.Context, id string) (*models.PostSnapshot, error)
	GetComment(ctx context.Context, id string) (*models.CommentSnapshot, error)
}

// Stores bundles the query API the sync engine reads and writes.
type Stores struct {
	Conversations ConversationStore
	Messages      MessageStore
	Profiles      ProfileReader
	Settings      SettingsStore
	Connections   ConnectionStore
	Notifications NotificationStore
	Content       ContentReader
}

// subscriber is the part of subscription.Manager the stores use.
type subscriber interface {
	Subscribe(topic, table string, filter realtime.Filter, events realtime.EventMask, handler realtime.Handler) (*subscription.Handle, error)
	Unsubscribe(handle *subscription.Handle)
	UnsubscribeTopic(topic string)
}
