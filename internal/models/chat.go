package models

import (
	"strings"
	"time"
)

// TempMessagePrefix marks a message id assigned locally before the store
// confirmed the write.
const TempMessagePrefix = "temp-"

type Conversation struct {
	ID                    string    `json:"id"`
	Participant1ID        string    `json:"participant1_id"`
	Participant2ID        string    `json:"participant2_id"`
	LastMessageAt         time.Time `json:"last_message_at"`
	CreatedAt             time.Time `json:"created_at"`
	DeletedByParticipant1 bool      `json:"deleted_by_participant1"`
	DeletedByParticipant2 bool      `json:"deleted_by_participant2"`
	OtherUser             *Profile  `json:"other_user,omitempty"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// DeletedBy reports whether userID has soft-deleted the conversation.
func (c *Conversation) DeletedBy(userID string) bool {
	switch userID {
	case c.Participant1ID:
		return c.DeletedByParticipant1
	case c.Participant2ID:
		return c.DeletedByParticipant2
	default:
		return false
	}
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
	Sender         *Profile  `json:"sender,omitempty"`
}

// Pending reports whether the message is an unconfirmed local copy.
func (m *Message) Pending() bool {
	return strings.HasPrefix(m.ID, TempMessagePrefix)
}

type ChatWindow struct {
	Conversation Conversation `json:"conversation"`
	IsOpen       bool         `json:"is_open"`
	IsMinimized  bool         `json:"is_minimized"`
	Position     int          `json:"position"`
}

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
