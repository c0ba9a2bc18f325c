package models

import "time"

const (
	NotificationConnectionRequest  = "connection_request"
	NotificationConnectionAccepted = "connection_accepted"
	NotificationConnectionRejected = "connection_rejected"

	RelatedEntityPost       = "post"
	RelatedEntityComment    = "comment"
	RelatedEntityConnection = "connection"
)

type Notification struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	ActorID           *string          `json:"actor_id,omitempty"`
	Message           string           `json:"message"`
	Type              string           `json:"type"`
	RelatedEntityType *string          `json:"related_entity_type,omitempty"`
	RelatedEntityID   *string          `json:"related_entity_id,omitempty"`
	Read              bool             `json:"read"`
	CreatedAt         time.Time        `json:"created_at"`
	Actor             *Profile         `json:"actor,omitempty"`
	RelatedPost       *PostSnapshot    `json:"related_post,omitempty"`
	RelatedComment    *CommentSnapshot `json:"related_comment,omitempty"`
}

type NewNotification struct {
	UserID            string
	ActorID           *string
	Message           string
	Type              string
	RelatedEntityType *string
	RelatedEntityID   *string
}

type PostSnapshot struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentSnapshot struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
