package models

import "time"

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
)

type Connection struct {
	ID         string           `json:"id"`
	SenderID   string           `json:"sender_id"`
	ReceiverID string           `json:"receiver_id"`
	Status     ConnectionStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Sender     *Profile         `json:"sender,omitempty"`
	Receiver   *Profile         `json:"receiver,omitempty"`
}

// Counterpart returns the party of the connection that is not userID.
func (c *Connection) Counterpart(userID string) string {
	if c.SenderID == userID {
		return c.ReceiverID
	}
	return c.SenderID
}

// ConnectionGraph is a read-only snapshot of one user's connection state.
type ConnectionGraph struct {
	Incoming    []Connection `json:"incoming"`
	Outgoing    []Connection `json:"outgoing"`
	Connections []Connection `json:"connections"`
	BlockedByMe []string     `json:"blocked_by_me"`
	BlockedMe   []string     `json:"blocked_me"`
}
