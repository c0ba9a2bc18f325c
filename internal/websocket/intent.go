package chatws

import (
	"context"
	"strings"
	"time"

	"github.com/saeid-a/MedLinkBack/internal/services"
	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

const intentTimeout = 15 * time.Second

// Intent is one client request on the stream.
type Intent struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Content        string `json:"content,omitempty"`
	Text           string `json:"text,omitempty"`
}

func ack(incoming Intent, data any) *Envelope {
	return &Envelope{Type: "ack", RequestID: incoming.RequestID, Data: data}
}

func fail(incoming Intent, err error) *Envelope {
	return &Envelope{
		Type:      "error",
		RequestID: incoming.RequestID,
		Error:     apperrors.MessageOf(err, "Failed to process request"),
	}
}

// dispatch applies incoming to session and returns the reply frame.
func dispatch(session *services.Session, incoming Intent) *Envelope {
	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	conversationID := strings.TrimSpace(incoming.ConversationID)
	switch incoming.Type {
	case "open_window":
		view, err := session.OpenWindow(ctx, conversationID)
		if err != nil {
			return fail(incoming, err)
		}
		return ack(incoming, view)
	case "close_window":
		if !session.CloseWindow(conversationID) {
			return fail(incoming, apperrors.ErrConversationNotOpen)
		}
		return ack(incoming, nil)
	case "toggle_minimize":
		view, err := session.ToggleMinimize(ctx, conversationID)
		if err != nil {
			return fail(incoming, err)
		}
		return ack(incoming, view)
	case "send_message":
		message, err := session.Chat().SendMessage(ctx, conversationID, incoming.Content)
		if err != nil {
			return fail(incoming, err)
		}
		return ack(incoming, message)
	case "set_draft":
		if err := session.Chat().SetDraft(conversationID, incoming.Text); err != nil {
			return fail(incoming, err)
		}
		return ack(incoming, nil)
	case "mark_read":
		if err := session.Chat().MarkMessagesAsRead(ctx, conversationID); err != nil {
			return fail(incoming, err)
		}
		return ack(incoming, nil)
	case "message_user":
		message, err := session.MessageUser(ctx, strings.TrimSpace(incoming.UserID), incoming.Content)
		if err != nil {
			return fail(incoming, err)
		}
		return ack(incoming, message)
	case "snapshot":
		snapshot := session.Snapshot()
		return &Envelope{Type: "snapshot", RequestID: incoming.RequestID, Snapshot: &snapshot}
	case "resync":
		if err := session.Resync(ctx); err != nil {
			return fail(incoming, err)
		}
		snapshot := session.Snapshot()
		return &Envelope{Type: "snapshot", RequestID: incoming.RequestID, Snapshot: &snapshot}
	default:
		return &Envelope{Type: "error", RequestID: incoming.RequestID, Error: "unknown message type"}
	}
}
