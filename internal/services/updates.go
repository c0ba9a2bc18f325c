package services

// UpdateKind names the projection that changed.
type UpdateKind string

const (
	UpdateConversations UpdateKind = "conversations"
	UpdateMessages      UpdateKind = "messages"
	UpdatePulse         UpdateKind = "pulse"
	UpdateUnread        UpdateKind = "unread"
	UpdateWindows       UpdateKind = "windows"
	UpdateConnections   UpdateKind = "connections"
	UpdateNotifications UpdateKind = "notifications"
	UpdateNetwork       UpdateKind = "network"
	UpdateReset         UpdateKind = "reset"
)

// Update tells a reader which snapshot to fetch again. ID is the
// conversation id for message and pulse updates.
type Update struct {
	Kind UpdateKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
}

type UpdateFunc func(Update)

func (f UpdateFunc) emit(update Update) {
	if f != nil {
		f(update)
	}
}
