package services

import (
	"strconv"
	"sync"

	"github.com/saeid-a/MedLinkBack/internal/models"
)

const (
	MaxChatWindows = 3

	// Horizontal stacking of window surfaces, in pixels.
	WindowBaseOffset = 16
	WindowWidth      = 336

	badgeCap = 99
)

// WindowManager bounds the open chat surfaces. Windows are kept in
// opening order; the head is evicted first.
type WindowManager struct {
	mu      sync.Mutex
	windows []models.ChatWindow
	max     int
}

func NewWindowManager() *WindowManager {
	return &WindowManager{max: MaxChatWindows}
}

// Open adds a window for conversation at the tail. Opening a conversation
// that already has a window only clears its minimized flag. When the cap
// is reached the oldest window is evicted and returned.
func (m *WindowManager) Open(conversation models.Conversation) (evicted *models.ChatWindow, opened bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexLocked(conversation.ID); i >= 0 {
		m.windows[i].IsMinimized = false
		m.windows[i].IsOpen = true
		return nil, false
	}

	if len(m.windows) >= m.max {
		head := m.windows[0]
		evicted = &head
		m.windows = append([]models.ChatWindow(nil), m.windows[1:]...)
	}

	m.windows = append(m.windows, models.ChatWindow{
		Conversation: conversation,
		IsOpen:       true,
	})
	m.renumberLocked()
	return evicted, true
}

func (m *WindowManager) Close(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(conversationID)
	if i < 0 {
		return false
	}
	m.windows = append(m.windows[:i], m.windows[i+1:]...)
	m.renumberLocked()
	return true
}

// ToggleMinimize flips the minimized flag and returns its new value.
func (m *WindowManager) ToggleMinimize(conversationID string) (minimized bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(conversationID)
	if i < 0 {
		return false, false
	}
	m.windows[i].IsMinimized = !m.windows[i].IsMinimized
	return m.windows[i].IsMinimized, true
}

// UpdateConversation refreshes the conversation a window wraps.
func (m *WindowManager) UpdateConversation(conversation models.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexLocked(conversation.ID); i >= 0 {
		m.windows[i].Conversation = conversation
	}
}

func (m *WindowManager) Get(conversationID string) (models.ChatWindow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(conversationID)
	if i < 0 {
		return models.ChatWindow{}, false
	}
	return m.windows[i], true
}

func (m *WindowManager) Windows() []models.ChatWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatWindow{}, m.windows...)
}

// Reset drops every window and returns the ones that were open.
func (m *WindowManager) Reset() []models.ChatWindow {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := m.windows
	m.windows = nil
	return closed
}

func (m *WindowManager) indexLocked(conversationID string) int {
	for i := range m.windows {
		if m.windows[i].Conversation.ID == conversationID {
			return i
		}
	}
	return -1
}

func (m *WindowManager) renumberLocked() {
	for i := range m.windows {
		m.windows[i].Position = i
	}
}

// StackOffset is the horizontal offset of the window at position.
func StackOffset(position int) int {
	return WindowBaseOffset + position*WindowWidth
}

// FormatBadge renders an unread count for a minimized window. Zero
// renders as the empty string.
func FormatBadge(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > badgeCap:
		return strconv.Itoa(badgeCap) + "+"
	default:
		return strconv.Itoa(unread)
	}
}
