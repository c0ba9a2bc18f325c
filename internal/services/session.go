package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saeid-a/MedLinkBack/internal/metrics"
	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/network"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
	"github.com/saeid-a/MedLinkBack/internal/subscription"
	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

const resyncTimeout = 30 * time.Second

// NetworkSignal is the part of network.Monitor a session follows.
type NetworkSignal interface {
	State() network.State
	Subscribe(fn network.Listener) func()
}

type SessionDeps struct {
	Stores  Stores
	Broker  *realtime.Broker
	Network NetworkSignal
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// WindowView is a chat window with its badge and stacking offset.
type WindowView struct {
	models.ChatWindow
	Unread int    `json:"unread"`
	Badge  string `json:"badge,omitempty"`
	Offset int    `json:"offset"`
}

// Snapshot is every projection of a session at one moment.
type Snapshot struct {
	UserID              string                 `json:"user_id"`
	Stale               bool                   `json:"stale"`
	Conversations       []models.Conversation  `json:"conversations"`
	UnreadMessages      int                    `json:"unread_messages"`
	Windows             []WindowView           `json:"windows"`
	Connections         models.ConnectionGraph `json:"connections"`
	Notifications       []models.Notification  `json:"notifications"`
	UnreadNotifications int                    `json:"unread_notifications"`
}

// Session is the sync engine of one signed-in user: the conversation,
// connection and notification projections, the chat windows, and the
// push subscriptions feeding them.
type Session struct {
	userID        string
	subs          *subscription.Manager
	chat          *ChatService
	windows       *WindowManager
	connections   *ConnectionService
	notifications *NotificationService
	network       NetworkSignal
	logger        *slog.Logger

	// windowMu serializes window intents so that attach and detach of one
	// thread never interleave.
	windowMu sync.Mutex
	resyncMu sync.Mutex

	mu           sync.Mutex
	listeners    map[int]UpdateFunc
	nextListener int
	started      bool
	closed       bool
	stale        bool
	stopNetwork  func()
}

func NewSession(userID string, deps SessionDeps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		userID:    userID,
		subs:      subscription.NewManager(deps.Broker, logger.With("user_id", userID)),
		windows:   NewWindowManager(),
		network:   deps.Network,
		logger:    logger.With("component", "session", "user_id", userID),
		listeners: make(map[int]UpdateFunc),
	}
	emit := UpdateFunc(s.broadcast)
	s.connections = NewConnectionService(userID, deps.Stores, s.subs, logger, emit)
	s.chat = NewChatService(userID, deps.Stores, s.subs, s.connections, logger, deps.Metrics, emit)
	s.notifications = NewNotificationService(userID, deps.Stores, s.subs, logger, emit)
	s.chat.OnConversationRemoved(s.dropWindow)
	return s
}

func (s *Session) UserID() string { return s.userID }
func (s *Session) Chat() *ChatService { return s.chat }
func (s *Session) Connections() *ConnectionService { return s.connections }
func (s *Session) Notifications() *NotificationService { return s.notifications }

// Start subscribes every push topic and loads every projection. Starting
// a started session does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrNotSignedIn
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.watch()

	if s.network != nil {
		stop := s.network.Subscribe(s.onNetwork)
		s.mu.Lock()
		s.stopNetwork = stop
		s.stale = s.network.State() != network.StateConnected
		s.mu.Unlock()
	}

	return s.load(ctx)
}

// watch subscribes the user-wide topics. Failed channels are left to the
// next resync.
func (s *Session) watch() {
	err := errors.Join(s.chat.Watch(), s.connections.Watch(), s.notifications.Watch())
	if err != nil {
		s.logger.Warn("push subscribe failed; waiting for resync", "error", err)
	}
}

func (s *Session) load(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		_, err := s.chat.LoadConversations(groupCtx)
		return err
	})
	group.Go(func() error {
		_, err := s.chat.RefreshUnread(groupCtx)
		return err
	})
	group.Go(func() error {
		_, err := s.connections.Load(groupCtx)
		return err
	})
	group.Go(func() error {
		_, err := s.notifications.Load(groupCtx)
		return err
	})
	return group.Wait()
}

// Resync recreates every push channel and reloads the projections and
// attached threads. The session stops being stale when it succeeds.
func (s *Session) Resync(ctx context.Context) error {
	s.resyncMu.Lock()
	defer s.resyncMu.Unlock()

	if err := s.subs.ResubscribeAll(); err != nil {
		s.logger.Warn("resubscribe failed", "error", err)
	}

	err := s.load(ctx)
	for _, conversationID := range s.chat.AttachedThreads() {
		if _, loadErr := s.chat.LoadMessages(ctx, conversationID); loadErr != nil && !errors.Is(loadErr, apperrors.ErrConversationNotOpen) {
			err = errors.Join(err, loadErr)
		}
	}
	if err != nil {
		s.logger.Warn("resync failed", "error", err)
		return err
	}

	s.mu.Lock()
	s.stale = false
	s.mu.Unlock()
	s.broadcast(Update{Kind: UpdateNetwork})
	return nil
}

func (s *Session) onNetwork(state network.State) {
	if state != network.StateConnected {
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
		s.broadcast(Update{Kind: UpdateNetwork})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		defer cancel()
		_ = s.Resync(ctx)
	}()
}

// Stale reports whether the projections may have missed push events.
func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Reset clears every projection and closes every channel. Start may be
// called again afterwards.
func (s *Session) Reset() {
	s.windowMu.Lock()
	s.chat.Reset()
	s.connections.Reset()
	s.notifications.Reset()
	s.windows.Reset()
	s.subs.UnsubscribeAll()
	s.windowMu.Unlock()

	s.mu.Lock()
	s.started = false
	stop := s.stopNetwork
	s.stopNetwork = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}

	s.broadcast(Update{Kind: UpdateReset})
}

// Close resets the session and drops its listeners. A closed session
// cannot be started again.
func (s *Session) Close() {
	s.Reset()
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int]UpdateFunc)
	s.mu.Unlock()
}

// Listen registers fn for every projection update and returns a function
// that removes it.
func (s *Session) Listen(fn UpdateFunc) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) broadcast(update Update) {
	s.mu.Lock()
	listeners := make([]UpdateFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(update)
	}
}

// OpenWindow opens a chat window for the conversation, evicting the
// oldest window past the cap, and marks the thread read.
func (s *Session) OpenWindow(ctx context.Context, conversationID string) (WindowView, error) {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	conversation, err := s.chat.Conversation(ctx, conversationID)
	if err != nil {
		return WindowView{}, err
	}

	evicted, _ := s.windows.Open(*conversation)
	if evicted != nil {
		s.chat.Detach(evicted.Conversation.ID)
	}
	if err := s.chat.Attach(ctx, conversationID); err != nil {
		s.windows.Close(conversationID)
		s.chat.Detach(conversationID)
		s.broadcast(Update{Kind: UpdateWindows})
		return WindowView{}, err
	}
	s.chat.SetVisibility(conversationID, true)

	if err := s.chat.MarkMessagesAsRead(ctx, conversationID); err != nil {
		s.logger.Warn("mark opened thread read failed", "conversation_id", conversationID, "error", err)
	}

	s.broadcast(Update{Kind: UpdateWindows})
	return s.window(conversationID)
}

func (s *Session) CloseWindow(conversationID string) bool {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	return s.closeWindowLocked(conversationID)
}

func (s *Session) ToggleMinimize(ctx context.Context, conversationID string) (WindowView, error) {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	minimized, ok := s.windows.ToggleMinimize(conversationID)
	if !ok {
		return WindowView{}, apperrors.ErrConversationNotOpen
	}
	s.chat.SetVisibility(conversationID, !minimized)
	if !minimized {
		if err := s.chat.MarkMessagesAsRead(ctx, conversationID); err != nil {
			s.logger.Warn("mark restored thread read failed", "conversation_id", conversationID, "error", err)
		}
	}

	s.broadcast(Update{Kind: UpdateWindows})
	return s.window(conversationID)
}

func (s *Session) Windows() []WindowView {
	windows := s.windows.Windows()
	views := make([]WindowView, 0, len(windows))
	for _, window := range windows {
		views = append(views, s.view(window))
	}
	return views
}

// MessageUser starts or reuses the conversation with otherUserID, opens
// its window and sends content.
func (s *Session) MessageUser(ctx context.Context, otherUserID, content string) (*models.Message, error) {
	conversation, err := s.chat.StartConversation(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.OpenWindow(ctx, conversation.ID); err != nil {
		return nil, err
	}
	return s.chat.SendMessage(ctx, conversation.ID, content)
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		UserID:              s.userID,
		Stale:               s.Stale(),
		Conversations:       s.chat.Conversations(),
		UnreadMessages:      s.chat.UnreadCount(),
		Windows:             s.Windows(),
		Connections:         s.connections.Graph(),
		Notifications:       s.notifications.Notifications(),
		UnreadNotifications: s.notifications.UnreadCount(),
	}
}

// dropWindow closes the window of a conversation that left the list.
func (s *Session) dropWindow(conversationID string) {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	s.closeWindowLocked(conversationID)
}

func (s *Session) closeWindowLocked(conversationID string) bool {
	if !s.windows.Close(conversationID) {
		return false
	}
	s.chat.Detach(conversationID)
	s.broadcast(Update{Kind: UpdateWindows})
	return true
}

func (s *Session) window(conversationID string) (WindowView, error) {
	window, ok := s.windows.Get(conversationID)
	if !ok {
		return WindowView{}, apperrors.ErrConversationNotOpen
	}
	return s.view(window), nil
}

func (s *Session) view(window models.ChatWindow) WindowView {
	unread := s.chat.ThreadUnread(window.Conversation.ID)
	view := WindowView{
		ChatWindow: window,
		Unread:     unread,
		Offset:     StackOffset(window.Position),
	}
	if window.IsMinimized {
		view.Badge = FormatBadge(unread)
	}
	return view
}
