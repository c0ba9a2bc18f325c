package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"

	"github.com/saeid-a/MedLinkBack/internal/metrics"
	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

const (
	tableMessages      = "messages"
	tableConversations = "conversations"

	realtimeCallTimeout = 10 * time.Second
)

type blockChecker interface {
	BlockedBetween(ctx context.Context, otherUserID string) (bool, error)
}

// thread is the message list of one attached conversation.
type thread struct {
	conversation models.Conversation
	messages     []models.Message
	attach       uint64
	visible      bool
	sending      bool
	loaded       bool

	// arrivals and read patches seen while a load is in flight
	arrived map[string]struct{}
	patched map[string]bool
}

func (t *thread) index(messageID string) int {
	for i := range t.messages {
		if t.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// ChatService is the conversation and message projection of one signed-in
// user. Remote calls never run under mu; completions that arrive after a
// Reset, or for a thread that has since been detached, are discarded.
type ChatService struct {
	userID        string
	conversations ConversationStore
	messages      MessageStore
	profiles      ProfileReader
	blocks        blockChecker
	subs          subscriber
	logger        *slog.Logger
	metrics       *metrics.Metrics
	emit          UpdateFunc
	now           func() time.Time
	newTempID     func() string
	starts        singleflight.Group

	mu            sync.Mutex
	generation    uint64
	list          []models.Conversation
	threads       map[string]*thread
	nextAttach    uint64
	drafts        map[string]string
	unread        int
	unreadSeq     uint64
	unreadApplied uint64
	onRemoved     func(conversationID string)
}

func NewChatService(
	userID string,
	stores Stores,
	subs subscriber,
	blocks blockChecker,
	logger *slog.Logger,
	m *metrics.Metrics,
	emit UpdateFunc,
) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		userID:        userID,
		conversations: stores.Conversations,
		messages:      stores.Messages,
		profiles:      stores.Profiles,
		blocks:        blocks,
		subs:          subs,
		logger:        logger.With("component", "chat", "user_id", userID),
		metrics:       m,
		emit:          emit,
		now:           time.Now,
		newTempID:     func() string { return models.TempMessagePrefix + uuid.NewString() },
		threads:       make(map[string]*thread),
		drafts:        make(map[string]string),
	}
}

// OnConversationRemoved registers fn to run when a conversation leaves the
// list because it was deleted or hidden.
func (s *ChatService) OnConversationRemoved(fn func(conversationID string)) {
	s.mu.Lock()
	s.onRemoved = fn
	s.mu.Unlock()
}

func unreadTopic(userID string) string { return "unread:" + userID }
func conversationsTopic(column, userID string) string { return "conversations:" + column + ":" + userID }
func threadTopic(conversationID string) string { return "messages:" + conversationID }

// Watch subscribes the user-wide topics: every message insert for unread
// accounting, and the conversation rows the user takes part in.
func (s *ChatService) Watch() error {
	gen := s.currentGeneration()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	_, err := s.subs.Subscribe(unreadTopic(s.userID), tableMessages, realtime.Filter{}, realtime.MaskInsert, func(realtime.Change) {
		if s.currentGeneration() != gen {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), realtimeCallTimeout)
		defer cancel()
		_, _ = s.RefreshUnread(ctx)
	})
	record(err)

	for _, column := range []string{"participant1_id", "participant2_id"} {
		_, err := s.subs.Subscribe(
			conversationsTopic(column, s.userID),
			tableConversations,
			realtime.Eq(column, s.userID),
			realtime.MaskAll,
			s.conversationHandler(gen),
		)
		record(err)
	}

	return firstErr
}

func (s *ChatService) LoadConversations(ctx context.Context) ([]models.Conversation, error) {
	gen := s.currentGeneration()

	list, err := s.conversations.ListForParticipant(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	s.annotate(ctx, list)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return list, nil
	}
	s.list = list
	sortConversations(s.list)
	out := append([]models.Conversation{}, s.list...)
	s.mu.Unlock()

	s.emit.emit(Update{Kind: UpdateConversations})
	return out, nil
}

func (s *ChatService) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Conversation{}, s.list...)
}

// Conversation returns a conversation the user takes part in, from the
// list when it is there.
func (s *ChatService) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	s.mu.Lock()
	for _, conversation := range s.list {
		if conversation.ID == conversationID {
			s.mu.Unlock()
			return &conversation, nil
		}
	}
	s.mu.Unlock()

	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(s.userID) {
		return nil, apperrors.ErrConversationForbidden
	}

	annotated := []models.Conversation{*conversation}
	s.annotate(ctx, annotated)
	return &annotated[0], nil
}

// StartConversation returns the conversation with otherUserID, creating
// it when none exists. Concurrent calls for one pair share a single
// lookup-then-insert, and the insert itself tolerates a concurrent writer.
func (s *ChatService) StartConversation(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" || otherUserID == s.userID {
		return nil, apperrors.ErrInvalidParticipant
	}

	if s.blocks != nil {
		blocked, err := s.blocks.BlockedBetween(ctx, otherUserID)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, apperrors.ErrChatBlocked
		}
	}

	value, err, _ := s.starts.Do(pairKey(s.userID, otherUserID), func() (any, error) {
		return s.startConversation(ctx, otherUserID)
	})
	if err != nil {
		return nil, err
	}

	conversation := *value.(*models.Conversation)
	return &conversation, nil
}

func (s *ChatService) startConversation(ctx context.Context, otherUserID string) (*models.Conversation, error) {
	gen := s.currentGeneration()

	conversation, err := s.conversations.FindBetween(ctx, s.userID, otherUserID)
	switch {
	case err == nil:
		if conversation.DeletedBy(s.userID) {
			conversation, err = s.conversations.SetDeleted(ctx, conversation.ID, s.userID, false)
			if err != nil {
				return nil, err
			}
		}
	case errors.Is(err, pgx.ErrNoRows):
		conversation, err = s.conversations.Create(ctx, s.userID, otherUserID, s.now().UTC())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && (pgErr.Code == "23503" || pgErr.Code == "23514") {
				return nil, apperrors.WithCause(apperrors.ErrInvalidParticipant, err)
			}
			return nil, err
		}
	default:
		return nil, err
	}

	annotated := []models.Conversation{*conversation}
	s.annotate(ctx, annotated)

	s.mu.Lock()
	if gen == s.generation {
		s.upsertLocked(annotated[0])
	}
	s.mu.Unlock()

	s.emit.emit(Update{Kind: UpdateConversations})
	return &annotated[0], nil
}

// Attach makes conversationID an active thread: its messages are loaded
// and kept current from the push channel until Detach.
func (s *ChatService) Attach(ctx context.Context, conversationID string) error {
	conversation, err := s.Conversation(ctx, conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.threads[conversationID]; exists {
		s.mu.Unlock()
		return nil
	}
	s.nextAttach++
	t := &thread{
		conversation: *conversation,
		attach:       s.nextAttach,
		visible:      true,
	}
	s.threads[conversationID] = t
	gen := s.generation
	s.mu.Unlock()

	handle, err := s.subs.Subscribe(
		threadTopic(conversationID),
		tableMessages,
		realtime.Eq("conversation_id", conversationID),
		realtime.MaskAll,
		s.threadHandler(gen, conversationID, t.attach),
	)
	if err != nil {
		s.logger.Warn("thread subscribe failed", "conversation_id", conversationID, "error", err)
	}

	s.mu.Lock()
	current := s.threadCurrentLocked(gen, conversationID, t.attach)
	s.mu.Unlock()
	if !current {
		// Detached while subscribing.
		s.subs.Unsubscribe(handle)
		return nil
	}

	_, err = s.LoadMessages(ctx, conversationID)
	return err
}

// Detach stops tracking conversationID and drops its draft.
func (s *ChatService) Detach(conversationID string) {
	s.mu.Lock()
	_, ok := s.threads[conversationID]
	if ok {
		delete(s.threads, conversationID)
		delete(s.drafts, conversationID)
	}
	s.mu.Unlock()

	if ok {
		s.subs.UnsubscribeTopic(threadTopic(conversationID))
	}
}

// SetVisibility records whether the thread's window is open and not
// minimized. Visible threads mark incoming messages read at once.
func (s *ChatService) SetVisibility(conversationID string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[conversationID]; ok {
		t.visible = visible
	}
}

func (s *ChatService) LoadMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	t, ok := s.threads[conversationID]
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.ErrConversationNotOpen
	}
	attach := t.attach
	gen := s.generation
	t.arrived = make(map[string]struct{})
	t.patched = make(map[string]bool)
	s.mu.Unlock()

	loaded, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.resolveSenders(ctx, loaded)

	s.mu.Lock()
	if !s.threadCurrentLocked(gen, conversationID, attach) {
		s.mu.Unlock()
		return loaded, nil
	}
	t.messages = mergeLoaded(loaded, t)
	t.loaded = true
	t.arrived = nil
	t.patched = nil
	out := append([]models.Message{}, t.messages...)
	s.mu.Unlock()

	s.emit.emit(Update{Kind: UpdateMessages, ID: conversationID})
	return out, nil
}

// mergeLoaded replaces a thread's list with a fresh load, keeping pending
// sends and the messages that arrived while the load was running.
func mergeLoaded(loaded []models.Message, t *thread) []models.Message {
	merged := make([]models.Message, 0, len(loaded)+len(t.messages))
	seen := make(map[string]struct{}, len(loaded))
	for _, message := range loaded {
		if read, ok := t.patched[message.ID]; ok {
			message.Read = read
		}
		merged = append(merged, message)
		seen[message.ID] = struct{}{}
	}
	for _, message := range t.messages {
		if _, dup := seen[message.ID]; dup {
			continue
		}
		_, arrived := t.arrived[message.ID]
		if message.Pending() || arrived {
			merged = append(merged, message)
		}
	}
	return merged
}

// Messages returns the attached thread's messages in display order.
func (s *ChatService) Messages(conversationID string) ([]models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[conversationID]
	if !ok {
		return nil, false
	}
	return append([]models.Message{}, t.messages...), true
}

// FetchMessages reads a conversation's messages without attaching it.
func (s *ChatService) FetchMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if messages, ok := s.Messages(conversationID); ok {
		return messages, nil
	}
	if _, err := s.Conversation(ctx, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.resolveSenders(ctx, messages)
	return messages, nil
}

// ThreadUnread counts the counterpart's unread messages in an attached
// thread.
func (s *ChatService) ThreadUnread(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[conversationID]
	if !ok {
		return 0
	}
	unread := 0
	for _, message := range t.messages {
		if message.SenderID != s.userID && !message.Read {
			unread++
		}
	}
	return unread
}

func (s *ChatService) SetDraft(conversationID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[conversationID]; !ok {
		return apperrors.ErrConversationNotOpen
	}
	if text == "" {
		delete(s.drafts, conversationID)
		return nil
	}
	s.drafts[conversationID] = text
	return nil
}

func (s *ChatService) Draft(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[conversationID]
}

// SendMessage appends an optimistic copy of the message, writes it, and
// then swaps the confirmed row into the same list position. On failure
// the optimistic copy is removed and a classified error is returned.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, content string) (*models.Message, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, apperrors.ErrEmptyMessage
	}

	s.mu.Lock()
	t, ok := s.threads[conversationID]
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.ErrConversationNotOpen
	}
	if t.sending {
		s.mu.Unlock()
		return nil, apperrors.ErrSendInFlight
	}
	gen := s.generation
	attach := t.attach
	temp := models.Message{
		ID:             s.newTempID(),
		ConversationID: conversationID,
		SenderID:       s.userID,
		Content:        trimmed,
		Read:           true,
		CreatedAt:      s.now().UTC(),
	}
	t.messages = append(t.messages, temp)
	t.sending = true
	delete(s.drafts, conversationID)
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateMessages, ID: conversationID})

	confirmed, err := s.messages.Create(ctx, conversationID, s.userID, trimmed)

	s.mu.Lock()
	current := s.threadCurrentLocked(gen, conversationID, attach)
	if current {
		t.sending = false
		i := t.index(temp.ID)
		switch {
		case err != nil && i >= 0:
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
		case err == nil && i >= 0:
			replacement := *confirmed
			replacement.Sender = temp.Sender
			if dup := t.index(replacement.ID); dup >= 0 && dup != i {
				t.messages = append(t.messages[:dup], t.messages[dup+1:]...)
				if dup < i {
					i--
				}
			}
			t.messages[i] = replacement
		}
	}
	s.mu.Unlock()
	if current {
		s.emit.emit(Update{Kind: UpdateMessages, ID: conversationID})
	}

	if err != nil {
		kind, classified := ClassifySendError(err)
		s.metrics.SendFailed(string(kind))
		s.logger.Warn("message send rolled back",
			"conversation_id", conversationID,
			"kind", string(kind),
			"error", err,
		)
		return nil, classified
	}

	if err := s.conversations.Touch(ctx, conversationID, confirmed.CreatedAt); err != nil {
		s.logger.Warn("conversation touch failed", "conversation_id", conversationID, "error", err)
	}
	s.mu.Lock()
	if gen == s.generation {
		s.bumpLocked(conversationID, confirmed.CreatedAt)
	}
	s.mu.Unlock()
	s.emit.emit(Update{Kind: UpdateConversations})

	return confirmed, nil
}

// MarkMessagesAsRead flags the counterpart's messages read. Local copies
// change when the update comes back on the push channel.
func (s *ChatService) MarkMessagesAsRead(ctx context.Context, conversationID string) error {
	if _, err := s.Conversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.messages.MarkConversationRead(ctx, conversationID, s.userID); err != nil {
		return err
	}
	_, err := s.RefreshUnread(ctx)
	return err
}

// DeleteConversation hides the conversation for the caller. Once both
// participants have hidden it, the row and its messages are removed.
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	conversation, err := s.conversations.SetDeleted(ctx, conversationID, s.userID, true)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrConversationNotFound
	}
	if err != nil {
		return err
	}

	if conversation.DeletedByParticipant1 && conversation.DeletedByParticipant2 {
		if err := s.conversations.Delete(ctx, conversationID); err != nil {
			return err
		}
		s.logger.Info("conversation removed by both participants", "conversation_id", conversationID)
	}

	s.mu.Lock()
	removed := s.removeLocked(conversationID)
	hook := s.onRemoved
	s.mu.Unlock()

	if removed {
		s.emit.emit(Update{Kind: UpdateConversations})
	}
	if hook != nil {
		hook(conversationID)
	}
	return nil
}

// RefreshUnread recounts unread messages addressed to the user. When
// recounts overlap, the one started last wins.
func (s *ChatService) RefreshUnread(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.unreadSeq++
	seq := s.unreadSeq
	gen := s.generation
	s.mu.Unlock()

	count, err := s.messages.CountUnread(ctx, s.userID)
	if err != nil {
		s.logger.Warn("unread recount failed", "error", err)
		return 0, err
	}

	s.mu.Lock()
	changed := false
	if gen == s.generation && seq > s.unreadApplied {
		s.unreadApplied = seq
		changed = s.unread != count
		s.unread = count
	}
	s.mu.Unlock()

	if changed {
		s.emit.emit(Update{Kind: UpdateUnread})
	}
	return count, nil
}

func (s *ChatService) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// AttachedThreads returns the ids of the attached threads.
func (s *ChatService) AttachedThreads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset drops all state. Completions of calls started before the reset
// are ignored.
func (s *ChatService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.list = nil
	s.threads = make(map[string]*thread)
	s.drafts = make(map[string]string)
	s.unread = 0
	s.unreadApplied = s.unreadSeq
}

func (s *ChatService) threadHandler(gen uint64, conversationID string, attach uint64) realtime.Handler {
	return func(change realtime.Change) {
		switch change.Type {
		case realtime.EventInsert:
			s.onMessageInsert(gen, conversationID, attach, change)
		case realtime.EventUpdate:
			s.onMessageUpdate(gen, conversationID, attach, change)
		case realtime.EventDelete:
			s.onMessageDelete(gen, conversationID, attach, change)
		}
	}
}

func (s *ChatService) onMessageInsert(gen uint64, conversationID string, attach uint64, change realtime.Change) {
	message, err := realtime.Decode[models.Message](change)
	if err != nil {
		s.logger.Warn("message insert decode failed", "error", err)
		return
	}

	// Our own inserts are already in the list as optimistic copies.
	if message.SenderID == s.userID {
		return
	}

	s.mu.Lock()
	if !s.threadCurrentLocked(gen, conversationID, attach) || s.threads[conversationID].index(message.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), realtimeCallTimeout)
	defer cancel()

	sender, err := s.profiles.GetByID(ctx, message.SenderID)
	if err != nil {
		s.logger.Debug("sender profile unavailable", "sender_id", message.SenderID, "error", err)
	} else {
		message.Sender = sender
	}

	s.mu.Lock()
	if !s.threadCurrentLocked(gen, conversationID, attach) {
		s.mu.Unlock()
		return
	}
	t := s.threads[conversationID]
	if t.index(message.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	t.messages = append(t.messages, message)
	if t.arrived != nil {
		t.arrived[message.ID] = struct{}{}
	}
	visible := t.visible
	s.mu.Unlock()

	s.emit.emit(Update{Kind: UpdateMessages, ID: conversationID})

	if !visible {
		s.emit.emit(Update{Kind: UpdatePulse, ID: conversationID})
		return
	}
	if err := s.messages.MarkConversationRead(ctx, conversationID, s.userID); err != nil {
		s.logger.Warn("mark visible thread read failed", "conversation_id", conversationID, "error", err)
		return
	}
	_, _ = s.RefreshUnread(ctx)
}

func (s *ChatService) onMessageUpdate(gen uint64, conversationID string, attach uint64, change realtime.Change) {
	message, err := realtime.Decode[models.Message](change)
	if err != nil {
		s.logger.Warn("message update decode failed", "error", err)
		return
	}

	s.mu.Lock()
	if !s.threadCurrentLocked(gen, conversationID, attach) {
		s.mu.Unlock()
		return
	}
	t := s.threads[conversationID]
	if t.patched != nil {
		t.patched[message.ID] = message.Read
	}
	i := t.index(message.ID)
	changed := i >= 0 && t.messages[i].Read != message.Read
	if changed {
		t.messages[i].Read = message.Read
	}
	s.mu.Unlock()

	if changed {
		s.emit.emit(Update{Kind: UpdateMessages, ID: conversationID})
	}
}

func (s *ChatService) onMessageDelete(gen uint64, conversationID string, attach uint64, change realtime.Change) {
	message, err := realtime.Decode[models.Message](change)
	if err != nil {
		s.logger.Warn("message delete decode failed", "error", err)
		return
	}

	s.mu.Lock()
	if !s.threadCurrentLocked(gen, conversationID, attach) {
		s.mu.Unlock()
		return
	}
	t := s.threads[conversationID]
	i := t.index(message.ID)
	if i >= 0 {
		t.messages = append(t.messages[:i], t.messages[i+1:]...)
	}
	s.mu.Unlock()

	if i >= 0 {
		s.emit.emit(Update{Kind: UpdateMessages, ID: conversationID})
	}
}

func (s *ChatService) conversationHandler(gen uint64) realtime.Handler {
	return func(change realtime.Change) {
		conversation, err := realtime.Decode[models.Conversation](change)
		if err != nil {
			s.logger.Warn("conversation change decode failed", "error", err)
			return
		}
		if !conversation.HasParticipant(s.userID) {
			return
		}

		if change.Type == realtime.EventDelete || conversation.DeletedBy(s.userID) {
			s.mu.Lock()
			if gen != s.generation {
				s.mu.Unlock()
				return
			}
			removed := s.removeLocked(conversation.ID)
			hook := s.onRemoved
			s.mu.Unlock()
			if removed {
				s.emit.emit(Update{Kind: UpdateConversations})
				if hook != nil {
					hook(conversation.ID)
				}
			}
			return
		}

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		for _, existing := range s.list {
			if existing.ID == conversation.ID {
				conversation.OtherUser = existing.OtherUser
				break
			}
		}
		s.mu.Unlock()

		if conversation.OtherUser == nil {
			ctx, cancel := context.WithTimeout(context.Background(), realtimeCallTimeout)
			annotated := []models.Conversation{conversation}
			s.annotate(ctx, annotated)
			cancel()
			conversation = annotated[0]
		}

		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		s.upsertLocked(conversation)
		s.mu.Unlock()
		s.emit.emit(Update{Kind: UpdateConversations})
	}
}

// annotate sets OtherUser on each conversation. Lookup failures leave the
// field empty.
func (s *ChatService) annotate(ctx context.Context, conversations []models.Conversation) {
	if len(conversations) == 0 {
		return
	}
	ids := make([]string, 0, len(conversations))
	for _, conversation := range conversations {
		ids = append(ids, conversation.OtherParticipant(s.userID))
	}
	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Debug("participant profiles unavailable", "error", err)
		return
	}
	byID := make(map[string]models.Profile, len(profiles))
	for _, profile := range profiles {
		byID[profile.ID] = profile
	}
	for i := range conversations {
		if profile, ok := byID[conversations[i].OtherParticipant(s.userID)]; ok {
			conversations[i].OtherUser = &profile
		}
	}
}

func (s *ChatService) resolveSenders(ctx context.Context, messages []models.Message) {
	if len(messages) == 0 {
		return
	}
	ids := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	for _, message := range messages {
		if _, ok := seen[message.SenderID]; !ok {
			seen[message.SenderID] = struct{}{}
			ids = append(ids, message.SenderID)
		}
	}
	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Debug("sender profiles unavailable", "error", err)
		return
	}
	byID := make(map[string]models.Profile, len(profiles))
	for _, profile := range profiles {
		byID[profile.ID] = profile
	}
	for i := range messages {
		if profile, ok := byID[messages[i].SenderID]; ok {
			messages[i].Sender = &profile
		}
	}
}

func (s *ChatService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *ChatService) threadCurrentLocked(gen uint64, conversationID string, attach uint64) bool {
	if gen != s.generation {
		return false
	}
	t, ok := s.threads[conversationID]
	return ok && t.attach == attach
}

func (s *ChatService) upsertLocked(conversation models.Conversation) {
	replaced := false
	for i := range s.list {
		if s.list[i].ID == conversation.ID {
			s.list[i] = conversation
			replaced = true
			break
		}
	}
	if !replaced {
		s.list = append(s.list, conversation)
	}
	sortConversations(s.list)
	if t, ok := s.threads[conversation.ID]; ok {
		t.conversation = conversation
	}
}

func (s *ChatService) bumpLocked(conversationID string, at time.Time) {
	for i := range s.list {
		if s.list[i].ID == conversationID {
			if at.After(s.list[i].LastMessageAt) {
				s.list[i].LastMessageAt = at
			}
			s.list[i].DeletedByParticipant1 = false
			s.list[i].DeletedByParticipant2 = false
			sortConversations(s.list)
			return
		}
	}
}

func (s *ChatService) removeLocked(conversationID string) bool {
	for i := range s.list {
		if s.list[i].ID == conversationID {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return true
		}
	}
	return false
}

func sortConversations(list []models.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].LastMessageAt.Equal(list[j].LastMessageAt) {
			return list[i].LastMessageAt.After(list[j].LastMessageAt)
		}
		return list[i].ID > list[j].ID
	})
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
