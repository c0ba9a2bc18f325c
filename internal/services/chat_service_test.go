package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saeid-a/MedLinkBack/internal/models"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

// openThread starts a conversation from s to otherID and opens its window.
func openThread(t *testing.T, s *Session, otherID string) string {
	t.Helper()
	conversation, err := s.Chat().StartConversation(context.Background(), otherID)
	require.NoError(t, err)
	_, err = s.OpenWindow(context.Background(), conversation.ID)
	require.NoError(t, err)
	return conversation.ID
}

func messageIDs(messages []models.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.ID)
	}
	return ids
}

func TestSendMessageReplacesOptimisticCopyInPlace(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()

	a := h.session(t, alice.ID)
	conversationID := openThread(t, a, bob.ID)

	release := make(chan struct{})
	var held atomic.Bool
	h.store.SetIntercept(func(ctx context.Context, op string) error {
		if op == "messages.create" && held.CompareAndSwap(false, true) {
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	type result struct {
		message *models.Message
		err     error
	}
	done := make(chan result, 1)
	go func() {
		message, err := a.Chat().SendMessage(ctx, conversationID, "first")
		done <- result{message, err}
	}()

	require.Eventually(t, held.Load, waitFor, tick)
	require.Eventually(t, func() bool {
		messages, _ := a.Chat().Messages(conversationID)
		return len(messages) == 1 && messages[0].Pending()
	}, waitFor, tick)

	reply, err := h.stores.Messages.Create(ctx, conversationID, bob.ID, "second")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		messages, _ := a.Chat().Messages(conversationID)
		return len(messages) == 2
	}, waitFor, tick)

	close(release)
	res := <-done
	require.NoError(t, res.err)

	messages, ok := a.Chat().Messages(conversationID)
	require.True(t, ok)
	assert.Equal(t, []string{res.message.ID, reply.ID}, messageIDs(messages))
	assert.Equal(t, "first", messages[0].Content)
	require.NotNil(t, messages[1].Sender)
	assert.Equal(t, bob.ID, messages[1].Sender.ID)
}

func TestOwnEchoAndDuplicateInsertsAreIgnored(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()

	a := h.session(t, alice.ID)
	conversationID := openThread(t, a, bob.ID)

	sent, err := a.Chat().SendMessage(ctx, conversationID, "mine")
	require.NoError(t, err)
	reply, err := h.stores.Messages.Create(ctx, conversationID, bob.ID, "theirs")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		messages, _ := a.Chat().Messages(conversationID)
		return len(messages) == 2
	}, waitFor, tick)

	// Replay both inserts as a reconnecting feed would.
	for _, message := range []*models.Message{sent, reply} {
		change, err := realtime.NewChange(tableMessages, realtime.EventInsert, message, nil)
		require.NoError(t, err)
		h.broker.Publish(change)
	}
	marker, err := h.stores.Messages.Create(ctx, conversationID, bob.ID, "marker")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		messages, _ := a.Chat().Messages(conversationID)
		return len(messages) == 3
	}, waitFor, tick)
	messages, _ := a.Chat().Messages(conversationID)
	assert.Equal(t, []string{sent.ID, reply.ID, marker.ID}, messageIDs(messages))
}

func TestSendFailureRollsBackOptimisticCopy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"missing target", &pgconn.PgError{Code: "23503"}, apperrors.ErrSendTargetMissing},
		{"row security", &pgconn.PgError{Code: "42501"}, apperrors.ErrSendPermissionDenied},
		{"stale schema", &pgconn.PgError{Code: "42703"}, apperrors.ErrSendSchemaMismatch},
		{"transport", errors.New("connection reset"), apperrors.ErrSendFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			alice := h.profile("Alice Adams")
			bob := h.profile("Bob Brown")
			ctx := context.Background()

			a := h.session(t, alice.ID)
			conversationID := openThread(t, a, bob.ID)
			require.NoError(t, a.Chat().SetDraft(conversationID, "draft"))

			h.store.SetIntercept(func(_ context.Context, op string) error {
				if op == "messages.create" {
					return tc.err
				}
				return nil
			})

			_, err := a.Chat().SendMessage(ctx, conversationID, "hello")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.target)
			assert.ErrorIs(t, err, tc.err)

			messages, ok := a.Chat().Messages(conversationID)
			require.True(t, ok)
			assert.Empty(t, messages)
			assert.Empty(t, a.Chat().Draft(conversationID))

			// The thread accepts a new send after a failure.
			h.store.SetIntercept(nil)
			_, err = a.Chat().SendMessage(ctx, conversationID, "again")
			require.NoError(t, err)
		})
	}
}

func TestSendMessageRejectsWhileInFlight(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()

	a := h.session(t, alice.ID)
	conversationID := openThread(t, a, bob.ID)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.store.SetIntercept(func(_ context.Context, op string) error {
		if op == "messages.create" {
			entered <- struct{}{}
			<-release
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := a.Chat().SendMessage(ctx, conversationID, "first")
		done <- err
	}()
	<-entered

	_, err := a.Chat().SendMessage(ctx, conversationID, "second")
	assert.ErrorIs(t, err, apperrors.ErrSendInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestSendMessageValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()

	a := h.session(t, alice.ID)
	conversation, err := a.Chat().StartConversation(ctx, bob.ID)
	require.NoError(t, err)

	_, err = a.Chat().SendMessage(ctx, conversation.ID, "   ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyMessage)

	_, err = a.Chat().SendMessage(ctx, conversation.ID, "hello")
	assert.ErrorIs(t, err, apperrors.ErrConversationNotOpen)
}

func TestConcurrentStartConversationSharesOneRow(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()

	a := h.session(t, alice.ID)
	b := h.session(t, bob.ID)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var conversation *models.Conversation
			var err error
			if i%2 == 0 {
				conversation, err = a.Chat().StartConversation(ctx, bob.ID)
			} else {
				conversation, err = b.Chat().StartConversation(ctx, alice.ID)
			}
			if assert.NoError(t, err) {
				ids[i] = conversation.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := h.stores.Conversations.ListForParticipant(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStartConversationRejections(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()
	a := h.session(t, alice.ID)
	b := h.session(t, bob.ID)

	_, err := a.Chat().StartConversation(ctx, alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParticipant)

	_, err = a.Chat().StartConversation(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, apperrors.ErrInvalidParticipant)

	require.NoError(t, b.Connections().Block(ctx, alice.ID))
	_, err = a.Chat().StartConversation(ctx, bob.ID)
	assert.ErrorIs(t, err, apperrors.ErrChatBlocked)
}

func TestConversationAccessChecks(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	cara := h.profile("Cara Chen")
	ctx := context.Background()

	b := h.session(t, bob.ID)
	c := h.session(t, cara.ID)

	conversation, err := b.Chat().StartConversation(ctx, alice.ID)
	require.NoError(t, err)

	_, err = c.Chat().Conversation(ctx, conversation.ID)
	assert.ErrorIs(t, err, apperrors.ErrConversationForbidden)
	_, err = c.OpenWindow(ctx, conversation.ID)
	assert.ErrorIs(t, err, apperrors.ErrConversationForbidden)
	assert.Empty(t, c.Windows())

	_, err = c.Chat().Conversation(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestDraftsAreDroppedWithTheirWindow(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	a := h.session(t, alice.ID)

	conversationID := openThread(t, a, bob.ID)
	require.NoError(t, a.Chat().SetDraft(conversationID, "half a thought"))
	assert.Equal(t, "half a thought", a.Chat().Draft(conversationID))

	a.CloseWindow(conversationID)
	assert.Empty(t, a.Chat().Draft(conversationID))
	assert.ErrorIs(t, a.Chat().SetDraft(conversationID, "x"), apperrors.ErrConversationNotOpen)
}

func TestConversationsSortByLatestMessage(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	cara := h.profile("Cara Chen")
	ctx := context.Background()
	a := h.session(t, alice.ID)

	withBob := openThread(t, a, bob.ID)
	withCara := openThread(t, a, cara.ID)

	_, err := a.Chat().SendMessage(ctx, withCara, "to cara")
	require.NoError(t, err)
	_, err = a.Chat().SendMessage(ctx, withBob, "to bob")
	require.NoError(t, err)

	assert.Equal(t, []string{withBob, withCara}, conversationIDs(a.Chat().Conversations()))
}

func TestClassifySendError(t *testing.T) {
	cases := []struct {
		code string
		kind SendFailure
		want error
	}{
		{"23503", SendFailureIntegrity, apperrors.ErrSendTargetMissing},
		{"23502", SendFailureIntegrity, apperrors.ErrSendTargetMissing},
		{"42501", SendFailurePermission, apperrors.ErrSendPermissionDenied},
		{"28000", SendFailurePermission, apperrors.ErrSendPermissionDenied},
		{"42P01", SendFailureSchema, apperrors.ErrSendSchemaMismatch},
		{"42883", SendFailureSchema, apperrors.ErrSendSchemaMismatch},
		{"23505", SendFailureGeneric, apperrors.ErrSendFailed},
		{"57014", SendFailureGeneric, apperrors.ErrSendFailed},
	}
	for _, tc := range cases {
		pgErr := &pgconn.PgError{Code: tc.code}
		kind, err := ClassifySendError(pgErr)
		if kind != tc.kind {
			t.Fatalf("code %s: expected kind %s, got %s", tc.code, tc.kind, kind)
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %s: expected %v, got %v", tc.code, tc.want, err)
		}
		if !errors.Is(err, pgErr) {
			t.Fatalf("code %s: cause was dropped", tc.code)
		}
	}

	kind, err := ClassifySendError(context.DeadlineExceeded)
	if kind != SendFailureGeneric || !errors.Is(err, apperrors.ErrSendFailed) {
		t.Fatalf("expected generic failure, got %s %v", kind, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected cause to be kept")
	}
}

func TestVisibleWindowMarksIncomingMessageRead(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()

	a := h.session(t, alice.ID)
	conversationID := openThread(t, a, bob.ID)

	incoming, err := h.stores.Messages.Create(ctx, conversationID, bob.ID, "are you there?")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := h.stores.Messages.ListByConversation(ctx, conversationID)
		return err == nil && len(stored) == 1 && stored[0].Read
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		messages, _ := a.Chat().Messages(conversationID)
		return len(messages) == 1 && messages[0].ID == incoming.ID && messages[0].Read
	}, waitFor, tick)
	assert.Zero(t, a.Chat().UnreadCount())
}

func TestRealtimeDeleteRemovesMessageFromThread(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()

	a := h.session(t, alice.ID)
	conversationID := openThread(t, a, bob.ID)

	kept, err := h.stores.Messages.Create(ctx, conversationID, bob.ID, "keep")
	require.NoError(t, err)
	removed, err := h.stores.Messages.Create(ctx, conversationID, bob.ID, "remove")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		messages, _ := a.Chat().Messages(conversationID)
		return len(messages) == 2
	}, waitFor, tick)

	change, err := realtime.NewChange(tableMessages, realtime.EventDelete, nil, removed)
	require.NoError(t, err)
	h.broker.Publish(change)

	require.Eventually(t, func() bool {
		messages, _ := a.Chat().Messages(conversationID)
		return len(messages) == 1
	}, waitFor, tick)
	messages, _ := a.Chat().Messages(conversationID)
	assert.Equal(t, []string{kept.ID}, messageIDs(messages))
}
