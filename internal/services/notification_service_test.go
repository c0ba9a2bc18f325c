package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saeid-a/MedLinkBack/internal/models"
	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestPickActor(t *testing.T) {
	candidates := []models.Profile{
		{ID: "c", FullName: "Ada"},
		{ID: "b", FullName: "Ada Lovelace"},
		{ID: "a", FullName: "Adam Smith"},
	}

	cases := []struct {
		message string
		want    string
	}{
		{"Ada Lovelace liked your post", "b"},
		{"ada lovelace commented on your post", "b"},
		{"Ada replied to you", "c"},
		{"Adam Smith sent you a connection request", "a"},
		{"Adalbert liked your post", "a"},
	}
	for _, tc := range cases {
		got := pickActor(tc.message, candidates)
		if got == nil || got.ID != tc.want {
			t.Fatalf("%q: expected actor %s, got %+v", tc.message, tc.want, got)
		}
	}

	if pickActor("anything", nil) != nil {
		t.Fatal("expected no actor without candidates")
	}
}

func TestLoadEnrichesNotifications(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	ada := h.profile("Ada Lovelace")
	h.profile("Ada King")
	ctx := context.Background()

	post := h.store.AddPost(models.PostSnapshot{AuthorID: alice.ID, Content: "Morning rounds"})
	comment := h.store.AddComment(models.CommentSnapshot{PostID: post.ID, AuthorID: ada.ID, Content: "Great read"})

	_, err := h.stores.Notifications.Create(ctx, models.NewNotification{
		UserID:            alice.ID,
		Message:           "Ada Lovelace liked your post",
		Type:              "post_like",
		RelatedEntityType: strPtr(models.RelatedEntityPost),
		RelatedEntityID:   &post.ID,
	})
	require.NoError(t, err)
	_, err = h.stores.Notifications.Create(ctx, models.NewNotification{
		UserID:            alice.ID,
		ActorID:           &ada.ID,
		Message:           "Someone commented on your post",
		Type:              "post_comment",
		RelatedEntityType: strPtr(models.RelatedEntityComment),
		RelatedEntityID:   &comment.ID,
	})
	require.NoError(t, err)
	_, err = h.stores.Notifications.Create(ctx, models.NewNotification{
		UserID:            alice.ID,
		Message:           "Nobody in particular did something",
		Type:              "misc",
		RelatedEntityType: strPtr(models.RelatedEntityPost),
		RelatedEntityID:   strPtr("00000000-0000-0000-0000-000000000000"),
	})
	require.NoError(t, err)

	a := h.session(t, alice.ID)
	items := a.Notifications().Notifications()
	require.Len(t, items, 3)

	// Newest first.
	assert.Equal(t, "misc", items[0].Type)
	assert.Nil(t, items[0].Actor)
	assert.Nil(t, items[0].RelatedPost)

	require.NotNil(t, items[1].Actor)
	assert.Equal(t, ada.ID, items[1].Actor.ID)
	require.NotNil(t, items[1].RelatedComment)
	assert.Equal(t, "Great read", items[1].RelatedComment.Content)

	require.NotNil(t, items[2].Actor)
	assert.Equal(t, ada.ID, items[2].Actor.ID)
	require.NotNil(t, items[2].RelatedPost)
	assert.Equal(t, post.ID, items[2].RelatedPost.ID)

	assert.Equal(t, 3, a.Notifications().UnreadCount())
}

func TestPushedNotificationsKeepNewestTwenty(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	ctx := context.Background()

	for i := 0; i < NotificationLimit; i++ {
		_, err := h.stores.Notifications.Create(ctx, models.NewNotification{
			UserID:  alice.ID,
			Message: fmt.Sprintf("update %d", i),
			Type:    "misc",
		})
		require.NoError(t, err)
	}

	a := h.session(t, alice.ID)
	require.Len(t, a.Notifications().Notifications(), NotificationLimit)

	latest, err := h.stores.Notifications.Create(ctx, models.NewNotification{
		UserID:  alice.ID,
		Message: "latest",
		Type:    "misc",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items := a.Notifications().Notifications()
		return len(items) == NotificationLimit && items[0].ID == latest.ID
	}, waitFor, tick)
	items := a.Notifications().Notifications()
	assert.Equal(t, "update 1", items[len(items)-1].Message)
}

func TestNotificationMutationsApplyLocally(t *testing.T) {
	h := newHarness(t)
	alice := h.profile("Alice Adams")
	bob := h.profile("Bob Brown")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		created, err := h.stores.Notifications.Create(ctx, models.NewNotification{
			UserID:  alice.ID,
			Message: fmt.Sprintf("update %d", i),
			Type:    "misc",
		})
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	a := h.session(t, alice.ID)
	b := h.session(t, bob.ID)
	notifications := a.Notifications()

	require.NoError(t, notifications.MarkAsRead(ctx, ids[0]))
	assert.Equal(t, 2, notifications.UnreadCount())

	assert.ErrorIs(t, b.Notifications().MarkAsRead(ctx, ids[1]), apperrors.ErrNotificationNotFound)
	assert.ErrorIs(t, b.Notifications().Delete(ctx, ids[1]), apperrors.ErrNotificationNotFound)

	require.NoError(t, notifications.Delete(ctx, ids[1]))
	assert.Len(t, notifications.Notifications(), 2)

	require.NoError(t, notifications.MarkAllAsRead(ctx))
	assert.Zero(t, notifications.UnreadCount())

	require.NoError(t, notifications.ClearAll(ctx))
	assert.Empty(t, notifications.Notifications())

	stored, err := h.stores.Notifications.ListRecent(ctx, alice.ID, NotificationLimit)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
