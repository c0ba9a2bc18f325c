package handlers

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/saeid-a/MedLinkBack/internal/models"
)

func registerChatRoutes(env *testEnv) {
	chat := NewChatHandler(env.registry)
	windows := NewWindowHandler(env.registry)

	env.app.Get("/api/v1/conversations", chat.ListConversations)
	env.app.Post("/api/v1/conversations", chat.StartConversation)
	env.app.Delete("/api/v1/conversations/:id", chat.DeleteConversation)
	env.app.Get("/api/v1/conversations/:id/messages", chat.GetMessages)
	env.app.Post("/api/v1/conversations/:id/messages", chat.SendMessage)
	env.app.Post("/api/v1/conversations/:id/read", chat.MarkRead)
	env.app.Get("/api/v1/conversations/:id/draft", chat.GetDraft)
	env.app.Put("/api/v1/conversations/:id/draft", chat.SetDraft)
	env.app.Post("/api/v1/users/:id/messages", chat.MessageUser)

	env.app.Get("/api/v1/windows", windows.ListWindows)
	env.app.Post("/api/v1/windows", windows.OpenWindow)
	env.app.Delete("/api/v1/windows/:id", windows.CloseWindow)
	env.app.Post("/api/v1/windows/:id/minimize", windows.ToggleMinimize)
}

func TestStartConversationAndSendThroughWindow(t *testing.T) {
	env := newTestEnv(t)
	registerChatRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	resp := env.do(t, http.MethodPost, "/api/v1/conversations", alice.ID, fmt.Sprintf(`{"user_id":%q}`, bob.ID))
	expectStatus(t, resp, http.StatusCreated)
	var started struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decode(t, resp, &started)
	conversationID := started.Conversation.ID
	if conversationID == "" {
		t.Fatalf("expected conversation id")
	}

	path := "/api/v1/conversations/" + conversationID + "/messages"
	resp = env.do(t, http.MethodPost, path, alice.ID, `{"content":"hello"}`)
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodPost, "/api/v1/windows", alice.ID, fmt.Sprintf(`{"conversation_id":%q}`, conversationID))
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodPost, path, alice.ID, `{"content":"  hello  "}`)
	expectStatus(t, resp, http.StatusCreated)
	var sent struct {
		Message models.Message `json:"message"`
	}
	decode(t, resp, &sent)
	if sent.Message.Content != "hello" || sent.Message.Pending() {
		t.Fatalf("expected confirmed trimmed message, got %+v", sent.Message)
	}

	resp = env.do(t, http.MethodPost, path, alice.ID, `{"content":"   "}`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodGet, path, alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var listed struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, resp, &listed)
	if len(listed.Messages) != 1 || listed.Messages[0].ID != sent.Message.ID {
		t.Fatalf("unexpected messages: %+v", listed.Messages)
	}
}

func TestGetMessagesPagesFromNewest(t *testing.T) {
	env := newTestEnv(t)
	registerChatRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	conversation, err := env.store.Conversations().Create(t.Context(), alice.ID, bob.ID, time.Now())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if _, err := env.store.Messages().Create(t.Context(), conversation.ID, bob.ID, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("Create message: %v", err)
		}
	}

	resp := env.do(t, http.MethodGet, "/api/v1/conversations/"+conversation.ID+"/messages?page=1&limit=2", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var body struct {
		Messages   []models.Message      `json:"messages"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	decode(t, resp, &body)
	if len(body.Messages) != 2 || body.Messages[0].Content != "m4" || body.Messages[1].Content != "m5" {
		t.Fatalf("expected newest page [m4 m5], got %+v", body.Messages)
	}
	if body.Pagination.Total != 5 || body.Pagination.TotalPages != 3 {
		t.Fatalf("unexpected pagination: %+v", body.Pagination)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/conversations/"+conversation.ID+"/messages?page=3&limit=2", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &body)
	if len(body.Messages) != 1 || body.Messages[0].Content != "m1" {
		t.Fatalf("expected oldest page [m1], got %+v", body.Messages)
	}
}

func TestConversationAccessIsLimitedToParticipants(t *testing.T) {
	env := newTestEnv(t)
	registerChatRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")
	carol := env.profile("Carol Chen")

	conversation, err := env.store.Conversations().Create(t.Context(), alice.ID, bob.ID, time.Now())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resp := env.do(t, http.MethodGet, "/api/v1/conversations/"+conversation.ID+"/messages", carol.ID, "")
	expectStatus(t, resp, http.StatusForbidden)

	resp = env.do(t, http.MethodPost, "/api/v1/windows", carol.ID, fmt.Sprintf(`{"conversation_id":%q}`, conversation.ID))
	expectStatus(t, resp, http.StatusForbidden)

	resp = env.do(t, http.MethodGet, "/api/v1/conversations/00000000-0000-0000-0000-000000000000/messages", alice.ID, "")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestStartConversationValidation(t *testing.T) {
	env := newTestEnv(t)
	registerChatRoutes(env)
	alice := env.profile("Alice Adams")

	resp := env.do(t, http.MethodPost, "/api/v1/conversations", alice.ID, `{"user_id":""}`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/v1/conversations", alice.ID, `{"user_id":`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/v1/conversations", alice.ID, fmt.Sprintf(`{"user_id":%q}`, alice.ID))
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestMessageUserCreatesConversationAndSends(t *testing.T) {
	env := newTestEnv(t)
	registerChatRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	resp := env.do(t, http.MethodPost, "/api/v1/users/"+bob.ID+"/messages", alice.ID, `{"content":"are you free?"}`)
	expectStatus(t, resp, http.StatusCreated)

	resp = env.do(t, http.MethodGet, "/api/v1/windows", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var body struct {
		Windows []models.ChatWindow `json:"windows"`
	}
	decode(t, resp, &body)
	if len(body.Windows) != 1 {
		t.Fatalf("expected one open window, got %+v", body.Windows)
	}

	conversation, err := env.store.Conversations().FindBetween(t.Context(), alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("FindBetween: %v", err)
	}
	if body.Windows[0].Conversation.ID != conversation.ID {
		t.Fatalf("expected window for %s, got %s", conversation.ID, body.Windows[0].Conversation.ID)
	}
}

func TestDraftsFollowTheWindow(t *testing.T) {
	env := newTestEnv(t)
	registerChatRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	conversation, err := env.store.Conversations().Create(t.Context(), alice.ID, bob.ID, time.Now())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	draftPath := "/api/v1/conversations/" + conversation.ID + "/draft"

	resp := env.do(t, http.MethodPut, draftPath, alice.ID, `{"text":"half a thought"}`)
	expectStatus(t, resp, http.StatusNotFound)

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/windows", alice.ID, fmt.Sprintf(`{"conversation_id":%q}`, conversation.ID)), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPut, draftPath, alice.ID, `{"text":"half a thought"}`), http.StatusNoContent)

	resp = env.do(t, http.MethodGet, draftPath, alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var draft struct {
		Text string `json:"text"`
	}
	decode(t, resp, &draft)
	if draft.Text != "half a thought" {
		t.Fatalf("expected draft text, got %q", draft.Text)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/windows/"+conversation.ID, alice.ID, ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/windows/"+conversation.ID, alice.ID, ""), http.StatusNotFound)

	resp = env.do(t, http.MethodGet, draftPath, alice.ID, "")
	decode(t, resp, &draft)
	if draft.Text != "" {
		t.Fatalf("expected draft dropped with window, got %q", draft.Text)
	}
}

func TestMarkReadClearsUnread(t *testing.T) {
	env := newTestEnv(t)
	registerChatRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	conversation, err := env.store.Conversations().Create(t.Context(), alice.ID, bob.ID, time.Now())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := env.store.Messages().Create(t.Context(), conversation.ID, bob.ID, "ping"); err != nil {
		t.Fatalf("Create message: %v", err)
	}

	resp := env.do(t, http.MethodPost, "/api/v1/conversations/"+conversation.ID+"/read", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var body struct {
		UnreadCount int `json:"unread_count"`
	}
	decode(t, resp, &body)
	if body.UnreadCount != 0 {
		t.Fatalf("expected no unread messages, got %d", body.UnreadCount)
	}
}

func TestDeleteConversationHidesItForCaller(t *testing.T) {
	env := newTestEnv(t)
	registerChatRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	conversation, err := env.store.Conversations().Create(t.Context(), alice.ID, bob.ID, time.Now())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/conversations/"+conversation.ID, alice.ID, ""), http.StatusNoContent)

	resp := env.do(t, http.MethodGet, "/api/v1/conversations", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var body struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	decode(t, resp, &body)
	if len(body.Conversations) != 0 {
		t.Fatalf("expected conversation hidden, got %+v", body.Conversations)
	}

	stored, err := env.store.Conversations().GetByID(t.Context(), conversation.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.DeletedBy(alice.ID) || stored.DeletedBy(bob.ID) {
		t.Fatalf("expected only alice's flag set, got %+v", stored)
	}
}
