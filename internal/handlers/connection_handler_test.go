package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/saeid-a/MedLinkBack/internal/models"
)

func registerSocialRoutes(env *testEnv) {
	connections := NewConnectionHandler(env.registry)
	notifications := NewNotificationHandler(env.registry)

	env.app.Get("/api/v1/connections", connections.GetGraph)
	env.app.Post("/api/v1/connections", connections.SendRequest)
	env.app.Post("/api/v1/connections/:id/accept", connections.Accept)
	env.app.Post("/api/v1/connections/:id/reject", connections.Reject)
	env.app.Post("/api/v1/connections/:id/cancel", connections.Cancel)
	env.app.Delete("/api/v1/connections/:id", connections.Remove)
	env.app.Get("/api/v1/blocks", connections.ListBlocked)
	env.app.Post("/api/v1/blocks", connections.Block)
	env.app.Delete("/api/v1/blocks/:id", connections.Unblock)

	env.app.Get("/api/v1/notifications", notifications.List)
	env.app.Post("/api/v1/notifications/read", notifications.MarkAllRead)
	env.app.Delete("/api/v1/notifications", notifications.ClearAll)
	env.app.Post("/api/v1/notifications/:id/read", notifications.MarkRead)
	env.app.Delete("/api/v1/notifications/:id", notifications.Delete)
}

func TestConnectionRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	registerSocialRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	resp := env.do(t, http.MethodPost, "/api/v1/connections", alice.ID, fmt.Sprintf(`{"user_id":%q}`, bob.ID))
	expectStatus(t, resp, http.StatusCreated)
	var created struct {
		Connection models.Connection `json:"connection"`
	}
	decode(t, resp, &created)
	if created.Connection.Status != models.ConnectionPending {
		t.Fatalf("expected pending request, got %+v", created.Connection)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/connections", alice.ID, fmt.Sprintf(`{"user_id":%q}`, bob.ID))
	expectStatus(t, resp, http.StatusConflict)

	resp = env.do(t, http.MethodPost, "/api/v1/connections/"+created.Connection.ID+"/accept", alice.ID, "")
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodPost, "/api/v1/connections/"+created.Connection.ID+"/accept", bob.ID, "")
	expectStatus(t, resp, http.StatusOK)

	resp = env.do(t, http.MethodGet, "/api/v1/connections", bob.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var graph struct {
		Connections models.ConnectionGraph `json:"connections"`
	}
	decode(t, resp, &graph)
	if len(graph.Connections.Connections) != 1 || len(graph.Connections.Incoming) != 0 {
		t.Fatalf("expected one accepted connection, got %+v", graph.Connections)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/connections/"+created.Connection.ID, bob.ID, ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/connections/"+created.Connection.ID, bob.ID, ""), http.StatusNotFound)
}

func TestSendRequestToSelfIsRejected(t *testing.T) {
	env := newTestEnv(t)
	registerSocialRoutes(env)
	alice := env.profile("Alice Adams")

	resp := env.do(t, http.MethodPost, "/api/v1/connections", alice.ID, fmt.Sprintf(`{"user_id":%q}`, alice.ID))
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/v1/connections", alice.ID, `not json`)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestBlockHidesUserInBothDirections(t *testing.T) {
	env := newTestEnv(t)
	registerSocialRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/blocks", alice.ID, fmt.Sprintf(`{"user_id":%q}`, bob.ID)), http.StatusNoContent)

	resp := env.do(t, http.MethodGet, "/api/v1/blocks", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var blocks struct {
		Blocked []string `json:"blocked"`
		Hidden  []string `json:"hidden"`
	}
	decode(t, resp, &blocks)
	if len(blocks.Blocked) != 1 || blocks.Blocked[0] != bob.ID {
		t.Fatalf("expected bob blocked, got %+v", blocks)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/connections", bob.ID, fmt.Sprintf(`{"user_id":%q}`, alice.ID))
	expectStatus(t, resp, http.StatusForbidden)

	resp = env.do(t, http.MethodGet, "/api/v1/blocks", bob.ID, "")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &blocks)
	if len(blocks.Blocked) != 0 || len(blocks.Hidden) != 1 || blocks.Hidden[0] != alice.ID {
		t.Fatalf("expected alice hidden from bob, got %+v", blocks)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/blocks/"+bob.ID, alice.ID, ""), http.StatusNoContent)
	resp = env.do(t, http.MethodPost, "/api/v1/connections", bob.ID, fmt.Sprintf(`{"user_id":%q}`, alice.ID))
	expectStatus(t, resp, http.StatusCreated)
}

func TestNotificationRoutes(t *testing.T) {
	env := newTestEnv(t)
	registerSocialRoutes(env)
	alice := env.profile("Alice Adams")
	bob := env.profile("Bob Brown")

	var ids []string
	for i := 0; i < 2; i++ {
		created, err := env.store.Notifications().Create(t.Context(), models.NewNotification{
			UserID:  alice.ID,
			Message: fmt.Sprintf("update %d", i),
			Type:    "misc",
		})
		if err != nil {
			t.Fatalf("Create notification: %v", err)
		}
		ids = append(ids, created.ID)
	}

	resp := env.do(t, http.MethodGet, "/api/v1/notifications", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var listed struct {
		Notifications []models.Notification `json:"notifications"`
		UnreadCount   int                   `json:"unread_count"`
	}
	decode(t, resp, &listed)
	if len(listed.Notifications) != 2 || listed.UnreadCount != 2 {
		t.Fatalf("unexpected notifications: %+v", listed)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/notifications/"+ids[0]+"/read", bob.ID, "")
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodPost, "/api/v1/notifications/"+ids[0]+"/read", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var unread struct {
		UnreadCount int `json:"unread_count"`
	}
	decode(t, resp, &unread)
	if unread.UnreadCount != 1 {
		t.Fatalf("expected 1 unread, got %d", unread.UnreadCount)
	}

	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/notifications/"+ids[1], alice.ID, ""), http.StatusNoContent)
	expectStatus(t, env.do(t, http.MethodPost, "/api/v1/notifications/read", alice.ID, ""), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodDelete, "/api/v1/notifications", alice.ID, ""), http.StatusNoContent)

	resp = env.do(t, http.MethodGet, "/api/v1/notifications", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &listed)
	if len(listed.Notifications) != 0 || listed.UnreadCount != 0 {
		t.Fatalf("expected notifications cleared, got %+v", listed)
	}
}
