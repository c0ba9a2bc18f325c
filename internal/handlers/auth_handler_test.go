package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/saeid-a/MedLinkBack/internal/models"
)

func TestDevTokenAndMe(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.store.Profiles(), "test-secret")
	env.app.Post("/api/auth/dev-token", handler.DevToken)
	env.app.Get("/api/auth/me", handler.Me)

	alice := env.profile("Alice Adams")

	resp := env.do(t, http.MethodPost, "/api/auth/dev-token", "", fmt.Sprintf(`{"user_id":%q}`, alice.ID))
	expectStatus(t, resp, http.StatusCreated)
	var issued struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	decode(t, resp, &issued)
	if issued.Token == "" || issued.ExpiresIn <= 0 {
		t.Fatalf("unexpected token response: %+v", issued)
	}

	resp = env.do(t, http.MethodPost, "/api/auth/dev-token", "", `{"user_id":"nope"}`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = env.do(t, http.MethodPost, "/api/auth/dev-token", "", `{"user_id":"00000000-0000-0000-0000-000000000000"}`)
	expectStatus(t, resp, http.StatusNotFound)

	resp = env.do(t, http.MethodGet, "/api/auth/me", alice.ID, "")
	expectStatus(t, resp, http.StatusOK)
	var me struct {
		User struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
		Profile models.Profile `json:"profile"`
	}
	decode(t, resp, &me)
	if me.User.ID != alice.ID || me.User.Role != "member" || me.Profile.FullName != "Alice Adams" {
		t.Fatalf("unexpected me response: %+v", me)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/auth/me", "", ""), http.StatusUnauthorized)
}
