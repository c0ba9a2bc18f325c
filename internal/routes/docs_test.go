package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/MedLinkBack/internal/config"
)

func TestRegisterDocsRoutesListsRegisteredRoutes(t *testing.T) {
	app := fiber.New()
	cfg := &config.Config{AppEnv: "development", EnableDocs: true}

	if err := registerDocsRoutes(app, cfg); err != nil {
		t.Fatalf("registerDocsRoutes: %v", err)
	}
	app.Get("/api/v1/conversations", func(c *fiber.Ctx) error { return nil })

	pageReq := httptest.NewRequest(http.MethodGet, "/docs", nil)
	pageResp, err := app.Test(pageReq)
	if err != nil {
		t.Fatalf("app.Test docs page: %v", err)
	}
	defer pageResp.Body.Close()

	if pageResp.StatusCode != http.StatusOK {
		t.Fatalf("expected docs page status 200, got %d", pageResp.StatusCode)
	}
	if got := pageResp.Header.Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Fatalf("expected restrictive CSP, got %q", got)
	}
	body, _ := io.ReadAll(pageResp.Body)
	if !strings.Contains(string(body), "/api/v1/conversations") {
		t.Fatalf("expected route in docs page, got %s", body)
	}

	jsonReq := httptest.NewRequest(http.MethodGet, "/docs/routes.json", nil)
	jsonResp, err := app.Test(jsonReq)
	if err != nil {
		t.Fatalf("app.Test routes json: %v", err)
	}
	defer jsonResp.Body.Close()

	var payload struct {
		Routes []docsRoute `json:"routes"`
	}
	if err := json.NewDecoder(jsonResp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode routes: %v", err)
	}
	if len(payload.Routes) != 1 || payload.Routes[0].Path != "/api/v1/conversations" || payload.Routes[0].Method != http.MethodGet {
		t.Fatalf("expected only the api route, got %+v", payload.Routes)
	}
}

func TestRegisterDocsRoutesSkipsWhenDisabled(t *testing.T) {
	app := fiber.New()
	cfg := &config.Config{AppEnv: "production", EnableDocs: true}

	if err := registerDocsRoutes(app, cfg); err != nil {
		t.Fatalf("registerDocsRoutes: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when docs are not in development, got %d", resp.StatusCode)
	}
}
