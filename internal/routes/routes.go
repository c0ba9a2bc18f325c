package routes

import (
	"log/slog"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saeid-a/MedLinkBack/internal/config"
	"github.com/saeid-a/MedLinkBack/internal/handlers"
	"github.com/saeid-a/MedLinkBack/internal/middleware"
	"github.com/saeid-a/MedLinkBack/internal/services"
	chatws "github.com/saeid-a/MedLinkBack/internal/websocket"
)

// Deps is what the HTTP surface needs from the running server.
type Deps struct {
	Profiles services.ProfileReader
	Registry *services.SessionRegistry
	Hub      *chatws.Hub
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Deps) error {
	if err := registerDocsRoutes(app, cfg); err != nil {
		return err
	}

	if cfg.EnableMetrics && deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	authHandler := handlers.NewAuthHandler(deps.Profiles, cfg.JWTSecret)
	sessionHandler := handlers.NewSessionHandler(deps.Registry, deps.Hub)
	chatHandler := handlers.NewChatHandler(deps.Registry)
	windowHandler := handlers.NewWindowHandler(deps.Registry)
	connectionHandler := handlers.NewConnectionHandler(deps.Registry)
	notificationHandler := handlers.NewNotificationHandler(deps.Registry)
	profileHandler := handlers.NewProfileHandler(deps.Profiles, deps.Registry)
	streamHandler := handlers.NewStreamHandler(deps.Registry, deps.Hub, deps.Logger)

	auth := app.Group("/api/auth")
	if cfg.AppEnv == "development" {
		auth.Post("/dev-token", authHandler.DevToken)
	}
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := app.Group("/api/v1", middleware.AuthRequired(cfg.JWTSecret))

	session := authProtected.Group("/session")
	session.Post("", sessionHandler.SignIn)
	session.Get("", sessionHandler.Snapshot)
	session.Post("/resync", sessionHandler.Resync)
	session.Delete("", sessionHandler.SignOut)

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.StartConversation)
	conversations.Get("/unread", chatHandler.UnreadCount)
	conversations.Delete("/:id", chatHandler.DeleteConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)
	conversations.Post("/:id/read", chatHandler.MarkRead)
	conversations.Get("/:id/draft", chatHandler.GetDraft)
	conversations.Put("/:id/draft", chatHandler.SetDraft)

	windows := authProtected.Group("/windows")
	windows.Get("", windowHandler.ListWindows)
	windows.Post("", windowHandler.OpenWindow)
	windows.Delete("/:id", windowHandler.CloseWindow)
	windows.Post("/:id/minimize", windowHandler.ToggleMinimize)

	connections := authProtected.Group("/connections")
	connections.Get("", connectionHandler.GetGraph)
	connections.Post("", connectionHandler.SendRequest)
	connections.Post("/:id/accept", connectionHandler.Accept)
	connections.Post("/:id/reject", connectionHandler.Reject)
	connections.Post("/:id/cancel", connectionHandler.Cancel)
	connections.Delete("/:id", connectionHandler.Remove)

	blocks := authProtected.Group("/blocks")
	blocks.Get("", connectionHandler.ListBlocked)
	blocks.Post("", connectionHandler.Block)
	blocks.Delete("/:id", connectionHandler.Unblock)

	notifications := authProtected.Group("/notifications")
	notifications.Get("", notificationHandler.List)
	notifications.Post("/read", notificationHandler.MarkAllRead)
	notifications.Delete("", notificationHandler.ClearAll)
	notifications.Post("/:id/read", notificationHandler.MarkRead)
	notifications.Delete("/:id", notificationHandler.Delete)

	users := authProtected.Group("/users")
	users.Get("/search", profileHandler.Search)
	users.Get("/:id", profileHandler.GetProfile)
	users.Post("/:id/messages", chatHandler.MessageUser)

	authProtected.Get("/stream", streamHandler.Upgrade, websocket.New(streamHandler.Handle))

	return nil
}
