package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"superfilm-backend/internal/config"
	"superfilm-backend/internal/database"
	"superfilm-backend/internal/handler"
	"superfilm-backend/internal/middleware"
	"superfilm-backend/internal/repository"
	"superfilm-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()

	// Database
	db, err := database.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(context.Background(), db, cfg.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied successfully")

	// Repositories
	msgRepo := repository.NewMessageRepository(db)
	pollRepo := repository.NewPollRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	readRepo := repository.NewReadStateRepository(db)
	clubRepo := repository.NewClubRepository(db)

	// Unread-badge cache. Redis when configured, in-process otherwise.
	var cache service.CounterCache
	if cfg.RedisAddr != "" {
		cache = service.NewRedisCache(cfg.RedisAddr)
	} else {
		cache = service.NewMemoryCache()
	}

	// Cross-instance event feed. Every instance stamps what it publishes and
	// skips its own events on consume; the hub already delivered those.
	instanceID := uuid.NewString()
	var inner service.EventFeed
	switch cfg.FeedMode {
	case "kafka":
		inner = service.NewKafkaFeed(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "poll":
		inner = service.NewPollFeed(notifRepo, msgRepo, pollRepo, cfg.PollInterval)
	default:
		inner = service.NewLocalFeed()
	}
	feed := service.NewOriginFeed(inner, instanceID)
	defer feed.Close()

	// Hub and presence
	hub := service.NewHub()
	presence := service.NewPresenceTracker(hub, cfg.PresenceWindow, cfg.PresenceSweep)

	// Collaborator clients
	imageStore := service.NewHTTPImageStore(cfg.ImageStoreURL)
	reportSink := service.NewWebhookReportSink(cfg.ReportWebhookURL)
	policy := service.NewBlocklistPolicy(cfg.BlockedTerms)

	// Services
	notifSvc := service.NewNotificationService(notifRepo, clubRepo, cache, hub, feed, cfg.SyntheticInterval)
	msgSvc := service.NewMessageService(msgRepo, clubRepo, imageStore, reportSink, policy, hub, feed)
	pollSvc := service.NewPollService(pollRepo, clubRepo, hub, feed)
	clubSvc := service.NewClubService(clubRepo, notifSvc)
	readSvc := service.NewReadStateTracker(readRepo, msgRepo)

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(cors.New())

	// Health
	healthH := handler.NewHealthHandler(db, hub)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)

	// API v1, JWT-protected
	v1 := app.Group("/api/v1", middleware.Auth(cfg.JWTSecret))

	// Channels
	chatH := handler.NewChatHandler(msgSvc, presence, readSvc)
	channels := v1.Group("/channels")
	channels.Post("/:id/messages", middleware.RateLimit(30, time.Minute), chatH.SendMessage)
	channels.Get("/:id/messages", chatH.History)
	channels.Get("/:id/presence", chatH.Presence)
	channels.Post("/:id/read", chatH.MarkViewed)
	channels.Get("/:id/unread", chatH.UnreadMessages)

	// Messages
	messages := v1.Group("/messages")
	messages.Delete("/:id", chatH.SoftDelete)
	messages.Delete("/:id/hard", chatH.HardDelete)
	messages.Post("/:id/report", middleware.RateLimit(10, time.Minute), chatH.Report)

	// Polls
	pollH := handler.NewPollHandler(pollSvc)
	channels.Post("/:id/polls", middleware.RateLimit(10, time.Minute), pollH.Create)
	polls := v1.Group("/polls")
	polls.Get("/:id", pollH.Get)
	polls.Post("/:id/votes", middleware.RateLimit(60, time.Minute), pollH.CastVote)
	polls.Post("/:id/close", pollH.Close)
	polls.Get("/:id/tally", pollH.Tally)

	// Notifications
	notifH := handler.NewNotificationHandler(notifSvc)
	notifications := v1.Group("/notifications")
	notifications.Get("/", notifH.Feed)
	notifications.Get("/unread-count", notifH.UnreadCount)
	notifications.Put("/read-all", notifH.MarkAllRead)
	notifications.Put("/:id/read", notifH.MarkRead)

	// Clubs
	clubH := handler.NewClubHandler(clubSvc)
	clubs := v1.Group("/clubs")
	clubs.Post("/:id/requests", middleware.RateLimit(5, time.Minute), clubH.RequestJoin)
	clubs.Post("/:id/requests/:rid/respond", clubH.Respond)

	// WebSocket
	wsH := handler.NewWSHandler(hub, presence, clubRepo, cfg.JWTSecret)
	app.Get("/ws", wsH.Upgrade)

	// Background loops
	bgCtx, bgCancel := context.WithCancel(context.Background())
	go hub.Run()
	go presence.Run()
	go feed.Run(bgCtx, hub.Broadcast)
	go notifSvc.Run(bgCtx, hub.ConnectedUsers)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Printf("Superfilm realtime backend running on :%s (%s, feed=%s)", cfg.Port, cfg.Env, cfg.FeedMode)

	<-quit
	log.Println("Shutting down...")
	_ = app.ShutdownWithTimeout(5 * time.Second)
	bgCancel()
	presence.Stop()
	hub.Shutdown()
	log.Println("Server stopped")
}
