package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/database"
	"github.com/noah-isme/gema-chat/internal/handler"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
	"github.com/noah-isme/gema-chat/internal/router"
	"github.com/noah-isme/gema-chat/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Redis and NATS are optional; without them search is uncached and
	// push events stay in-process.
	redisClient, err := database.ConnectRedis(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	chatRepo := repository.NewChatRepository(db)
	userRepo := repository.NewUserRepository(db)

	directory := service.NewMemberDirectory(chatRepo)
	roomRouter := realtime.NewRouter(logger)
	pusher := service.NewEventMirror(roomRouter, redisClient, natsConn, cfg.EventsChannel, logger)
	presence := realtime.NewPresence(directory, pusher, logger)
	typing := realtime.NewTypingRelay(directory, pusher, logger)
	decoder, err := realtime.NewSignalDecoder()
	if err != nil {
		log.Fatalf("failed to compile signal schema: %v", err)
	}

	chatService := service.NewChatService(chatRepo, userRepo, pusher, validate, logger, service.ChatServiceOptions{
		PageSize: cfg.ChatPageSize,
	})
	userService := service.NewUserService(userRepo, redisClient, cfg.EventsChannel, cfg.SearchCacheTTL, validate, logger)
	realtimeService := service.NewRealtimeService(roomRouter, presence, typing, directory, decoder, service.RealtimeOptions{
		SendBuffer:   cfg.WSSendBuffer,
		PingInterval: cfg.WSPingInterval,
	}, logger)

	sendLimiter := middleware.RateLimit("messages", cfg.MessagesPerMinute, time.Minute)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:        &logger,
		AccessLogging: cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:        handler.NewChatHandler(chatService, logger),
		MessageHandler:     handler.NewMessageHandler(chatService, sendLimiter, logger),
		ParticipantHandler: handler.NewParticipantHandler(chatService, logger),
		UserHandler:        handler.NewUserHandler(userService, logger),
		RealtimeHandler:    handler.NewRealtimeHandler(realtimeService, logger),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
		OnlineCount:        presence.OnlineCount,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddress()).Msg("chat server started")
	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
