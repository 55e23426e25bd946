package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homefind/internal/app/notify"
	appoutbox "homefind/internal/app/outbox"
	authsvc "homefind/internal/app/services/auth"
	chatsvc "homefind/internal/app/services/chat"
	domainauth "homefind/internal/domain/auth"
	domainchat "homefind/internal/domain/chat"
	domainuser "homefind/internal/domain/user"
	"homefind/internal/infra/broker/kafka"
	"homefind/internal/infra/config"
	infmongo "homefind/internal/infra/db/mongo"
	ginserver "homefind/internal/infra/http/gin"
	"homefind/internal/infra/obs"
	infraoutbox "homefind/internal/infra/outbox"
	"homefind/internal/infra/security"
	"homefind/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Error("application wiring failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	hub      *notify.Hub
	worker   *infraoutbox.Worker
	producer *kafka.Producer
	ready    func() error
}

func buildApplication(cfg config.Config, logger *slog.Logger) (application, error) {
	hub := notify.NewHub()

	var (
		units    domainchat.Factory
		box      appoutbox.Outbox
		users    domainuser.Repository
		sessions domainauth.SessionStore
		worker   *infraoutbox.Worker
		producer *kafka.Producer
		ready    = func() error { return nil }
	)

	if cfg.MongoURI != "" {
		client, err := infmongo.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, err
		}
		units = infmongo.Factory{
			DB:               client.DB,
			ConversationRepo: infmongo.NewConversationRepository(client.DB),
			MessageRepo:      infmongo.NewMessageRepository(client.DB),
		}
		users = infmongo.NewUserRepository(client.DB)
		sessions = infmongo.NewSessionStore(client.DB)
		store := infraoutbox.NewStore(client.DB)
		box = store
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		if len(cfg.KafkaBrokers) > 0 {
			producer, err = kafka.NewProducer(cfg.KafkaBrokers, nil)
			if err != nil {
				return application{}, err
			}
			worker = &infraoutbox.Worker{
				Store:       store,
				Producer:    producer,
				Interval:    cfg.OutboxPollInterval,
				TopicPrefix: cfg.KafkaTopicPrefix,
				Backoff:     cfg.RetryBackoff,
			}
		}
	} else {
		logger.Warn("MONGO_URI not set, running on in-memory stores")
		units = memory.Factory{
			ConversationRepo: memory.NewConversationRepository(),
			MessageRepo:      memory.NewMessageRepository(),
		}
		box = memory.NewOutbox()
		users = memory.NewUserRepository()
		sessions = memory.NewSessionStore()
	}

	chatService := &chatsvc.Service{
		Units:   units,
		Outbox:  box,
		Encoder: appoutbox.JSONEventEncoder{},
		Hub:     hub,
		Logger:  logger,
	}
	authService := &authsvc.Service{
		Users:      users,
		Sessions:   sessions,
		Passwords:  security.BcryptHasher{Cost: cfg.BcryptCost},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}

	return application{
		handlers: ginserver.Handlers{
			Chat:           ginserver.ChatHandler{Service: chatService, Logger: logger},
			Auth:           ginserver.AuthHandler{Service: authService, Logger: logger},
			AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
		},
		hub:      hub,
		worker:   worker,
		producer: producer,
		ready:    ready,
	}, nil
}

func (a application) close(logger *slog.Logger) {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Error("kafka producer close failed", "error", err)
		}
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
