package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwalitptl/hrm-api/internal/config"
	messageHandler "github.com/jwalitptl/hrm-api/internal/handler/message"
	notificationHandler "github.com/jwalitptl/hrm-api/internal/handler/notification"
	wsHandler "github.com/jwalitptl/hrm-api/internal/handler/ws"
	"github.com/jwalitptl/hrm-api/internal/hub"
	"github.com/jwalitptl/hrm-api/internal/middleware"
	"github.com/jwalitptl/hrm-api/internal/repository/postgres"
	"github.com/jwalitptl/hrm-api/internal/router"
	chatService "github.com/jwalitptl/hrm-api/internal/service/chat"
	fanoutService "github.com/jwalitptl/hrm-api/internal/service/fanout"
	"github.com/jwalitptl/hrm-api/pkg/auth"
	"github.com/jwalitptl/hrm-api/pkg/logger"
	redisBroker "github.com/jwalitptl/hrm-api/pkg/messaging/redis"
	"github.com/jwalitptl/hrm-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := zerologLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	l := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		l.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redisBroker.NewRedisBroker(redisBroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, l.Zerolog())
	if err != nil {
		l.Fatal(err, "failed to connect to redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("hrm_delivery")

	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)
	messageRepo := postgres.NewMessageRepository(base)
	groupRepo := postgres.NewGroupRepository(base)

	fanoutSvc := fanoutService.NewService(notificationRepo, userRepo, m)
	chatSvc := chatService.NewService(messageRepo, groupRepo, userRepo)

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	authMiddleware := middleware.NewAuthMiddleware(verifier, cfg.Hub.TokenCacheTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pushHub := hub.New(l, m)
	go pushHub.Run(ctx)
	go func() {
		if err := pushHub.Consume(ctx, broker); err != nil && ctx.Err() == nil {
			l.Fatal(err, "hub consumer stopped")
		}
	}()

	engine := router.Setup(cfg, db, router.Handlers{
		Notification: notificationHandler.NewHandler(fanoutSvc),
		Message:      messageHandler.NewHandler(chatSvc),
		WS:           wsHandler.NewHandler(pushHub, authMiddleware, l, cfg.Server.AllowedOrigins),
		Auth:         authMiddleware,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		l.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "forced shutdown")
	}
	l.Info("server stopped")
}

func zerologLevel(s string) (logger.Level, error) {
	switch s {
	case "debug":
		return logger.DebugLevel, nil
	case "", "info":
		return logger.InfoLevel, nil
	case "warn":
		return logger.WarnLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	default:
		return logger.InfoLevel, fmt.Errorf("unknown level %q", s)
	}
}
