package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docspace/config"
	"docspace/config/database"
	"docspace/internal/document/repository"
	"docspace/internal/document/service"
	"docspace/internal/events"
	"docspace/pkg/logger"
	"docspace/router"
	"docspace/socket"

	"github.com/google/uuid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Sugar.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Sugar.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo := openRepository(ctx, cfg)
	defer closeRepo()

	// The hub looks documents up through the same store the API uses.
	hub := socket.NewHub(func(ctx context.Context, id string) error {
		_, err := repo.Get(ctx, id)
		return err
	})
	go hub.Run()

	sinks := events.Fanout{hub}
	if cfg.RedisAddr != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		client, err := events.ConnectRedis(connectCtx, events.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cancel()
		if err != nil {
			logger.Sugar.Fatalf("Redis: %v", err)
		}
		defer client.Close()

		bus := events.NewRedisBus(client, uuid.NewString())
		sinks = append(sinks, bus)
		go func() {
			if err := bus.Relay(ctx, hub); err != nil {
				logger.Sugar.Errorf("Event relay stopped: %v", err)
			}
		}()
	}

	docService := service.NewDocumentService(repo, sinks, cfg.CascadeQueueLen)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Setup(cfg, docService, hub),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Sugar.Infof("docspace listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("HTTP shutdown: %v", err)
	}
	// Let queued cascades finish before the store goes away.
	docService.Close()
	hub.Stop()
}

func openRepository(ctx context.Context, cfg *config.Config) (service.Repository, func()) {
	if cfg.DBDriver == config.DriverMemory {
		logger.Sugar.Warn("Using in-memory document store; data is lost on exit")
		return repository.NewMemoryRepository(), func() {}
	}

	db, err := database.Connect(cfg.PostgresDSN())
	if err != nil {
		logger.Sugar.Fatalf("Database: %v", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		logger.Sugar.Fatalf("Database: %v", err)
	}
	return repository.NewDocumentRepository(db), func() { db.Close() }
}
