package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/config"
	"github.com/zhouzirui/z-chat/backend/internal/handler"
	"github.com/zhouzirui/z-chat/backend/internal/logging"
	"github.com/zhouzirui/z-chat/backend/internal/metrics"
	"github.com/zhouzirui/z-chat/backend/internal/realtime"
	"github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/store/blob"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	blobs, err := openBlobStore(cfg.Blob, logger)
	if err != nil {
		logger.Fatal("blob_store_open_failed", zap.String("backend", cfg.Blob.Backend), zap.Error(err))
	}
	defer blobs.Close()

	var m *metrics.Metrics
	var hubObserver realtime.Observer
	chatOpts := []chat.Option{
		chat.WithLogger(logger),
		chat.WithHideExistence(cfg.Chat.HideExistence),
		chat.WithMaxPhotoBytes(cfg.Chat.MaxPhotoBytes),
		chat.WithSearchLimit(cfg.Chat.SearchLimit),
	}
	if cfg.Metrics.Enabled {
		m = metrics.New()
		hubObserver = m
		chatOpts = append(chatOpts, chat.WithObserver(m))
	} else {
		logger.Info("metrics_disabled")
	}

	hub := realtime.NewHub(logger, hubObserver)
	chatService := chat.NewService(blobs, append(chatOpts, chat.WithPublisher(hub))...)

	router := handler.NewRouter(chatService, hub, m, logger, handler.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigin:  cfg.Server.AllowedOrigin,
		MaxPhotoBytes:  cfg.Chat.MaxPhotoBytes,
		RateLimitRPS:   cfg.Limits.RPS,
		RateLimitBurst: cfg.Limits.Burst,
	})

	startServer(ctx, cfg.Server, router, logger)
}

func openBlobStore(cfg config.BlobConfig, logger *zap.Logger) (blob.Store, error) {
	if cfg.Backend == config.BlobBackendPebble {
		logger.Info("blob_store_pebble", zap.String("path", cfg.PebblePath))
		return blob.OpenPebble(cfg.PebblePath, logger)
	}
	logger.Info("blob_store_memory")
	return blob.NewMemoryStore(), nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(logger),
	}

	logger.Info("Z Chat backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
