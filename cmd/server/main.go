package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/config"
	"github.com/adi-253/skillswap/internal/handlers"
	"github.com/adi-253/skillswap/internal/logger"
	"github.com/adi-253/skillswap/internal/relay"
	"github.com/adi-253/skillswap/internal/services"
	"github.com/adi-253/skillswap/internal/websocket"
)

func main() {
	// Load configuration from environment
	cfg := config.Load()

	log, err := logger.New(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize stores
	backends, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	// Initialize services
	chat := services.NewChatService(backends.messages, backends.swaps, backends.users, cfg.MaxMessageLength, log)

	hub := websocket.NewHub(chat, log.Named("hub"))
	if cfg.NatsURL != "" {
		natsRelay, err := relay.Connect(cfg.NatsURL, cfg.NatsSubjectPrefix, cfg.InstanceID, log.Named("relay"))
		if err != nil {
			return err
		}
		defer natsRelay.Close()
		if err := natsRelay.Subscribe(hub.DeliverRemote); err != nil {
			return err
		}
		hub.SetRelay(natsRelay)
	} else {
		log.Info("NATS_URL not set, cross-instance relay disabled")
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(chat, log.Named("http"))
	wsHandler := websocket.NewHandler(hub)

	r := newRouter(cfg, log)

	// Health check endpoint
	r.Get("/health", handlers.HealthCheck(cfg.InstanceID, hub))

	// Realtime endpoint
	r.Get("/chathub", wsHandler.ServeWS)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/chat", chatHandler.Routes)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("swapchat backend starting", zap.String("addr", srv.Addr), zap.String("instance", cfg.InstanceID))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	// Hijacked websocket connections are not closed by Shutdown
	stopHub()
	return nil
}

func newRouter(cfg *config.Config, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	// CORS configuration - reads from CORS_ORIGINS env var
	log.Info("CORS allowed origins", zap.Strings("origins", cfg.CORSOrigins))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	return r
}
