package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ritgame/apiserver/config"
	"github.com/ritgame/apiserver/internal/handlers"
	"github.com/ritgame/apiserver/internal/mq"
	"github.com/ritgame/apiserver/internal/services"
	"github.com/ritgame/apiserver/internal/storage"
	"github.com/ritgame/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      store.UserStore
	mq         *mq.MQ
	logger     *slog.Logger
}

// New opens the configured store, message queue and object storage and
// builds the router. Only the store is mandatory.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("RIT_API_KEY is required")
	}

	userStore, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("user store ready", "backend", cfg.Store.Backend)

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = userStore.Close()
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = userStore.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, err
	}

	userService := services.NewUserService(userStore, logger)
	if queue != nil {
		userService.WithEvents(queue, cfg.MQ.Channel)
		logger.Info("user events enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
	}

	var objectStore services.ObjectStore
	if objects != nil {
		objectStore = objects
		logger.Info("media storage enabled", "backend", cfg.Storage.Backend, "bucket", objects.Bucket())
	}
	mediaService := services.NewMediaService(userService, objectStore, cfg.Storage.BaseURL)

	router := NewRouter(userService, mediaService, cfg.APIKey, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 3000
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		store:      userStore,
		mq:         queue,
		logger:     logger,
	}, nil
}

// NewRouter mounts every route under /api/v1 plus /healthz.
func NewRouter(users *services.UserService, media *services.MediaService, apiKey string, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/test_connection", handlers.TestConnection)
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, users, media, handlers.RequireAPIKey(apiKey), logger)
		})
		handlers.PlaceholderRouter(r)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the store and queue.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		if closeErr := s.mq.Close(); closeErr != nil {
			s.logger.Warn("close message queue", "error", closeErr)
		}
	}
	if s.store != nil {
		if closeErr := s.store.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}
