package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/VallejoLeonardo/alumnosb/config"
	"github.com/VallejoLeonardo/alumnosb/internal/auth"
	"github.com/VallejoLeonardo/alumnosb/internal/db"
	"github.com/VallejoLeonardo/alumnosb/internal/handlers"
	"github.com/VallejoLeonardo/alumnosb/internal/mq"
	"github.com/VallejoLeonardo/alumnosb/internal/services"
	"github.com/VallejoLeonardo/alumnosb/internal/storage"
	"github.com/VallejoLeonardo/alumnosb/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	events, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	photos, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if photos != nil {
		if err := photos.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, err
		}
	}

	studentRepo := store.NewStudentRepository(dbConn)
	messageRepo := store.NewMessageRepository(dbConn)

	studentService := services.NewStudentService(studentRepo, events)
	messageService := services.NewMessageService(messageRepo, studentRepo, events)

	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	captcha := auth.NewRecaptchaVerifier(cfg.Auth.RecaptchaSecret, cfg.Auth.RecaptchaURL, cfg.Auth.RecaptchaTimeout)

	var assertions handlers.AssertionVerifier
	if strings.TrimSpace(cfg.Auth.GoogleClientID) != "" {
		assertions = auth.NewGoogleVerifier(cfg.Auth.GoogleClientID, cfg.Auth.GoogleTimeout)
	} else {
		slog.Warn("GOOGLE_CLIENT_ID not set, google login disabled")
	}

	authMiddleware := handlers.RequireAuth(issuer)
	studentOnly := handlers.RequireRole(auth.RoleStudent)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		authHandler := handlers.NewAuthHandler(studentService, issuer, captcha, assertions)
		handlers.AuthRouter(r, authHandler, authMiddleware)
	})
	router.Route("/students", func(r chi.Router) {
		r.Use(authMiddleware, studentOnly)
		handlers.StudentRouter(r, studentService, photos)
	})
	router.Route("/messages", func(r chi.Router) {
		r.Use(authMiddleware, studentOnly)
		handlers.MessageRouter(r, messageService)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		events:     events,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.events != nil {
		_ = s.events.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
