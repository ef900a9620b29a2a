package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ecotunga/apiserver/config"
	"github.com/ecotunga/apiserver/internal/auth"
	"github.com/ecotunga/apiserver/internal/db"
	"github.com/ecotunga/apiserver/internal/handlers"
	"github.com/ecotunga/apiserver/internal/mail"
	"github.com/ecotunga/apiserver/internal/services"
	"github.com/ecotunga/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mailer     mail.Mailer
}

// New constructs a Server with its full dependency graph: database pool,
// mail dispatch backend, account service, and routes.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	mailer, err := buildMailer(ctx, cfg, log)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	sessions := auth.NewSessionIssuer(jwtSecret, auth.DefaultSessionTTL)
	userRepo := store.NewUserRepository(dbConn)
	accountService := services.NewAccountService(userRepo, mailer, sessions, cfg.FrontendURL)

	authMiddleware := handlers.RequireAuth(sessions)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Group(func(r chi.Router) {
		handlers.AccountRouter(r, accountService, log)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserAdminRouter(r, accountService, authMiddleware, log)
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
		mailer:     mailer,
	}, nil
}

func buildMailer(ctx context.Context, cfg config.Config, log *logrus.Logger) (mail.Mailer, error) {
	switch cfg.Mail.Backend {
	case config.MailBackendRabbitMQ:
		publisher, err := mail.NewRabbitMQPublisher(cfg.Mail.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mail.NewQueueMailer(publisher), nil
	case config.MailBackendPubSub:
		publisher, err := mail.NewPubSubPublisher(ctx, cfg.Mail.PubSub)
		if err != nil {
			return nil, err
		}
		return mail.NewQueueMailer(publisher), nil
	case config.MailBackendLog, "":
		return mail.NewLogMailer(log), nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if closer, ok := s.mailer.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return s.httpServer.Close()
}
