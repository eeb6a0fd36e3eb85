// Package server is the composition root: it opens the store, media gateway,
// Google verifier and chat broker, wires them into the service and handlers,
// and owns the HTTP server lifecycle.
//
// Routes:
//
//	GET  /api/health
//	POST /api/v1/user/register          rate limited
//	POST /api/v1/user/login             rate limited
//	POST /api/v1/user/google            rate limited
//	GET  /api/v1/user/google/login      redirect flow
//	GET  /api/v1/user/google/callback   redirect flow
//	GET  /api/v1/user/logout
//	POST /api/v1/user/profile/update    session required
//	GET  /api/v1/user/me                session required
//	GET  /ws/chat                       websocket
//
// DEPENDENCY WIRING:
//
//	config.Config → openDeps → Deps{Users, Media, Verifier, Redirect, Broker}
//	Deps → service.UserService → handler.UserHandler → routes
//	Deps.Broker → chat.Hub → chat.Handler → /ws/chat
//
// openDeps picks one backend per concern from the config: STORE_DRIVER selects
// sqlite or mongo, MEDIA_DRIVER selects cloudinary or s3, GOOGLE_CLIENT_ID
// turns Google sign-in on, and REDIS_ADDR turns on cross-instance chat.
// Tests skip openDeps and call newServer with fakes.
//
// RESOURCE OWNERSHIP:
// Everything openDeps opens is appended to closers in opening order and closed
// in reverse order when Start returns. A failure halfway through closes what
// was already opened before returning the error.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sakif/job-portal/internal/auth"
	"github.com/sakif/job-portal/internal/chat"
	"github.com/sakif/job-portal/internal/config"
	"github.com/sakif/job-portal/internal/handler"
	"github.com/sakif/job-portal/internal/media"
	"github.com/sakif/job-portal/internal/middleware"
	"github.com/sakif/job-portal/internal/repository"
	mongoRepo "github.com/sakif/job-portal/internal/repository/mongo"
	sqliteRepo "github.com/sakif/job-portal/internal/repository/sqlite"
	"github.com/sakif/job-portal/internal/service"
)

const (
	// authRateLimit applies per client IP to the credential endpoints.
	authRateLimit  = 10
	authRateWindow = time.Minute

	shutdownTimeout = 30 * time.Second
)

// Deps are the external collaborators.
//
//   - Users     the credential store (required)
//   - Media     the upload gateway (required)
//   - Verifier  Google ID token verification; nil disables POST /user/google
//   - Redirect  Google authorization-code flow; nil makes /google/login 404
//   - Broker    chat fan-out across instances; nil keeps chat in-process
type Deps struct {
	Users    repository.UserRepository
	Media    media.Gateway
	Verifier service.IdentityVerifier
	Redirect handler.GoogleRedirect
	Broker   chat.Broker
}

// Server owns the router and every long-lived resource it was built with.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	hub    *chat.Hub
	// closed in reverse order on shutdown
	closers []io.Closer
}

// New opens all backends named by cfg and builds the server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	deps, closers, err := openDeps(ctx, cfg, logger)
	if err != nil {
		closeAll(closers, logger)
		return nil, err
	}

	s, err := NewWithDeps(cfg, logger, deps)
	if err != nil {
		closeAll(closers, logger)
		return nil, err
	}
	s.closers = closers
	return s, nil
}

func openDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Deps, []io.Closer, error) {
	var (
		deps    Deps
		closers []io.Closer
	)

	switch cfg.StoreDriver {
	case "mongo":
		store, err := mongoRepo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return deps, closers, fmt.Errorf("opening mongo store: %w", err)
		}
		deps.Users = store
	default:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return deps, closers, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return deps, closers, fmt.Errorf("opening sqlite store: %w", err)
		}
		deps.Users = db
	}
	closers = append(closers, deps.Users)

	switch cfg.MediaDriver {
	case "s3":
		gw, err := media.NewS3(media.S3Config{
			Bucket:        cfg.S3Bucket,
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.MediaPublicBaseURL,
		})
		if err != nil {
			return deps, closers, err
		}
		deps.Media = gw
	default:
		gw, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			return deps, closers, err
		}
		deps.Media = gw
	}

	if cfg.GoogleEnabled() {
		google, err := auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		if err != nil {
			return deps, closers, err
		}
		deps.Verifier = google
		deps.Redirect = google
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set: Google sign-in is disabled")
	}

	if cfg.RedisAddr != "" {
		broker, err := chat.NewRedisBroker(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return deps, closers, err
		}
		deps.Broker = broker
		closers = append(closers, broker)
	}

	return deps, closers, nil
}

// NewWithDeps builds the server around already opened collaborators. The
// caller keeps ownership of deps.
func NewWithDeps(cfg *config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	return newServer(cfg, logger, deps, auth.NewPasswordService())
}

// newServer takes the password service separately so tests can lower the
// bcrypt cost.
func newServer(cfg *config.Config, logger *slog.Logger, deps Deps, passwords *auth.PasswordService) (*Server, error) {
	if deps.Users == nil || deps.Media == nil {
		return nil, errors.New("server: user store and media gateway are required")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	users := service.NewUserService(deps.Users, passwords, tokens, deps.Verifier, deps.Media, logger)
	userHandler := handler.NewUserHandler(users, deps.Redirect, auth.CookieOptionsFor(cfg.AppEnv), cfg.FrontendURL, logger)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		hub:    chat.NewHub(deps.Broker, logger),
	}
	s.routes(userHandler, tokens, proxies)
	return s, nil
}

// routes installs middleware and handlers.
//
// MIDDLEWARE ORDER (outermost first):
//  1. RequestID  so every later log line can carry request_id
//  2. RealIP     rewrites RemoteAddr only for connections from TRUSTED_PROXIES
//  3. Logger     one line per request, level by status
//  4. Recoverer  inside the logger so a panic is logged as a 500
//  5. CORS       credentials allowed, origins from CORS_ORIGINS
//
// The rate limiter sits on the credential endpoints only and keys on the
// address RealIP settled on. Without trusted proxies that is the TCP peer, so
// forwarding headers sent by a client cannot buy a fresh quota.
func (s *Server) routes(users *handler.UserHandler, tokens *auth.TokenService, proxies []netip.Prefix) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RealIP(proxies))
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	r.Get("/api/health", handler.Health)

	r.Route("/api/v1/user", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(authRateLimit, authRateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(handler.TooManyRequests),
			))
			r.Post("/register", users.HandleRegister)
			r.Post("/login", users.HandleLogin)
			r.Post("/google", users.HandleGoogle)
		})

		r.Get("/logout", users.HandleLogout)
		r.Get("/google/login", users.HandleGoogleLogin)
		r.Get("/google/callback", users.HandleGoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Post("/profile/update", users.HandleUpdateProfile)
			r.Get("/me", users.HandleMe)
		})
	})

	r.Handle("/ws/chat", chat.NewHandler(s.hub, s.cfg.CORSOrigins, s.logger))
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up to
// shutdownTimeout and closes every owned resource.
//
// SHUTDOWN SEQUENCE:
//  1. signal received
//  2. srv.Shutdown stops accepting and waits for in-flight requests
//  3. the chat hub's broker subscription is cancelled
//  4. closers run in reverse order (broker, then store)
//
// Open websocket connections are hijacked and not tracked by Shutdown; they
// end when the process exits.
func (s *Server) Start() error {
	defer closeAll(s.closers, s.logger)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go func() {
		if err := s.hub.Run(hubCtx); err != nil {
			s.logger.Error("chat fan-out stopped", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("env", s.cfg.AppEnv),
			slog.String("store", s.cfg.StoreDriver),
			slog.String("media", s.cfg.MediaDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("closing resource", slog.String("error", err.Error()))
		}
	}
}
