// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects stores, services,
// handlers, middleware and routes, and it owns the lifecycle of everything
// that has one (database pool, real-time hub, ownership reconciler).
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlite.DB or postgres.DB          (repository.PostRepository + UserRepository)
//	  blob.LocalStore or blob.S3Store   (blob.Store) → blob.Cleaner
//	  realtime.Hub                      (service.Notifier)
//	  Guard → FeedService / AuthService / OwnershipService
//	  FeedHandler, AuthHandler, gql.Handler, realtime.Handler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/blog-feed/internal/auth"
	"github.com/sakif/blog-feed/internal/blob"
	"github.com/sakif/blog-feed/internal/config"
	"github.com/sakif/blog-feed/internal/gql"
	"github.com/sakif/blog-feed/internal/handler"
	"github.com/sakif/blog-feed/internal/middleware"
	"github.com/sakif/blog-feed/internal/realtime"
	"github.com/sakif/blog-feed/internal/repository"
	pgRepo "github.com/sakif/blog-feed/internal/repository/postgres"
	sqliteRepo "github.com/sakif/blog-feed/internal/repository/sqlite"
	"github.com/sakif/blog-feed/internal/service"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 30 * time.Second

// dataStore is what both database packages provide.
type dataStore interface {
	repository.PostRepository
	repository.UserRepository
	Close() error
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database pool, the hub and the reconciler. Serve
// closes all three on the way out, in reverse order of use.
type Server struct {
	router     *chi.Mux
	config     *config.Config
	logger     *slog.Logger
	store      dataStore
	blobs      blob.Store
	hub        *realtime.Hub
	reconciler *service.Reconciler
}

// New creates a Server from cfg. Nothing is listening yet; call Start or Serve.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// === CREATE BLOB STORE ===
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
		blobs:  blobs,
		hub:    realtime.New(realtime.DefaultBufferSize, logger),
	}

	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// openStore picks Postgres when DATABASE_URL is set, SQLite otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dataStore, error) {
	if cfg.DatabaseURL != "" {
		db, err := pgRepo.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		logger.Info("using postgres store")
		return db, nil
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
	return db, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobS3:
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("opening s3 blob store: %w", err)
		}
		return store, nil
	default:
		store, err := blob.NewLocalStore(cfg.UploadDir, "images")
		if err != nil {
			return nil, fmt.Errorf("opening local blob store: %w", err)
		}
		return store, nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /feed/posts            → list posts (page)
// GET    /feed/post/{postId}    → single post
// POST   /feed/post             → create post (multipart)
// PUT    /feed/post/{postId}    → update post (multipart)
// DELETE /feed/post/{postId}    → delete post
// PUT    /auth/signup           → create account
// POST   /auth/login            → bearer token
// GET    /auth/status           → caller's status      [RequireAuth]
// PUT    /auth/status           → update status        [RequireAuth]
// PUT    /post-image            → store an image       [RequireAuth]
// GET    /auth/github/*         → optional GitHub sign-in
// POST   /graphql               → GraphQL
// GET    /socket                → real-time channel (websocket)
// GET    /images/*              → uploaded images (local backend)
// GET    /healthz               → liveness
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, RealIP: before the logger so it can record them
// 2. Logger
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. CORS: answers preflight requests before any handler
// 5. Annotate: resolves the caller's identity, never rejects
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	s.router.Use(auth.Annotate(auth.NewResolver(tokens)))

	// === Services ===
	// DEPENDENCY CHAIN:
	//   s.store implements both repository interfaces
	//   Guard and the services receive the interfaces
	//   handlers receive the services
	cleaner := blob.NewCleaner(s.blobs, s.logger)
	guard := service.NewGuard(s.store)
	feed := service.NewFeedService(s.store, s.store, guard, s.blobs, cleaner, s.hub, s.logger)
	accounts := service.NewAuthService(s.store, tokens, passwords, s.logger)
	ownership := service.NewOwnershipService(s.store, s.store, s.logger)
	s.reconciler = service.NewReconciler(ownership, s.config.ReconcileInterval, s.logger)

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	feedHandler := handler.NewFeedHandler(feed, s.logger)
	authHandler := handler.NewAuthHandler(accounts, github, s.logger)

	schema, err := gql.NewSchema(feed, accounts)
	if err != nil {
		return err
	}

	// === Feed ===
	s.router.Route("/feed", func(r chi.Router) {
		r.Get("/posts", feedHandler.HandleListPosts)
		r.Get("/post/{postId}", feedHandler.HandleGetPost)
		r.Post("/post", feedHandler.HandleCreatePost)
		r.Put("/post/{postId}", feedHandler.HandleUpdatePost)
		r.Delete("/post/{postId}", feedHandler.HandleDeletePost)
	})

	// === Accounts ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Put("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.With(auth.RequireAuth).Get("/status", authHandler.HandleGetStatus)
		r.With(auth.RequireAuth).Put("/status", authHandler.HandleUpdateStatus)
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
	})

	s.router.With(auth.RequireAuth).Put("/post-image", feedHandler.HandlePostImage)
	s.router.Handle("/graphql", gql.NewHandler(schema, s.logger))
	s.router.Handle("/socket", realtime.NewHandler(s.hub, s.config.CORSOrigins, s.logger))
	s.router.Get("/healthz", handler.HandleHealth)

	// === Static Files ===
	// GET /images/abc-cat.png → serves {UploadDir}/abc-cat.png
	if local, ok := s.blobs.(*blob.LocalStore); ok {
		fileServer := http.FileServer(filesOnly{http.Dir(local.Dir())})
		s.router.Handle("/"+local.Prefix()+"/*", http.StripPrefix("/"+local.Prefix()+"/", fileServer))
	}

	return nil
}

// filesOnly hides directories, so GET /images/ is a 404 instead of a
// listing of every upload.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		s.close()
		return fmt.Errorf("listening on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is cancelled.
//
// GRACEFUL SHUTDOWN:
//  1. Close the hub: websocket clients get a close frame (hijacked
//     connections are not tracked by http.Server.Shutdown)
//  2. Stop accepting new HTTP connections, wait for in-flight requests
//  3. Stop the reconciler, then close the database
//
// The hub is started only once the listener exists, so no event is
// published before a client could possibly be connected.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.close()

	srv := &http.Server{
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would also cut long-lived websocket
		// connections, which manage their own write deadlines.
		IdleTimeout: 60 * time.Second,
	}

	if err := s.hub.Start(); err != nil {
		return fmt.Errorf("starting hub: %w", err)
	}
	s.reconciler.Start(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("blobBackend", s.config.BlobBackend),
		)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// close releases everything New acquired. Safe to call once per Server.
func (s *Server) close() {
	s.hub.Close()
	if s.reconciler != nil {
		s.reconciler.Stop()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
