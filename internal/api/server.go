// Package api provides the HTTP API server for the panel.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dcm2610/StellarStack-sub002/internal/api/handlers"
	"github.com/dcm2610/StellarStack-sub002/internal/api/health"
	"github.com/dcm2610/StellarStack-sub002/internal/api/middleware"
	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/liveness"
	"github.com/dcm2610/StellarStack-sub002/internal/provision"
	"github.com/dcm2610/StellarStack-sub002/internal/relay"
	"github.com/dcm2610/StellarStack-sub002/internal/secrets"
	"github.com/dcm2610/StellarStack-sub002/internal/store"
	"github.com/dcm2610/StellarStack-sub002/pkg/config"
)

// Version is the panel version reported by /healthz.
// Set at build time using ldflags.
var Version = "dev"

// Server is the panel HTTP server: the operator API, the daemon-facing
// remote API and the health endpoint on one listener.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         store.Store
	auth          *auth.Service
	box           *secrets.Box
	relay         *relay.Client
	coordinator   *provision.Coordinator
	tracker       *liveness.Tracker
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates an API server over the given services.
func NewServer(cfg *config.Config, st store.Store, authSvc *auth.Service, box *secrets.Box, relayClient *relay.Client, coordinator *provision.Coordinator, tracker *liveness.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:       st,
		auth:        authSvc,
		box:         box,
		relay:       relayClient,
		coordinator: coordinator,
		tracker:     tracker,
		config:      cfg,
		logger:      logger,
	}

	s.healthChecker = health.NewChecker(Version)
	s.healthChecker.Register("database", st)

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.healthChecker.Handler())

	authHandler := handlers.NewAuthHandler(s.store, s.auth, s.logger)

	r.Route("/api", func(r chi.Router) {
		// Login is the only unauthenticated operator route.
		r.Post("/auth/login", authHandler.Login)

		// Daemon surface. Node credential auth; every request here
		// also refreshes the caller's heartbeat.
		nodeAuth := middleware.NewNodeAuthMiddleware(s.store, s.auth, s.tracker, s.logger)
		remoteHandler := handlers.NewRemoteHandler(s.store, s.coordinator, s.tracker, s.logger)
		r.Route("/remote", func(r chi.Router) {
			r.Use(nodeAuth.Authenticate)
			r.Post("/heartbeat", remoteHandler.Heartbeat)
			r.Post("/servers/{remoteID}/status", remoteHandler.StatusReport)
		})

		// Operator surface.
		r.Group(func(r chi.Router) {
			authMiddleware := middleware.NewAuthMiddleware(s.auth, s.logger)
			r.Use(authMiddleware.Authenticate)

			r.Get("/me", authHandler.Me)

			nodeHandler := handlers.NewNodeHandler(s.store, s.box, s.tracker, s.logger)
			allocationHandler := handlers.NewAllocationHandler(s.store, s.logger)
			r.Route("/nodes", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", nodeHandler.List)
				r.Post("/", nodeHandler.Create)
				r.Route("/{nodeID}", func(r chi.Router) {
					r.Get("/", nodeHandler.Get)
					r.Patch("/", nodeHandler.Update)
					r.Delete("/", nodeHandler.Delete)
					r.Post("/rotate-credential", nodeHandler.RotateCredential)
					r.Get("/allocations", allocationHandler.ListByNode)
					r.Post("/allocations", allocationHandler.Create)
				})
			})
			r.With(middleware.RequireAdmin).Delete("/allocations/{allocationID}", allocationHandler.Delete)

			serverHandler := handlers.NewServerHandler(s.store, s.coordinator, s.relay, s.auth, s.tracker, s.logger)
			r.Route("/servers", func(r chi.Router) {
				r.Get("/", serverHandler.List)
				r.With(middleware.RequireAdmin).Post("/", serverHandler.Create)
				r.Route("/{serverID}", func(r chi.Router) {
					r.Get("/", serverHandler.Get)
					r.With(middleware.RequireAdmin).Delete("/", serverHandler.Delete)
					r.Post("/power", serverHandler.Power)
					r.With(middleware.RequireAdmin).Post("/suspend", serverHandler.Suspend)
					r.With(middleware.RequireAdmin).Post("/unsuspend", serverHandler.Unsuspend)
					r.Get("/console", serverHandler.Console)
					r.Get("/stats", serverHandler.Stats)
				})
			})

			blueprintHandler := handlers.NewBlueprintHandler(s.store, s.logger)
			r.Route("/blueprints", func(r chi.Router) {
				r.Get("/", blueprintHandler.List)
				r.With(middleware.RequireAdmin).Post("/", blueprintHandler.Create)
				r.Route("/{blueprintID}", func(r chi.Router) {
					r.Get("/", blueprintHandler.Get)
					r.With(middleware.RequireAdmin).Patch("/", blueprintHandler.Update)
					r.With(middleware.RequireAdmin).Delete("/", blueprintHandler.Delete)
				})
			})

			userHandler := handlers.NewUserHandler(s.store, s.logger)
			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", userHandler.List)
				r.Post("/", userHandler.Create)
				r.Route("/{userID}", func(r chi.Router) {
					r.Get("/", userHandler.Get)
					r.Patch("/", userHandler.Update)
					r.Delete("/", userHandler.Delete)
				})
			})

			activityHandler := handlers.NewActivityHandler(s.store, s.logger)
			r.With(middleware.RequireAdmin).Get("/activity", activityHandler.List)
		})
	})

	s.router = r
}

// Start starts the HTTP server and blocks until the context is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		// A closed channel means the listener ended by an external
		// Shutdown call rather than a failure.
		if !ok || err == nil {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server. A server that never
// started is already down.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
