package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/handlers"
	"github.com/sidingops/rakeserial/internal/jobs"
	"github.com/sidingops/rakeserial/internal/middleware"
)

const shutdownTimeout = 15 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the event feed and the recovery monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *App) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, app)
			})
		},
	}
}

// NewServer wires every handler and middleware around the app's services.
// The returned hub must be closed when the server stops.
func NewServer(app *App) (http.Handler, *handlers.EventsWSHandler) {
	cfg, log := app.Config, app.Logger

	hub := handlers.NewEventsWSHandler(log)
	app.Split.WithEvents(hub)

	apiKeys := middleware.NewAPIKeyMiddleware(middleware.APIKeyConfig{Keys: cfg.APIKeys}, log)
	actors := middleware.NewActorMiddleware(middleware.ActorConfig{
		JWTSecret:      cfg.JWTSecret,
		JWTExpiryHours: cfg.JWTExpiryHours,
		TrustHeaders:   cfg.TrustActorHeaders,
		Required:       cfg.ActorRequired,
		SkipPaths:      []string{"/health", "/webhook/*"},
	}, log)
	cors := middleware.NewCORSMiddleware(cfg.CORSOrigins...)

	mux := http.NewServeMux()
	handlers.NewHTTPHandler(app.DB, app.BagCounts, apiKeys, log).SetupRoutes(mux)
	handlers.NewAPIHandler(app.Sessions, app.Drafts, app.Split, app.Dispatch, app.Workflow, log).SetupRoutes(mux)
	hub.SetupRoutes(mux)

	var h http.Handler = actors.Wrap(mux)
	h = cors.Wrap(h)
	h = middleware.AccessLog(log)(h)
	h = middleware.RequestIDMiddleware(h)
	return h, hub
}

func serve(ctx context.Context, app *App) error {
	log := app.Logger
	zap.ReplaceGlobals(log)

	if err := database.AutoMigrate(app.DB, log); err != nil {
		return err
	}

	handler, hub := NewServer(app)
	defer hub.Close()

	var wg sync.WaitGroup
	monitorStop := make(chan struct{})
	if interval := app.Config.RecoveryInterval(); interval > 0 {
		monitor := jobs.NewRecoveryMonitor(app.Recovery, app.Config.RecoveryGrace(), log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Start(interval, monitorStop)
		}()
		log.Info("recovery monitor started", zap.Duration("interval", interval))
	}
	defer func() {
		close(monitorStop)
		wg.Wait()
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.Int("port", app.Config.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
