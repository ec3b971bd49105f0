// Command mshared is the mshare platform service.
// It serves the project upload and file tree API, the local blob store when
// that backend is selected, and a health check.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mshare/mshare/internal/api"
	"github.com/mshare/mshare/internal/app"
	"github.com/mshare/mshare/internal/auth"
	"github.com/mshare/mshare/internal/ingestion"
	"github.com/mshare/mshare/internal/platform"
	"github.com/mshare/mshare/internal/progress"
	"github.com/mshare/mshare/internal/treequery"
	"github.com/mshare/mshare/pkg/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("MSHARE_CONFIG"), "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mshared: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = config.FindConfigFile(cwd)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := platform.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Initialize services
	runner := ingestion.NewGoRunner()
	ingestionSvc := ingestion.NewService(a.Projects, a.Nodes, a.Blobs, a.Tracker, runner, log, ingestion.Options{
		ScratchDir:        cfg.Ingestion.ScratchDir,
		Ignore:            cfg.Ingestion.Ignore,
		MaxUploadBytes:    cfg.Ingestion.MaxUploadBytes,
		MaxExtractedBytes: cfg.Ingestion.MaxExtractedBytes,
	})
	query := treequery.NewService(a.Projects, a.Nodes)
	handler := api.NewHandler(ingestionSvc, query, a.Tracker, auth.NewVerifier(cfg.Auth.JWTSecret), log, cfg.Ingestion.MaxUploadBytes).
		WithHealthCheck(a.Ping)

	// Set up HTTP routes
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if cfg.Storage.Backend == "local" {
		mux.Handle("GET /blobs/", http.StripPrefix("/blobs/", http.FileServer(http.Dir(cfg.Storage.LocalPath))))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.CORS(api.RequestLogger(log)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Server.Port).Info("starting mshared")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sweepProgress(gctx, a.Tracker, cfg.Ingestion, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
		if err := ingestionSvc.Wait(shutdownCtx); err != nil {
			log.WithError(err).Warn("abandoning in-flight uploads")
		}
		return nil
	})

	return g.Wait()
}

// sweepProgress drops terminal upload records older than the configured
// retention until ctx is done.
func sweepProgress(ctx context.Context, tracker *progress.Tracker, cfg config.IngestionConfig, log logrus.FieldLogger) {
	if cfg.ProgressRetention <= 0 || cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tracker.Sweep(cfg.ProgressRetention); n > 0 {
				log.WithField("removed", n).Debug("swept upload progress")
			}
		}
	}
}
