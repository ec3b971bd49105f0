// Package app assembles the stores, blob client and progress tracker shared by
// the mshare server and CLI from a loaded configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mshare/mshare/internal/blob"
	"github.com/mshare/mshare/internal/platform"
	"github.com/mshare/mshare/internal/progress"
	"github.com/mshare/mshare/internal/project"
	"github.com/mshare/mshare/internal/tree"
	"github.com/mshare/mshare/pkg/config"
)

// App holds the long-lived dependencies of a running mshare process.
type App struct {
	Config   *config.Config
	DB       *sql.DB // nil for the memory driver
	Projects project.Store
	Nodes    tree.Store
	Blobs    blob.Client
	Tracker  *progress.Tracker
}

// Open connects every backend named by cfg. The caller must Close the result.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Tracker: progress.NewTracker()}

	switch cfg.Database.Driver {
	case platform.DriverMemory:
		log.Warn("using in-memory metadata store; data is lost on exit")
		a.Projects = project.NewMemoryStore()
		a.Nodes = tree.NewMemoryStore()
	default:
		db, err := platform.OpenDB(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := platform.AutoMigrate(db, cfg.Database.Driver); err != nil {
				db.Close()
				return nil, err
			}
			log.WithField("driver", cfg.Database.Driver).Info("database schema up to date")
		}
		a.DB = db
		a.Projects = project.NewSQLStore(db)
		a.Nodes = tree.NewSQLStore(db)
	}

	blobs, err := openBlobs(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Blobs = blobs
	log.WithField("backend", cfg.Storage.Backend).Info("blob storage ready")

	return a, nil
}

func openBlobs(ctx context.Context, cfg config.StorageConfig) (blob.Client, error) {
	switch cfg.Backend {
	case "local":
		return blob.NewLocalStorage(cfg.LocalPath, cfg.PublicURL), nil
	case "s3":
		return blob.NewS3Storage(ctx, blob.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.PublicURL,
		})
	case "gcs":
		return blob.NewGCSStorage(ctx, cfg.GCS.Bucket, cfg.PublicURL)
	default:
		return nil, fmt.Errorf("open blob storage: unsupported backend %q", cfg.Backend)
	}
}

// Ping reports whether the metadata database is reachable.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

// Close releases the database handle, if any.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
