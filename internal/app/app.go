// Package app builds the long-lived services behind every command and owns
// their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/archive"
	"github.com/JakeFAU/pagewatch/internal/clock/system"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/cycle"
	collyfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/colly"
	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/notifier/email"
	"github.com/JakeFAU/pagewatch/internal/notifier/github"
	lognotifier "github.com/JakeFAU/pagewatch/internal/notifier/log"
	pubsubnotifier "github.com/JakeFAU/pagewatch/internal/notifier/pubsub"
	"github.com/JakeFAU/pagewatch/internal/notifier/webhook"
	"github.com/JakeFAU/pagewatch/internal/policy/ratelimit"
	"github.com/JakeFAU/pagewatch/internal/policy/retry"
	"github.com/JakeFAU/pagewatch/internal/state/file"
	"github.com/JakeFAU/pagewatch/internal/state/postgres"
	"github.com/JakeFAU/pagewatch/internal/state/sqlite"
	"github.com/JakeFAU/pagewatch/internal/storage/gcs"
	"github.com/JakeFAU/pagewatch/internal/storage/local"
	"github.com/JakeFAU/pagewatch/internal/targets"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
)

// App holds the services shared by the CLI commands.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        monitor.StateStore
	orchestrator *cycle.Orchestrator
	closers      []func(context.Context) error
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the configured state store.
func (a *App) Store() monitor.StateStore {
	return a.store
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// New initializes every service named by cfg. It fails fast: anything opened
// before an error is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, version string) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	if a.store, err = a.buildStore(ctx); err != nil {
		return nil, err
	}
	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := a.buildNotifier(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Monitor.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
	}, logger)
	retryPolicy := retry.New(retry.Config{
		MaxRetries: cfg.HTTP.MaxRetries,
		BaseDelay:  time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	})
	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS:   cfg.HTTP.PerHostRPS,
		PerHostBurst: cfg.HTTP.PerHostBurst,
	})

	deps := cycle.Deps{
		Fetcher:  fetcher,
		Retry:    retryPolicy,
		Limiter:  limiter,
		Hasher:   sha256.New(),
		Store:    a.store,
		Clock:    system.New(),
		IDs:      uuid.New(),
		Notifier: notifier,
		Tracer:   telemetry.Tracer(),
		Logger:   logger,
	}
	// A nil *Archiver must not become a non-nil interface.
	if archiver != nil {
		deps.Archiver = archiver
	}

	a.orchestrator, err = cycle.New(cycle.Config{
		Concurrency:   cfg.Monitor.Concurrency,
		SubjectPrefix: cfg.Monitor.SubjectPrefix,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return a, nil
}

// RunOnce loads the URL list and runs a single cycle over it.
func (a *App) RunOnce(ctx context.Context) (monitor.Summary, error) {
	list, err := targets.Load(a.cfg.Monitor.URLsFile, a.logger)
	if err != nil {
		return monitor.Summary{}, err
	}
	if len(list) == 0 {
		a.logger.Warn("url list is empty", zap.String("path", a.cfg.Monitor.URLsFile))
	}
	return a.orchestrator.Run(ctx, list)
}

// Close releases services in reverse order of construction and flushes the logger.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func (a *App) buildStore(ctx context.Context) (monitor.StateStore, error) {
	st := a.cfg.State
	switch st.Backend {
	case "file":
		s, err := file.New(file.Config{Path: st.Path}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init file state: %w", err)
		}
		a.logger.Info("using file state", zap.String("path", st.Path))
		return s, nil
	case "sqlite":
		s, err := sqlite.New(ctx, sqlite.Config{Path: st.Path, Table: st.Table}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init sqlite state: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })
		a.logger.Info("using sqlite state", zap.String("path", st.Path))
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{DSN: st.DSN, Table: st.Table}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres state: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { s.Close(); return nil })
		a.logger.Info("using postgres state")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state backend: %q", st.Backend)
	}
}

func (a *App) buildArchiver(ctx context.Context) (*archive.Archiver, error) {
	ac := a.cfg.Archive
	var blobs monitor.BlobStore
	switch ac.Backend {
	case "none", "":
		a.logger.Info("change archiving disabled")
		return nil, nil
	case "local":
		s, err := local.New(local.Config{BaseDir: ac.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		blobs = s
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		s, err := gcs.New(client, gcs.Config{Bucket: ac.Bucket, Prefix: ac.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		blobs = s
	default:
		return nil, fmt.Errorf("unknown archive backend: %q", ac.Backend)
	}
	a.logger.Info("archiving changes", zap.String("backend", ac.Backend))
	return archive.New(blobs)
}

func (a *App) buildNotifier(ctx context.Context) (monitor.Notifier, error) {
	n := a.cfg.Notify
	timeout := a.cfg.FetchTimeout()
	switch n.Channel {
	case "none":
		a.logger.Warn("no notification channel configured; detected changes will fail the cycle")
		return nil, nil
	case "log":
		return lognotifier.New(a.logger), nil
	case "email":
		return email.New(email.Config{
			Host:        n.Email.Host,
			Port:        n.Email.Port,
			Username:    n.Email.Username,
			Password:    n.Email.Password,
			From:        n.Email.From,
			To:          n.Email.To,
			ImplicitTLS: n.Email.ImplicitTLS,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:        n.Webhook.URL,
			Headers:    n.Webhook.Headers,
			MaxRetries: n.Webhook.MaxRetries,
			Timeout:    timeout,
		}, &http.Client{Timeout: timeout}, a.logger)
	case "github":
		return github.New(github.Config{
			BaseURL: n.GitHub.BaseURL,
			Token:   n.GitHub.Token,
			Owner:   n.GitHub.Owner,
			Repo:    n.GitHub.Repo,
			Labels:  n.GitHub.Labels,
		}, nil, a.logger)
	case "pubsub":
		client, err := pubsub.NewClient(ctx, n.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		p, err := pubsubnotifier.New(ctx, client, n.PubSub.Topic, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { p.Stop(); return nil })
		return p, nil
	default:
		return nil, errors.New("unknown notify channel: " + n.Channel)
	}
}
