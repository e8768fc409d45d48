package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"github.com/dukerupert/showtrack/internal/config"
	"github.com/dukerupert/showtrack/internal/database"
	"github.com/dukerupert/showtrack/internal/email"
	"github.com/dukerupert/showtrack/internal/logging"
	"github.com/dukerupert/showtrack/internal/metadata"
	"github.com/dukerupert/showtrack/internal/notify"
	"github.com/dukerupert/showtrack/internal/reconcile"
	"github.com/dukerupert/showtrack/internal/scheduler"
	"github.com/dukerupert/showtrack/internal/server"
	"github.com/dukerupert/showtrack/internal/store"
)

var errLocked = errors.New("another showtrack process is reconciling (lock held)")

// app holds the wired collaborators shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	users         *store.UserStore
	notifications *store.NotificationStore
	preferences   *store.PreferenceStore
	shows         *store.ShowStore
	settings      *store.SettingsStore
	reminders     *store.ReminderStore
	backups       *store.BackupStore

	tmdb       *metadata.Client
	renderer   email.Renderer
	dispatcher *notify.Dispatcher
	driver     *reconcile.Driver
}

func newApp(cfg *config.Config) (*app, error) {
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		users:         store.NewUserStore(db),
		notifications: store.NewNotificationStore(db),
		preferences:   store.NewPreferenceStore(db),
		shows:         store.NewShowStore(db),
		settings:      store.NewSettingsStore(db),
		reminders:     store.NewReminderStore(db),
		backups:       store.NewBackupStore(db),
		renderer:      email.Renderer{AppURL: cfg.Server.BaseURL},
	}

	var fetcher metadata.Fetcher = unconfiguredFetcher{}
	if cfg.TMDB.APIKey != "" {
		client, err := metadata.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language,
			metadata.WithRateLimit(cfg.TMDB.RateLimit, 5))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create tmdb client: %w", err)
		}
		a.tmdb = client
		fetcher = metadata.NewBreaker(client, metadata.DefaultBreakerSettings(), logger)
	} else {
		logger.Warn("tmdb api key not set; reconciliation will record fetch errors")
	}

	var sender email.Sender
	if cfg.EmailEnabled() {
		sender = email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From, email.WithReplyTo(cfg.Email.ReplyTo))
	} else {
		logger.Info("postmark token not set; email delivery disabled")
	}

	a.dispatcher = notify.New(a.preferences, a.notifications, a.users, sender,
		notify.WithEmailTimeout(cfg.Email.Timeout.Duration),
		notify.WithRenderer(a.renderer),
		notify.WithLogger(logger),
	)
	a.driver = reconcile.New(a.shows, fetcher, a.dispatcher,
		reconcile.WithFetchTimeout(cfg.TMDB.FetchTimeout.Duration),
		reconcile.WithWorkers(cfg.Reconcile.Workers),
		reconcile.WithLogger(logger),
	)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) scheduler() *scheduler.Scheduler {
	cfg := scheduler.Config{
		ReconcileInterval: a.cfg.Reconcile.Interval.Duration,
		ReminderInterval:  a.cfg.Reminders.CheckInterval.Duration,
		DailyHour:         a.cfg.Reminders.DailyHour,
		WeeklyDay:         a.cfg.Weekday(),
		WeeklyHour:        a.cfg.Reminders.WeeklyHour,
		Location:          a.cfg.Location(),
		Retention:         a.cfg.Reminders.Retention.Duration,
	}
	return scheduler.New(cfg, a.driver, a.shows, a.reminders, a.dispatcher, a.renderer, a.logger)
}

func (a *app) server() *server.Server {
	deps := server.Deps{
		DB:            a.db,
		Users:         a.users,
		Notifications: a.notifications,
		Preferences:   a.preferences,
		Shows:         a.shows,
		Settings:      a.settings,
		Driver:        a.driver,
	}
	if a.tmdb != nil {
		deps.Search = a.tmdb
	}
	return server.New(deps, server.Options{
		Region:    a.cfg.TMDB.Region,
		RateLimit: a.cfg.Server.RateLimit,
		RateBurst: a.cfg.Server.RateBurst,
	}, a.logger)
}

// lock takes the process lock shared by serve and reconcile. With wait > 0
// it retries until the lock frees up or wait elapses.
func (a *app) lock(ctx context.Context, wait time.Duration) (func(), error) {
	if a.cfg.Database.LockPath == "" {
		return func() {}, nil
	}
	fl := flock.New(a.cfg.Database.LockPath)

	var ok bool
	var err error
	if wait > 0 {
		lockCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		ok, err = fl.TryLockContext(lockCtx, 250*time.Millisecond)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errLocked
		}
	} else {
		ok, err = fl.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", a.cfg.Database.LockPath, err)
	}
	if !ok {
		return nil, errLocked
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			a.logger.Warn("release lock failed", "path", a.cfg.Database.LockPath, "error", err)
		}
	}, nil
}

// unconfiguredFetcher stands in for TMDB when no API key is set.
type unconfiguredFetcher struct{}

func (unconfiguredFetcher) Fetch(ctx context.Context, externalID int64) (*metadata.Metadata, error) {
	return nil, fmt.Errorf("%w: tmdb api key not configured", metadata.ErrTransient)
}
