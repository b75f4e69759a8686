// Package cli implements the rakeserial command line.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sidingops/rakeserial/internal/config"
	"github.com/sidingops/rakeserial/internal/database"
	"github.com/sidingops/rakeserial/internal/notify"
	"github.com/sidingops/rakeserial/internal/services"
)

// App holds the services shared by every command.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB

	Sequencer *services.Sequencer
	Sessions  *services.SessionService
	Split     *services.SplitService
	Recovery  *services.RecoveryService
	Drafts    *services.DraftService
	Dispatch  *services.DispatchService
	BagCounts *services.BagCountService
	Workflow  *services.WorkflowService

	Notifications *notify.Dispatcher
	closers       []io.Closer
}

// loadConfig reads .env (if present) and the configuration.
func loadConfig() (*config.Config, *zap.Logger, error) {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	boot := zap.NewNop()
	cfg, err := config.Load(boot)
	if err != nil {
		return nil, nil, err
	}
	log, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// NewLogger builds the production logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// NewApp connects to the database and builds every service.
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	dbLevel := logger.Warn
	if cfg.LogLevel == "debug" {
		dbLevel = logger.Info
	}
	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL, dbLevel, log)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, log, db)
}

func newApp(cfg *config.Config, log *zap.Logger, db *gorm.DB) (*App, error) {
	a := &App{Config: cfg, Logger: log, DB: db}

	notifier, err := a.buildNotifier()
	if err != nil {
		return nil, err
	}
	a.Notifications = notify.NewDispatcher(notifier, log, 0, 0)

	a.Sequencer = services.NewSequencer(db, log, cfg.SequenceAttemptLimit)
	a.Sessions = services.NewSessionService(db, a.Sequencer, log, cfg.TokenAttemptLimit)
	a.Split = services.NewSplitService(db, a.Sequencer, log, cfg.TokenAttemptLimit).WithNotifier(a.Notifications)
	a.Recovery = services.NewRecoveryService(db, a.Split, log).WithNotifier(a.Notifications)
	a.Drafts = services.NewDraftService(db, a.Recovery, log).WithNotifier(a.Notifications)
	a.Dispatch = services.NewDispatchService(db, log)
	a.BagCounts = services.NewBagCountService(db, log)
	a.Workflow = services.NewWorkflowService(db, log)
	return a, nil
}

// buildNotifier logs every notification, posts to Slack when configured and
// suppresses repeats within the cooldown window.
func (a *App) buildNotifier() (notify.Notifier, error) {
	targets := []notify.Notifier{notify.NewLogNotifier(a.Logger)}
	if a.Config.SlackBotToken != "" {
		targets = append(targets, notify.NewSlackNotifier(a.Config.SlackBotToken, a.Config.SlackChannel))
		a.Logger.Info("slack notifications enabled", zap.String("channel", a.Config.SlackChannel))
	}
	var n notify.Notifier = notify.NewMulti(0, targets...)

	window := a.Config.NotifyCooldown()
	if window <= 0 {
		return n, nil
	}
	var store notify.CooldownStore = notify.NewMemoryCooldownStore()
	if a.Config.CooldownDBPath != "" {
		badgerStore, err := notify.OpenBadgerCooldownStore(a.Config.CooldownDBPath)
		if err != nil {
			return nil, fmt.Errorf("open cooldown store: %w", err)
		}
		a.closers = append(a.closers, badgerStore)
		store = badgerStore
	}
	return notify.NewCooldown(n, store, window, a.Logger), nil
}

// Close flushes pending notifications and releases resources.
func (a *App) Close() error {
	var errs []error
	if a.Notifications != nil {
		a.Notifications.Close()
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}

// withApp loads configuration, builds the app and runs fn with it.
func withApp(fn func(*App) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
