// Package app wires configuration, storage, transport and the watch
// pipeline together and owns their lifecycles.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"slotwatch/internal/bot"
	"slotwatch/internal/config"
	"slotwatch/internal/notifier"
	"slotwatch/internal/providers"
	"slotwatch/internal/storage"
	kit "slotwatch/internal/transport"
	"slotwatch/internal/transport/telegram"
	"slotwatch/internal/watch"
	logx "slotwatch/pkg/logx"
)

// Storage connectivity is required at startup: better to fail the
// process than to run silently without snapshots.
const (
	storageOpenAttempts = 5
	storageOpenDelay    = 3 * time.Second
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger

	logCloser io.Closer
	store     storage.Store
	adapter   *telegram.Adapter
	notif     *notifier.Service
	watcher   *watch.Service
	commands  *bot.Service

	updates chan kit.Message
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")

	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, logCloser, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}

	store, err := openStorage(cfg, log)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := cfg.Telegram.PollTimeoutDuration()
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	notifCfg, err := buildNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(notifCfg, adapter, log.With(logx.String("comp", "notifier")))

	gwLog := log.With(logx.String("comp", "gateway"))
	registry := providers.NewRegistry(
		providers.NewAibolit(gwLog),
		providers.NewLode(gwLog),
	)

	watchCfg, err := buildWatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	watcher := watch.New(watchCfg, store, registry, notif, log.With(logx.String("comp", "watch")))

	commands := bot.New(store, watcher, adapter, log.With(logx.String("comp", "bot")))

	return &App{
		cfgm:      cfgm,
		log:       log,
		logCloser: logCloser,
		store:     store,
		adapter:   adapter,
		notif:     notif,
		watcher:   watcher,
		commands:  commands,
		updates:   make(chan kit.Message, 64),
	}, nil
}

func openStorage(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	busy, err := cfg.Storage.BusyTimeoutDuration()
	if err != nil {
		return nil, err
	}
	scfg := storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}

	var lastErr error
	for attempt := 1; attempt <= storageOpenAttempts; attempt++ {
		store, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
		if err == nil {
			return store, nil
		}
		lastErr = err
		log.Warn("opening storage failed",
			logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", storageOpenAttempts))
		if attempt < storageOpenAttempts {
			time.Sleep(storageOpenDelay)
		}
	}
	return nil, fmt.Errorf("opening storage after %d attempts: %w", storageOpenAttempts, lastErr)
}

func buildWatchConfig(cfg *config.Config) (watch.Config, error) {
	pollInterval, err := cfg.Watch.PollIntervalDuration()
	if err != nil {
		return watch.Config{}, err
	}
	pairInterval, err := cfg.Pairs.IntervalDuration()
	if err != nil {
		return watch.Config{}, err
	}

	window := time.Duration(cfg.Watch.DateWindowDays) * 24 * time.Hour

	return watch.Config{
		Enabled:              cfg.Watch.Enabled,
		PollInterval:         pollInterval,
		DateWindow:           window,
		MaxSlotNotifications: cfg.Watch.MaxSlotNotifications,
		Pairs: watch.PairsConfig{
			Enabled:          cfg.Pairs.Enabled,
			Interval:         pairInterval,
			Provider:         cfg.Pairs.Provider,
			Mode:             watch.Mode(cfg.Pairs.Mode),
			MaxNotifications: cfg.Pairs.MaxNotifications,
		},
	}, nil
}

func buildNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	retryBase, err := cfg.Notifier.RetryBaseDuration()
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Workers:    cfg.Notifier.Workers,
		QueueSize:  cfg.Notifier.QueueSize,
		RatePerSec: cfg.Notifier.RatePerSec,
		RetryMax:   cfg.Notifier.RetryMax,
		RetryBase:  retryBase,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.notif.Start(ctx)

	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return err
	}
	go a.commands.Run(ctx, a.updates)

	if err := a.watcher.Start(ctx); err != nil {
		return err
	}

	// Config hot reload: interval/cap changes take effect without a
	// restart. Parse failures keep the previous config.
	go func() {
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	sub := a.cfgm.Subscribe(1)
	go func() {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				wc, err := buildWatchConfig(cfg)
				if err != nil {
					a.log.Warn("ignoring invalid watch config", logx.Err(err))
					continue
				}
				a.watcher.Apply(wc)
			}
		}
	}()

	a.log.Info("slotwatch started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.watcher.Stop(ctx)
	_ = a.adapter.Stop(ctx)
	a.notif.Stop(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing storage", logx.Err(err))
	}
	a.log.Info("slotwatch stopped")
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
	return nil
}
