package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-track-alerts/internal/alerting"
	"price-track-alerts/internal/api"
	"price-track-alerts/internal/config"
	"price-track-alerts/internal/detector"
	"price-track-alerts/internal/oracle"
	"price-track-alerts/internal/scheduler"
	"price-track-alerts/internal/service"
	"price-track-alerts/internal/storage"
	"price-track-alerts/internal/tokens"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newRegistry() *tokens.Registry {
	return tokens.NewRegistry(a.Config.Tokens.Definitions, a.Config.Tokens.Tracked)
}

func (a *App) newFetcher(registry *tokens.Registry) oracle.PriceFetcher {
	if a.Config.Oracle.Provider == "feed" {
		return oracle.NewFeed(oracle.FeedOptions{
			RPCURL:  a.Config.Oracle.Feed.RPCURL,
			Timeout: a.Config.Oracle.Feed.RequestTimeout,
		}, registry, a.Logger)
	}

	return oracle.NewMoralis(oracle.MoralisOptions{
		BaseURL:   a.Config.Oracle.Moralis.BaseURL,
		APIKey:    a.Config.Oracle.Moralis.APIKey,
		Timeout:   a.Config.Oracle.Moralis.RequestTimeout,
		UserAgent: a.Config.Oracle.Moralis.UserAgent,
	}, registry, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var channels []alerting.Notifier

	if a.Config.Alerting.Email.Enabled {
		cfg := a.Config.Alerting.Email
		channels = append(channels, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			Timeout:  cfg.Timeout,
		}, a.Logger))
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		channels = append(channels, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}

	if len(channels) == 0 {
		return nil
	}
	return alerting.NewMulti(channels...)
}

type stores struct {
	samples storage.SampleStore
	alerts  storage.AlertStore
	locker  storage.AdvisoryLocker
}

// openStores connects PostgreSQL when configured and falls back to the
// in-memory store otherwise, so the service keeps detecting movements
// without a database (state is lost on restart).
func (a *App) openStores(ctx context.Context) (stores, func(), error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory storage")
		mem := storage.NewMemory()
		return stores{samples: mem, alerts: mem}, func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return stores{}, nil, err
	}

	store := storage.NewStore(pool)
	return stores{samples: store, alerts: store, locker: store}, store.Close, nil
}

// Run executes the long-running tracking service: the ingestion loop, the
// alert evaluation loop, and the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStores, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	registry := a.newRegistry()
	fetcher := a.newFetcher(registry)
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no notification channels configured; alerts will not be delivered")
	}

	det := detector.New(
		st.samples,
		a.Config.Alerting.Window,
		decimal.NewFromFloat(a.Config.Alerting.ThresholdPct),
		a.Logger,
	)

	recipient := ""
	if a.Config.Alerting.Enabled {
		recipient = a.Config.Alerting.Recipient
	}
	tracker := service.NewTracker(fetcher, st.samples, det, notifier, registry, recipient, a.Logger)
	alerts := service.NewAlerts(st.alerts, fetcher, notifier, a.Logger)
	quoter := service.NewSwapQuoter(
		fetcher,
		a.Config.Swap.BaseSymbol,
		a.Config.Swap.QuoteSymbol,
		decimal.NewFromFloat(a.Config.Swap.FeePct),
		a.Logger,
	)

	ingestSched := scheduler.New(scheduler.Options{
		Name:         "ingest_scheduler",
		Interval:     a.Config.Scheduler.IngestInterval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	alertSched := scheduler.New(scheduler.Options{
		Name:         "alert_scheduler",
		Interval:     a.Config.Scheduler.AlertInterval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	errCh := make(chan error, 3)

	go func() {
		errCh <- ingestSched.Run(ctx, func(ctx context.Context, tick time.Time) error {
			return a.withAdvisoryLock(ctx, st.locker, func() error {
				return tracker.ProcessTick(ctx, tick)
			})
		})
	}()

	go func() {
		errCh <- alertSched.Run(ctx, func(ctx context.Context, tick time.Time) error {
			return a.withAdvisoryLock(ctx, st.locker, func() error {
				return alerts.EvaluateAll(ctx, tick)
			})
		})
	}()

	var server *api.Server
	if a.Config.Server.Enabled {
		handler := api.NewHandler(alerts, st.samples, quoter, registry, a.Logger)
		server = api.NewServer(api.Options{
			Listen:       a.Config.Server.Listen,
			ReadTimeout:  a.Config.Server.ReadTimeout,
			WriteTimeout: a.Config.Server.WriteTimeout,
		}, handler.Router(), a.Logger)
		go func() {
			errCh <- server.Start()
		}()
	}

	a.Logger.Info().Msg("price tracking service started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			a.Logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price tracking service stopped")
	return nil
}

// withAdvisoryLock skips the tick when another instance holds the postgres
// advisory lock. Purely a courtesy against duplicate notifications; a
// single active instance is still the assumption.
func (a *App) withAdvisoryLock(ctx context.Context, locker storage.AdvisoryLocker, fn func() error) error {
	key := a.Config.Scheduler.AdvisoryLockKey
	if locker == nil || key == 0 {
		return fn()
	}

	unlock, acquired, err := locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		a.Logger.Debug().Msg("advisory lock held elsewhere, skipping tick")
		return nil
	}
	defer unlock()

	return fn()
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Chain string
	Limit int
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Chain     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
