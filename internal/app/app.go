package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NasaVasa/pricewatch/internal/config"
	"github.com/NasaVasa/pricewatch/internal/delivery/httpserver"
	"github.com/NasaVasa/pricewatch/internal/delivery/telegram"
	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/NasaVasa/pricewatch/internal/infra/log"
	"github.com/NasaVasa/pricewatch/internal/infra/metrics"
	"github.com/NasaVasa/pricewatch/internal/infra/rowstore"
	"github.com/NasaVasa/pricewatch/internal/infra/session"
	"github.com/NasaVasa/pricewatch/internal/infra/watchstore"
	"github.com/NasaVasa/pricewatch/internal/infra/wildberries"
	"github.com/NasaVasa/pricewatch/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const stopTimeout = 30 * time.Second

type App struct {
	cfg      config.Config
	bot      *telegram.Bot
	poller   *usecase.Poller
	server   *httpserver.Server
	rows     domain.RowStore
	sessions domain.SessionStore
	logger   *zap.Logger
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(log.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return nil, err
	}

	rows, err := rowstore.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	sessions, err := openSessions(ctx, cfg)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}

	api, err := telegram.NewAPI(cfg.TelegramBotToken)
	if err != nil {
		_ = sessions.Close()
		_ = rows.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	watchRepo := watchstore.NewRepository(rows, logger)
	priceClient := wildberries.NewClient(cfg.WBBaseURL, cfg.WBTimeout, cfg.WBRatePerSecond, logger)
	notifier := telegram.NewNotifier(api, logger)

	poller := usecase.NewPoller(watchRepo, priceClient, notifier, m, usecase.PollerConfig{
		Interval:     cfg.PollInterval,
		StartDelay:   cfg.PollStartDelay,
		Concurrency:  int64(cfg.PollConcurrency),
		WriteTimeout: cfg.PollWriteTimeout,
		Policy:       usecase.NotifyPolicy(cfg.NotifyPolicy),
	}, logger)

	watchUC := usecase.NewWatchUsecase(watchRepo)
	priceUC := usecase.NewPriceUsecase(priceClient)
	broadcastUC := usecase.NewBroadcastUsecase(watchRepo, notifier, cfg.AdminIDs, logger)
	handlers := telegram.NewHandlers(watchUC, priceUC, broadcastUC, poller, sessions, logger)
	bot := telegram.NewBot(api, handlers, cfg.TelegramPollTimeout, logger)

	var dispatcher httpserver.Dispatcher
	if cfg.WebhookEnabled() {
		dispatcher = bot
	}
	server := httpserver.New(httpserver.Options{
		Addr:          cfg.HTTPAddr,
		WebhookPath:   cfg.WebhookPath,
		WebhookSecret: cfg.WebhookSecret,
	}, reg, m, dispatcher, logger)

	return &App{
		cfg:      cfg,
		bot:      bot,
		poller:   poller,
		server:   server,
		rows:     rows,
		sessions: sessions,
		logger:   logger,
	}, nil
}

func openSessions(ctx context.Context, cfg config.Config) (domain.SessionStore, error) {
	switch cfg.SessionBackend {
	case config.SessionRedis:
		rc, err := session.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return session.NewRedis(rc, cfg.SessionTTL), nil
	default:
		return session.NewMemory(cfg.SessionTTL), nil
	}
}

// Run serves until ctx is done. In webhook mode updates arrive through the
// HTTP server; otherwise the bot long-polls.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("pricewatch service starting",
		zap.String("store_backend", a.cfg.StoreBackend),
		zap.String("session_backend", a.cfg.SessionBackend),
		zap.Bool("webhook", a.cfg.WebhookEnabled()),
	)

	if a.cfg.WebhookEnabled() {
		if err := a.bot.SetWebhook(webhookURL(a.cfg), a.cfg.WebhookSecret); err != nil {
			return err
		}
	} else if err := a.bot.DeleteWebhook(); err != nil {
		// getUpdates is refused while a webhook is registered
		a.logger.Warn("failed to clear webhook before polling", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Start(gctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.stop()
	})
	if !a.cfg.WebhookEnabled() {
		g.Go(func() error {
			return a.bot.Start(gctx)
		})
	}

	a.poller.Start(gctx)
	a.logger.Info("pricewatch service started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// stop drains the poller before the transport goes away so in-flight
// notifications still have a client.
func (a *App) stop() error {
	a.poller.Stop(stopTimeout)

	if a.cfg.WebhookEnabled() {
		if err := a.bot.DeleteWebhook(); err != nil {
			a.logger.Warn("failed to delete webhook", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (a *App) Shutdown() {
	a.logger.Info("pricewatch service shutting down")
	a.poller.Stop(stopTimeout)
	if err := a.sessions.Close(); err != nil {
		a.logger.Warn("failed to close session store", zap.Error(err))
	}
	if err := a.rows.Close(); err != nil {
		a.logger.Warn("failed to close row store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func webhookURL(cfg config.Config) string {
	return strings.TrimRight(cfg.WebhookURL, "/") + "/" + strings.TrimLeft(cfg.WebhookPath, "/")
}
