// Command server is the platform's always-on process: it owns every
// session holder, the trigger scheduler and dispatcher, the workflow
// execution runtime and its reconciler sweeps, the channel adapter
// registry, and the public HTTP/WebSocket API that fronts all of it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/channel/api"
	"github.com/fluxrelay/fluxrelay/pkg/channel/github"
	"github.com/fluxrelay/fluxrelay/pkg/channel/slack"
	"github.com/fluxrelay/fluxrelay/pkg/channel/telegram"
	"github.com/fluxrelay/fluxrelay/pkg/channel/web"
	"github.com/fluxrelay/fluxrelay/pkg/config"
	"github.com/fluxrelay/fluxrelay/pkg/feed"
	"github.com/fluxrelay/fluxrelay/pkg/holder"
	fluxapi "github.com/fluxrelay/fluxrelay/pkg/api"
	"github.com/fluxrelay/fluxrelay/pkg/router"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
	"github.com/fluxrelay/fluxrelay/pkg/store/pgstore"
	"github.com/fluxrelay/fluxrelay/pkg/trigger"
	"github.com/fluxrelay/fluxrelay/pkg/workflow"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	configDir := getEnv("CONFIG_DIR", "./deploy/config")

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "server")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		log.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	st, pool, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	holders := holder.NewRegistry(st, log)

	dashboardFeed, stopFeed := setupDashboardFeed(ctx, pool, holders, cfg, log)
	defer stopFeed()

	executor := workflow.NewExecutor(&st, workflow.NoopStepRunner{}, log)
	proposals := workflow.NewProposalService(&st)
	reconciler := workflow.NewReconciler(&st, executor,
		cfg.Workflow.ApprovalTimeoutSweep, cfg.Workflow.StaleExecutionSweep, cfg.Workflow.StaleExecutionAfter,
		time.Minute, log)
	reconciler.Start(ctx)

	triggerSvc := trigger.NewService(&st, holders, executor,
		trigger.AdmissionLimits{PerUser: 10, Global: cfg.Trigger.MaxConcurrentRuns}, log)
	scheduler := trigger.NewScheduler(triggerSvc, log)
	if err := scheduler.Refresh(ctx); err != nil {
		log.Error("failed initial trigger schedule refresh", "error", err)
		os.Exit(1)
	}
	scheduler.Start(ctx)

	channels, secrets := buildChannelRegistry(cfg, log)
	chanRouter := router.New(channels, holders, &st)

	srv := fluxapi.NewServer(&st, holders, triggerSvc, executor, proposals, chanRouter, secrets, dashboardFeed, log)

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.Start(cfg.Server.HTTPAddr); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errc:
		log.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	executor.Stop(shutdownCtx)
	reconciler.Stop()
}

// openStore selects the row store backend. Postgres (pkg/store/pgstore) is
// the production default; FLUXRELAY_STORE_BACKEND=memory switches to the
// in-process memstore for local development, since nothing in pkg/config
// validates a backend choice one way or the other. The returned pool is nil
// for the memory backend — LISTEN/NOTIFY has no in-memory equivalent, so
// setupDashboardFeed treats a nil pool as "feed disabled".
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, *pgxpool.Pool, func(), error) {
	if getEnv("FLUXRELAY_STORE_BACKEND", "postgres") == "memory" {
		log.Warn("using in-memory store backend, no data survives a restart")
		return memstore.New().AsStore(), nil, func() {}, nil
	}

	dbCfg, err := pgstore.LoadConfigFromEnv()
	if err != nil {
		return store.Store{}, nil, nil, fmt.Errorf("load database config: %w", err)
	}
	client, err := pgstore.NewClient(ctx, dbCfg)
	if err != nil {
		return store.Store{}, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return client.AsStore(), client.Pool(), client.Close, nil
}

// setupDashboardFeed wires the cross-process admin dashboard feed when a
// Postgres pool is available; on the memory backend it returns a nil
// *feed.Broadcaster and a no-op stop func, and the registry is left with no
// StatusPublisher — every holder then behaves exactly as it would without
// this feature at all.
func setupDashboardFeed(ctx context.Context, pool *pgxpool.Pool, holders *holder.Registry, cfg *config.Config, log *slog.Logger) (*feed.Broadcaster, func()) {
	if pool == nil {
		return nil, func() {}
	}

	dbCfg, err := pgstore.LoadConfigFromEnv()
	if err != nil {
		log.Error("dashboard feed disabled: load database config", "error", err)
		return nil, func() {}
	}

	publisher := feed.NewPublisher(pool, log)
	holders.SetStatusPublisher(feed.NewHolderAdapter(publisher))

	broadcaster := feed.NewBroadcaster(log)
	listener := feed.NewListener(dbCfg.DSN(), broadcaster.OnEvent, log)
	if err := listener.Start(ctx); err != nil {
		log.Error("dashboard feed disabled: listener start failed", "error", err)
		return nil, func() {}
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		listener.Stop(stopCtx)
	}
	return broadcaster, stop
}

// buildChannelRegistry constructs every enabled channel adapter from cfg and
// returns both the registry and the per-channel-type secret map the /channels
// webhook route verifies inbound signatures against. The web adapter has no
// secret and is always registered, since browser clients need a ChannelType
// entry to route against even though they never hit the webhook path.
func buildChannelRegistry(cfg *config.Config, log *slog.Logger) (*channel.Registry, map[scopekey.ChannelType]string) {
	adapters := []channel.Adapter{web.New()}
	secrets := map[scopekey.ChannelType]string{}

	if cfg.Channels.Slack.Enabled {
		token := os.Getenv(cfg.Channels.Slack.BotTokenEnv)
		secret := os.Getenv(cfg.Channels.Slack.SigningSecretEnv)
		adapters = append(adapters, slack.New(token, secret))
		secrets[scopekey.ChannelSlack] = secret
	}
	if cfg.Channels.GitHub.Enabled {
		token := os.Getenv(cfg.Channels.GitHub.TokenEnv)
		secret := os.Getenv(cfg.Channels.GitHub.WebhookSecretEnv)
		adapters = append(adapters, github.New(token))
		secrets[scopekey.ChannelGitHub] = secret
	}
	if cfg.Channels.Telegram.Enabled {
		token := os.Getenv(cfg.Channels.Telegram.BotTokenEnv)
		secret := os.Getenv(cfg.Channels.Telegram.WebhookSecretEnv)
		tg, err := telegram.New(token)
		if err != nil {
			log.Error("failed to build telegram adapter, channel disabled", "error", err)
		} else {
			adapters = append(adapters, tg)
			secrets[scopekey.ChannelTelegram] = secret
		}
	}
	if cfg.Channels.API.Enabled {
		secret := os.Getenv(cfg.Channels.API.SigningKeyEnv)
		adapters = append(adapters, api.New())
		secrets[scopekey.ChannelAPI] = secret
	}

	return channel.NewRegistry(adapters...), secrets
}
