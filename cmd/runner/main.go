// Command runner is the process that runs inside a sandbox: it dials the
// owning session holder's runner socket over pkg/runnerbridge and serves
// the in-sandbox reverse proxy (pkg/gateway) that fronts local dev-tool
// processes and relays runner-initiated requests back over that same
// socket. The agent loop that actually interprets prompt/answer/abort
// frames is an external collaborator linked in by whatever builds the
// sandbox image; this binary only wires the transport.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxrelay/fluxrelay/pkg/config"
	"github.com/fluxrelay/fluxrelay/pkg/gateway"
	"github.com/fluxrelay/fluxrelay/pkg/runnerbridge"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loggingFrameHandler logs every frame the holder sends to the runner. A
// real sandbox image replaces this with its own agent loop; it is wired in
// here only so this binary is runnable on its own.
type loggingFrameHandler struct {
	log *slog.Logger
}

func (h loggingFrameHandler) HandleFrame(_ context.Context, frameType string, raw json.RawMessage) {
	h.log.Info("frame from holder", "type", frameType, "bytes", len(raw))
}

func main() {
	configDir := getEnv("CONFIG_DIR", "./deploy/config")
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "runner")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		log.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	wsURL := os.Getenv("FLUXRELAY_RUNNER_WS_URL")
	token := os.Getenv("FLUXRELAY_RUNNER_TOKEN")
	if wsURL == "" || token == "" {
		log.Error("FLUXRELAY_RUNNER_WS_URL and FLUXRELAY_RUNNER_TOKEN must both be set")
		os.Exit(1)
	}

	bridge := runnerbridge.NewClient(wsURL, token, loggingFrameHandler{log: log})

	upstreams := make([]gateway.Upstream, 0, len(cfg.Gateway.Upstreams))
	for _, u := range cfg.Gateway.Upstreams {
		upstreams = append(upstreams, gateway.Upstream{
			Prefix:       u.Prefix,
			Target:       u.Target,
			AuthRequired: u.AuthRequired,
			Subprotocol:  u.Subprotocol,
		})
	}
	gw := gateway.NewServer(gateway.Config{
		JWTSecret: os.Getenv(cfg.Gateway.JWTSecretEnv),
		Upstreams: upstreams,
		Bridge:    bridge,
	})

	gwErrc := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", cfg.Gateway.HTTPAddr)
		gwErrc <- gw.Run(ctx, cfg.Gateway.HTTPAddr)
	}()

	bridgeErrc := make(chan error, 1)
	go func() { bridgeErrc <- bridge.Run(ctx) }()

	select {
	case err := <-gwErrc:
		if err != nil && ctx.Err() == nil {
			log.Error("gateway server exited", "error", err)
			os.Exit(1)
		}
	case err := <-bridgeErrc:
		switch {
		case errors.Is(err, runnerbridge.ErrSuperseded):
			log.Info("superseded by a newer runner connection, exiting cleanly")
			os.Exit(0)
		case errors.Is(err, runnerbridge.ErrOrphaned):
			log.Error("runner token rejected repeatedly, sandbox orphaned")
			os.Exit(1)
		case err != nil && ctx.Err() == nil:
			log.Error("runner bridge exited unexpectedly", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}
}
