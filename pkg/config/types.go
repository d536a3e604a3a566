package config

import "time"

// ServerConfig holds the main server's listen address and runtime limits.
type ServerConfig struct {
	HTTPAddr            string        `yaml:"http_addr"`
	ShutdownGrace       time.Duration `yaml:"shutdown_grace"`
	MaxHolderInboxDepth int           `yaml:"max_holder_inbox_depth" validate:"omitempty,min=1"`
}

// DatabaseConfig holds the Postgres connection settings used by pkg/store/pgstore.
// DSNEnv names the environment variable holding the DSN — the DSN itself
// never appears in a YAML file.
type DatabaseConfig struct {
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int32         `yaml:"max_conns" validate:"omitempty,min=1"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// GatewayUpstream mirrors pkg/gateway.Upstream, expressed as YAML-loadable config.
type GatewayUpstream struct {
	Prefix       string `yaml:"prefix" validate:"required"`
	Target       string `yaml:"target" validate:"required"`
	AuthRequired bool   `yaml:"auth_required"`
	Subprotocol  string `yaml:"subprotocol,omitempty"`
}

// GatewayConfig holds the in-sandbox proxy's listen address, JWT secret
// reference, and proxied upstream table.
type GatewayConfig struct {
	HTTPAddr     string            `yaml:"http_addr"`
	JWTSecretEnv string            `yaml:"jwt_secret_env"`
	Upstreams    []GatewayUpstream `yaml:"upstreams"`
}

// SlackChannelConfig configures the Slack adapter.
type SlackChannelConfig struct {
	Enabled          bool   `yaml:"enabled"`
	BotTokenEnv      string `yaml:"bot_token_env"`
	SigningSecretEnv string `yaml:"signing_secret_env"`
}

// GitHubChannelConfig configures the GitHub adapter.
type GitHubChannelConfig struct {
	Enabled          bool   `yaml:"enabled"`
	TokenEnv         string `yaml:"token_env"`
	WebhookSecretEnv string `yaml:"webhook_secret_env"`
}

// TelegramChannelConfig configures the Telegram adapter.
type TelegramChannelConfig struct {
	Enabled          bool   `yaml:"enabled"`
	BotTokenEnv      string `yaml:"bot_token_env"`
	WebhookSecretEnv string `yaml:"webhook_secret_env"`
}

// APIChannelConfig configures the generic API adapter.
type APIChannelConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SigningKeyEnv string `yaml:"signing_key_env"`
}

// ChannelsConfig groups every channel adapter's settings. The web adapter
// carries no secrets and is always enabled, so it has no entry here.
type ChannelsConfig struct {
	Slack    SlackChannelConfig    `yaml:"slack"`
	GitHub   GitHubChannelConfig   `yaml:"github"`
	Telegram TelegramChannelConfig `yaml:"telegram"`
	API      APIChannelConfig      `yaml:"api"`
}

// HolderDefaults holds the configured upper bound on a channel binding's
// collect debounce window (validated to 0–10000 ms) and the runner request
// timeout. pkg/holder reads neither value: it applies a binding's
// CollectDebounceMs as stored.
type HolderDefaults struct {
	MaxCollectDebounceMs int           `yaml:"max_collect_debounce_ms" validate:"omitempty,min=0,max=10000"`
	RunnerRequestTimeout time.Duration `yaml:"runner_request_timeout"`
}

// TriggerConfig holds scheduler-wide defaults for pkg/trigger's cron dispatch.
type TriggerConfig struct {
	SchedulerTickZone string `yaml:"scheduler_tick_zone"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs" validate:"omitempty,min=1"`
}

// WorkflowConfig holds the reconciler's sweep intervals.
type WorkflowConfig struct {
	ApprovalTimeoutSweep time.Duration `yaml:"approval_timeout_sweep"`
	StaleExecutionSweep  time.Duration `yaml:"stale_execution_sweep"`
	StaleExecutionAfter  time.Duration `yaml:"stale_execution_after"`
}
