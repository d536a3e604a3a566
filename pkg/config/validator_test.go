package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("FLUXRELAY_TEST_DSN", "postgres://localhost/fluxrelay")
	return &Config{
		Server:   DefaultServerConfig(),
		Database: &DatabaseConfig{DSNEnv: "FLUXRELAY_TEST_DSN", MaxConns: 5},
		Gateway: &GatewayConfig{
			HTTPAddr: ":8443",
			Upstreams: []GatewayUpstream{
				{Prefix: "/vscode", Target: "http://127.0.0.1:39000"},
			},
		},
		Channels: &ChannelsConfig{},
		Holder:   DefaultHolderDefaults(),
		Trigger:  DefaultTriggerConfig(),
		Workflow: DefaultWorkflowConfig(),
	}
}

func TestValidateAll_ValidConfigPasses(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAll_MissingHTTPAddrFails(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.HTTPAddr = ""
	require.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAll_MissingDSNEnvVarFails(t *testing.T) {
	cfg := validConfig(t)
	cfg.Database.DSNEnv = "FLUXRELAY_UNSET_DSN_VAR"
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestValidateAll_DuplicateGatewayPrefixFails(t *testing.T) {
	cfg := validConfig(t)
	cfg.Gateway.Upstreams = append(cfg.Gateway.Upstreams, GatewayUpstream{
		Prefix: "/vscode", Target: "http://127.0.0.1:41000",
	})
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestValidateAll_EnabledChannelWithoutSecretEnvFails(t *testing.T) {
	cfg := validConfig(t)
	cfg.Channels.Slack = SlackChannelConfig{Enabled: true}
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestValidateAll_EnabledChannelWithSecretsSetPasses(t *testing.T) {
	cfg := validConfig(t)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_SIGNING_SECRET", "shh")
	cfg.Channels.Slack = SlackChannelConfig{
		Enabled:          true,
		BotTokenEnv:      "SLACK_BOT_TOKEN",
		SigningSecretEnv: "SLACK_SIGNING_SECRET",
	}
	assert.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAll_HolderDebounceOutOfRangeFails(t *testing.T) {
	cfg := validConfig(t)
	cfg.Holder.MaxCollectDebounceMs = 20000
	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}
