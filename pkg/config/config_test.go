package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_StatsCountsEnabledChannelsAndUpstreams(t *testing.T) {
	cfg := &Config{
		configDir: "/etc/fluxrelay",
		Gateway: &GatewayConfig{
			Upstreams: []GatewayUpstream{{Prefix: "/a", Target: "http://x"}, {Prefix: "/b", Target: "http://y"}},
		},
		Channels: &ChannelsConfig{
			Slack:  SlackChannelConfig{Enabled: true},
			GitHub: GitHubChannelConfig{Enabled: true},
		},
	}

	stats := cfg.Stats()
	assert.Equal(t, 2, stats.GatewayUpstreams)
	assert.Equal(t, 2, stats.ChannelsEnabled)
	assert.Equal(t, "/etc/fluxrelay", cfg.ConfigDir())
}
