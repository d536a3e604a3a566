package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeGatewayUpstreams_UserOverridesBuiltinPrefix(t *testing.T) {
	builtin := []GatewayUpstream{
		{Prefix: "/vscode", Target: "http://127.0.0.1:39000"},
	}
	user := []GatewayUpstream{
		{Prefix: "/vscode", Target: "http://127.0.0.1:40000", AuthRequired: true},
		{Prefix: "/ttyd", Target: "http://127.0.0.1:41000", Subprotocol: "tty"},
	}

	merged := mergeGatewayUpstreams(builtin, user)

	require.Len(t, merged, 2)
	assert.Equal(t, "http://127.0.0.1:40000", merged[0].Target)
	assert.True(t, merged[0].AuthRequired)
	assert.Equal(t, "/ttyd", merged[1].Prefix)
}

func TestMergeGatewayUpstreams_NoUserEntriesKeepsBuiltin(t *testing.T) {
	builtin := []GatewayUpstream{{Prefix: "/vscode", Target: "http://127.0.0.1:39000"}}
	merged := mergeGatewayUpstreams(builtin, nil)
	assert.Equal(t, builtin, merged)
}

func TestMergeHolderDefaults_NilUserKeepsBase(t *testing.T) {
	base := DefaultHolderDefaults()
	merged, err := mergeHolderDefaults(base, nil)
	require.NoError(t, err)
	assert.Same(t, base, merged)
}

func TestMergeHolderDefaults_UserOverridesNonZeroFields(t *testing.T) {
	base := DefaultHolderDefaults()
	user := &HolderDefaults{MaxCollectDebounceMs: 2000}

	merged, err := mergeHolderDefaults(base, user)
	require.NoError(t, err)
	assert.Equal(t, 2000, merged.MaxCollectDebounceMs)
	assert.Equal(t, base.RunnerRequestTimeout, merged.RunnerRequestTimeout)
}

func TestMergeHolderDefaults_UserZeroDurationDoesNotClobberBase(t *testing.T) {
	base := DefaultHolderDefaults()
	user := &HolderDefaults{RunnerRequestTimeout: 0}

	merged, err := mergeHolderDefaults(base, user)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, merged.RunnerRequestTimeout)
}
