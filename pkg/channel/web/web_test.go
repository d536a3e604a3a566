package web

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

func TestChannelType(t *testing.T) {
	assert.Equal(t, scopekey.ChannelWeb, New().ChannelType())
}

func TestVerifySignatureAlwaysTrue(t *testing.T) {
	assert.True(t, New().VerifySignature(nil, nil, ""))
}
