package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripQueryToken_RemovesTokenKeepsOthers(t *testing.T) {
	u, err := url.Parse("http://example.com/path?token=secret&foo=bar")
	require.NoError(t, err)

	stripQueryToken(u)

	assert.Equal(t, "bar", u.Query().Get("foo"))
	assert.Empty(t, u.Query().Get("token"))
}

func TestIsWebSocketUpgrade(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	assert.False(t, isWebSocketUpgrade(r))

	r.Header.Set("Upgrade", "websocket")
	assert.True(t, isWebSocketUpgrade(r))

	r.Header.Set("Upgrade", "WebSocket")
	assert.True(t, isWebSocketUpgrade(r))
}

func TestHTTPToWS(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:39000", httpToWS("http://127.0.0.1:39000"))
	assert.Equal(t, "wss://example.com", httpToWS("https://example.com"))
}

func TestNewReverseProxy_StripsHeadersAndSetsHost(t *testing.T) {
	var gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		assert.Empty(t, r.Header.Get("Connection"))
		w.Header().Set("Transfer-Encoding", "chunked")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	proxy := newReverseProxy(target, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()

	proxy.ServeHTTP(rec, req)

	resp := rec.Result()
	assert.Empty(t, resp.Header.Get("Transfer-Encoding"))
	assert.Empty(t, resp.Header.Get("Connection"))
	assert.Equal(t, target.Host, gotHost)
}

func TestNewReverseProxy_ErrorHandlerReturnsBadGateway(t *testing.T) {
	target, err := url.Parse("http://127.0.0.1:1") // nothing listens here
	require.NoError(t, err)
	proxy := newReverseProxy(target, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	proxy.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
