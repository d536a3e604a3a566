// Package gateway is the in-sandbox HTTP+WebSocket reverse proxy: it fronts
// the local dev-tool processes (model server, code editor, remote desktop,
// terminal) behind a JWT→cookie auth handoff, and exposes a localhost-only
// internal API that marshals each request into a runner-initiated request
// frame over pkg/runnerbridge and returns the correlated response
// synchronously to the HTTP caller. Routing and the echo.Echo server shape
// are grounded on the teacher's pkg/api.Server; the auth handoff and
// internal-API-as-thin-marshaling-layer are new, since the teacher has no
// analogous in-sandbox proxy.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/fluxrelay/fluxrelay/pkg/runnerbridge"
)

// Upstream describes one proxied route.
type Upstream struct {
	Prefix      string // e.g. "/vscode"
	Target      string // base URL, e.g. "http://127.0.0.1:39000"
	AuthRequired bool
	Subprotocol string // non-empty only for /ttyd ("tty")
}

// Config configures a Server.
type Config struct {
	JWTSecret  string
	Upstreams  []Upstream
	Bridge     *runnerbridge.Client // used by the internal API surface
}

// Server is the runner gateway proxy.
type Server struct {
	cfg    Config
	echo   *echo.Echo
	tokens *tokenStore
	log    *slog.Logger
}

// NewServer builds a Server and registers every route from cfg.Upstreams
// plus the fixed /health and /api/* routes.
func NewServer(cfg Config) *Server {
	e := echo.New()
	s := &Server{
		cfg:    cfg,
		echo:   e,
		tokens: newTokenStore(),
		log:    slog.Default().With("component", "gateway"),
	}

	e.Use(middleware.BodyLimit(10 * 1024 * 1024))
	e.GET("/health", s.healthHandler)

	for _, up := range cfg.Upstreams {
		s.registerUpstream(up)
	}
	s.registerInternalAPI()

	return s
}

// Run starts the HTTP listener and a periodic token-sweep goroutine; it
// blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.sweepLoop(ctx)

	srv := &http.Server{Addr: addr, Handler: s.echo}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.tokens.sweepExpired(t)
		}
	}
}

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// registerUpstream wires one proxied prefix. GET/POST/etc traffic goes
// through the HTTP reverse proxy; a request with an Upgrade: websocket
// header is handled by proxyWebSocket instead.
func (s *Server) registerUpstream(up Upstream) {
	targetURL, err := url.Parse(up.Target)
	if err != nil {
		s.log.Error("gateway: invalid upstream target, route disabled", "prefix", up.Prefix, "error", err)
		return
	}
	httpProxy := newReverseProxy(targetURL, s.log)

	handler := func(c *echo.Context) error {
		r := c.Request()
		if up.AuthRequired && !s.authenticate(c) {
			return c.NoContent(http.StatusUnauthorized)
		}
		if isWebSocketUpgrade(r) {
			wsTarget := httpToWS(up.Target) + strings.TrimPrefix(r.URL.Path, up.Prefix)
			u, _ := url.Parse(wsTarget)
			stripQueryToken(u)
			proxyWebSocket(c.Response(), r, u.String(), up.Subprotocol, s.log)
			return nil
		}
		httpProxy.ServeHTTP(c.Response(), r)
		return nil
	}
	s.echo.Any(up.Prefix, handler)
	s.echo.Any(up.Prefix+"/*", handler)
}

func httpToWS(target string) string {
	if strings.HasPrefix(target, "https://") {
		return "wss://" + strings.TrimPrefix(target, "https://")
	}
	return "ws://" + strings.TrimPrefix(target, "http://")
}

// authenticate implements the JWT-or-cookie handoff: a bearer JWT on the
// first request mints an opaque cookie good for cookieTTL; subsequent
// requests (including WebSocket upgrades, which cannot carry an
// Authorization header from a browser) present the cookie instead.
func (s *Server) authenticate(c *echo.Context) bool {
	if cookie, err := c.Cookie("fluxrelay_session"); err == nil {
		if _, ok := s.tokens.check(cookie.Value); ok {
			return true
		}
	}

	authz := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return false
	}
	claims, err := verifyJWT(strings.TrimPrefix(authz, "Bearer "), s.cfg.JWTSecret)
	if err != nil {
		s.log.Warn("gateway: jwt verification failed", "error", err)
		return false
	}
	tok, err := s.tokens.mint(claims.Subject, claims.SessionID)
	if err != nil {
		s.log.Error("gateway: mint session token failed", "error", err)
		return false
	}
	c.SetCookie(&http.Cookie{
		Name:     "fluxrelay_session",
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		MaxAge:   int(cookieTTL.Seconds()),
	})
	return true
}

// internalAPIRoute is one entry of the localhost-only internal API surface:
// each maps an HTTP route straight onto a runnerbridge operation name.
type internalAPIRoute struct {
	method string
	path   string
	op     string
}

// internalAPIRoutes enumerates the full internal API surface: image upload,
// child session lifecycle, cross-session messaging, PR operations, git
// state, memory, repos/personas listing, workflow/trigger/execution CRUD,
// mailbox, task board, and channel reply — every route is a thin marshal to
// a typed request frame over the bridge.
var internalAPIRoutes = []internalAPIRoute{
	{http.MethodPost, "/api/images", "upload-image"},
	{http.MethodPost, "/api/children", "spawn-child"},
	{http.MethodDelete, "/api/children/:id", "terminate-child"},
	{http.MethodPost, "/api/messages", "send-message"},
	{http.MethodGet, "/api/messages/:sessionId", "read-messages"},
	{http.MethodPost, "/api/prs", "create-pr"},
	{http.MethodPatch, "/api/prs/:id", "update-pr"},
	{http.MethodGet, "/api/prs", "list-prs"},
	{http.MethodGet, "/api/prs/:id", "inspect-pr"},
	{http.MethodPost, "/api/git-state", "report-git-state"},
	{http.MethodPost, "/api/memory", "memory-write"},
	{http.MethodGet, "/api/memory/:key", "memory-read"},
	{http.MethodGet, "/api/memory", "memory-list"},
	{http.MethodGet, "/api/repos", "list-repos"},
	{http.MethodGet, "/api/personas", "list-personas"},
	{http.MethodPost, "/api/workflows", "create-workflow"},
	{http.MethodGet, "/api/workflows/:id", "get-workflow"},
	{http.MethodPost, "/api/triggers", "create-trigger"},
	{http.MethodGet, "/api/triggers/:id", "get-trigger"},
	{http.MethodPost, "/api/executions", "create-execution"},
	{http.MethodGet, "/api/executions/:id", "get-execution"},
	{http.MethodPost, "/api/mailbox/send", "mailbox-send"},
	{http.MethodGet, "/api/mailbox/check", "mailbox-check"},
	{http.MethodPost, "/api/tasks", "task-board-create"},
	{http.MethodGet, "/api/tasks", "task-board-list"},
	{http.MethodPost, "/api/channel-reply", "channel-reply"},
}

// registerInternalAPI wires every internalAPIRoutes entry behind a
// localhost-only middleware — no JWT/cookie auth, since this surface is
// reachable only from processes already inside the sandbox's network
// namespace.
func (s *Server) registerInternalAPI() {
	group := s.echo.Group("/api", s.localhostOnly)
	for _, route := range internalAPIRoutes {
		path := strings.TrimPrefix(route.path, "/api")
		group.Add(route.method, path, s.internalAPIHandler(route.op))
	}
}

func (s *Server) localhostOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		host := c.Request().RemoteAddr
		if !strings.HasPrefix(host, "127.0.0.1") && !strings.HasPrefix(host, "[::1]") && !strings.HasPrefix(host, "localhost") {
			return c.NoContent(http.StatusForbidden)
		}
		return next(c)
	}
}

// internalAPIHandler marshals the request body plus path params into a
// bridge Request call for op and relays the correlated response.
func (s *Server) internalAPIHandler(op string) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.cfg.Bridge == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "runner bridge not connected"})
		}
		var payload map[string]any
		if c.Request().ContentLength > 0 {
			if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid body: %v", err)})
			}
		}
		if payload == nil {
			payload = map[string]any{}
		}
		for _, name := range c.ParamNames() {
			payload[name] = c.Param(name)
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
		defer cancel()

		requestID := c.Response().Header().Get("X-Request-Id")
		if requestID == "" {
			requestID = fmt.Sprintf("%s-%d", op, time.Now().UnixNano())
		}
		result, err := s.cfg.Bridge.Request(ctx, requestID, op, payload)
		if err != nil {
			return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	}
}
