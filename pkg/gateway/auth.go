package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims is the bearer token payload the gateway accepts on the very
// first request of a session: subject, session id, expiry. Modeled on the
// pack's tombee-conductor JWT claims shape (embeds jwt.RegisteredClaims,
// adds one domain field), trimmed to just what the handoff needs.
type jwtClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// sessionToken is one opaque cookie token minted after a successful JWT
// verification.
type sessionToken struct {
	userID    string
	sessionID string
	expiresAt time.Time
}

// cookieTTL is how long a minted session token remains valid after the JWT
// handoff — subsequent requests reuse the cookie rather than the JWT.
const cookieTTL = 15 * time.Minute

// tokenStore is the in-memory opaque-token table backing the JWT→cookie
// handoff. A background goroutine sweeps expired entries; this is
// deliberately not persisted anywhere — the gateway only needs to survive
// for the lifetime of one sandbox process.
type tokenStore struct {
	mu     sync.RWMutex
	tokens map[string]sessionToken
}

func newTokenStore() *tokenStore {
	return &tokenStore{tokens: make(map[string]sessionToken)}
}

// mint generates a 32-byte hex opaque token bound to userID/sessionID with a
// fixed cookieTTL.
func (s *tokenStore) mint(userID, sessionID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("gateway: generate session token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	s.mu.Lock()
	s.tokens[tok] = sessionToken{userID: userID, sessionID: sessionID, expiresAt: time.Now().Add(cookieTTL)}
	s.mu.Unlock()
	return tok, nil
}

// check validates a cookie token, returning its bound session id. An
// expired or unknown token is rejected and, if expired, evicted.
func (s *tokenStore) check(tok string) (sessionID string, ok bool) {
	s.mu.RLock()
	entry, found := s.tokens[tok]
	s.mu.RUnlock()
	if !found {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.tokens, tok)
		s.mu.Unlock()
		return "", false
	}
	return entry.sessionID, true
}

// sweepExpired removes every token past its TTL. Intended to run
// periodically from a background goroutine started by Server.Run.
func (s *tokenStore) sweepExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, entry := range s.tokens {
		if now.After(entry.expiresAt) {
			delete(s.tokens, tok)
		}
	}
}

// verifyJWT parses and validates an HS256 bearer token against secret,
// returning the claims on success.
func verifyJWT(tokenString, secret string) (*jwtClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("gateway: empty bearer token")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	token, err := parser.ParseWithClaims(tokenString, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: parse jwt: %w", err)
	}
	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("gateway: invalid jwt claims")
	}
	return claims, nil
}
