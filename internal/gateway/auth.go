package gateway

import (
	"crypto/subtle"
	"net"
	"os"
	"sync"
	"time"

	"github.com/soyeahso/iris/internal/config"
)

// TokenEnv overrides the configured overlay token when the config leaves it
// empty.
const TokenEnv = "IRIS_GATEWAY_TOKEN"

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// ResolveToken returns the configured token, falling back to TokenEnv.
func ResolveToken(cfg config.GatewayAuth) string {
	if cfg.Token != "" {
		return cfg.Token
	}
	return os.Getenv(TokenEnv)
}

// Authorize checks the connect credentials against the server token.
func Authorize(serverToken string, clientAuth *ConnectAuth) AuthResult {
	if serverToken == "" {
		return AuthResult{OK: false, Reason: "server token not configured"}
	}
	if clientAuth == nil || clientAuth.Token == "" {
		return AuthResult{OK: false, Reason: "token required"}
	}
	if !safeEqual(clientAuth.Token, serverToken) {
		return AuthResult{OK: false, Reason: "token_mismatch"}
	}
	return AuthResult{OK: true}
}

// safeEqual is a constant-time comparison that does not leak the length of
// either input.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

// authRateLimiter tracks failed handshakes per remote host.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

func remoteHost(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		return remoteAddr
	}
	return host
}

// allow prunes stale failures for the host and reports whether it may try
// again.
func (l *authRateLimiter) allow(remoteAddr string) bool {
	host := remoteHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(l.failures[host])
	if len(recent) == 0 {
		delete(l.failures, host)
		return true
	}
	l.failures[host] = recent
	return len(recent) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		l.sweep()
		if len(l.failures) >= authRateMaxIPs {
			return
		}
	}
	l.failures[host] = append(l.failures[host], l.now())
}

// sweep drops every host whose failures have all expired. Callers hold mu.
func (l *authRateLimiter) sweep() {
	for host, times := range l.failures {
		if recent := l.prune(times); len(recent) == 0 {
			delete(l.failures, host)
		} else {
			l.failures[host] = recent
		}
	}
}

func (l *authRateLimiter) prune(times []time.Time) []time.Time {
	cutoff := l.now().Add(-authRateWindow)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
