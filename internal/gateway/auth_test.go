package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/soyeahso/iris/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("secret", "secret"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("secret", "wrong"))
	assert.False(t, safeEqual("short", "longer-string"))
	assert.False(t, safeEqual("secret", ""))
}

func TestResolveToken(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")
	assert.Equal(t, "config-token", ResolveToken(config.GatewayAuth{Token: "config-token"}))
	assert.Equal(t, "env-token", ResolveToken(config.GatewayAuth{}))
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		server string
		client *ConnectAuth
		ok     bool
		reason string
	}{
		{"match", "secret", &ConnectAuth{Token: "secret"}, true, ""},
		{"mismatch", "secret", &ConnectAuth{Token: "wrong"}, false, "token_mismatch"},
		{"no credentials", "secret", nil, false, "token required"},
		{"empty token", "secret", &ConnectAuth{}, false, "token required"},
		{"server unconfigured", "", &ConnectAuth{Token: "anything"}, false, "server token not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestAuthRateLimiter_BlocksAfterMaxFailures(t *testing.T) {
	l := newAuthRateLimiter()
	addr := "10.0.0.1:5555"

	for range authRateMaxFails - 1 {
		l.recordFailure(addr)
	}
	assert.True(t, l.allow(addr))

	l.recordFailure(addr)
	assert.False(t, l.allow(addr))
	assert.False(t, l.allow("10.0.0.1:6666"), "limit is per host, not per port")
	assert.True(t, l.allow("10.0.0.2:5555"))
}

func TestAuthRateLimiter_FailuresExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newAuthRateLimiter()
	l.now = func() time.Time { return now }

	for range authRateMaxFails {
		l.recordFailure("10.0.0.1:1")
	}
	assert.False(t, l.allow("10.0.0.1:1"))

	now = now.Add(authRateWindow + time.Second)
	assert.True(t, l.allow("10.0.0.1:1"))
	assert.Empty(t, l.failures)
}

func TestAuthRateLimiter_CapsTrackedHosts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newAuthRateLimiter()
	l.now = func() time.Time { return now }

	for i := range authRateMaxIPs {
		l.recordFailure(fmt.Sprintf("host-%d", i))
	}
	l.recordFailure("one-too-many")
	assert.Len(t, l.failures, authRateMaxIPs)

	now = now.Add(authRateWindow + time.Second)
	l.recordFailure("after-expiry")
	assert.Len(t, l.failures, 1)
}
