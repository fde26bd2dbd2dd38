package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurst(t *testing.T) {
	t.Parallel()

	l := NewLimiter(1, 3)
	for i := range 3 {
		assert.True(t, l.Allow("a"), "request %d", i)
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have separate buckets")
	assert.Less(t, l.Tokens("a"), 1.0)
}

func TestLimiterPrune(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(100, 1)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(time.Hour)
	l.Allow("new")

	assert.Equal(t, 1, l.Prune(30*time.Minute))
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "new")
}

func TestClientKey(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		header, remote, want string
	}{
		"header wins":      {header: "team-a", remote: "10.0.0.1:5000", want: "team-a"},
		"remote host":      {remote: "10.0.0.1:5000", want: "10.0.0.1"},
		"ipv6 remote host": {remote: "[::1]:5000", want: "::1"},
		"unparsable":       {remote: "pipe", want: "pipe"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.header != "" {
				r.Header.Set(ClientHeader, tt.header)
			}
			assert.Equal(t, tt.want, ClientKey(r))
		})
	}
}
