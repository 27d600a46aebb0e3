package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.minekube.com/vanish/pkg/vanish/user"
)

func newWebSocketProxy(t *testing.T, secret string) (*Proxy, string) {
	t.Helper()
	p := NewProxy(ProxyOptions{})
	srv := httptest.NewServer(p.Handler(HandlerOptions{Secret: secret}))
	t.Cleanup(srv.Close)
	return p, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocket_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, url := newWebSocketProxy(t, "s3cret")
	dialer := &WebSocketDialer{URL: url, Secret: "s3cret"}

	s1 := startBackend(t, ctx, "s1", dialer)
	s2 := startBackend(t, ctx, "s2", dialer)
	assert.Equal(t, []string{"s1", "s2"}, p.Backends())

	s1.join(alice, "alice", user.State{Vanished: true, Level: 5})
	require.Eventually(t, func() bool {
		u, ok := s2.store.Get(alice)
		return ok && u.Vanished && u.Level == 5
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocket_RejectsInvalidSecret(t *testing.T) {
	_, url := newWebSocketProxy(t, "s3cret")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := (&WebSocketDialer{URL: url, Secret: "wrong"}).Dial(ctx, "s1")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = (&WebSocketDialer{URL: url}).Dial(ctx, "s1")
	require.Error(t, err)
}

func TestHandler_RequiresServerID(t *testing.T) {
	p := NewProxy(ProxyOptions{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/bridge", nil)
	p.Handler(HandlerOptions{}).ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidToken(t *testing.T) {
	assert.True(t, validToken("Bearer abc", "abc"))
	assert.False(t, validToken("Bearer abd", "abc"))
	assert.False(t, validToken("abc", "abc"))
}
