package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/pires/go-proxyproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.minekube.com/vanish/pkg/bridge"
	"go.minekube.com/vanish/pkg/vanish/config"
)

func testConfig(secret string) *config.Config {
	cfg := config.DefaultConfig
	cfg.Bridge.Secret = secret
	cfg.Bridge.Quota.Enabled = false
	return &cfg
}

func TestServer_BridgeAndStatus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := bridge.NewProxy(bridge.ProxyOptions{})
	srv := httptest.NewServer(NewServer(p, testConfig("s3cret"), logr.Discard()))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + PathBridge

	conn, err := (&bridge.WebSocketDialer{URL: wsURL, Secret: "s3cret"}).Dial(ctx, "lobby")
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return p.Connected("lobby") }, 2*time.Second, 5*time.Millisecond)

	statusURL, err := bridge.StatusURL(wsURL)
	require.NoError(t, err)
	s, err := (&bridge.StatusClient{URL: statusURL, Secret: "s3cret"}).Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lobby"}, s.Backends)
}

func TestServer_UpdateSecret(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := bridge.NewProxy(bridge.ProxyOptions{})
	s := NewServer(p, testConfig("old"), logr.Discard())
	srv := httptest.NewServer(s)
	defer srv.Close()

	client := &bridge.StatusClient{URL: srv.URL + PathStatus, Secret: "new"}
	_, err := client.Fetch(ctx)
	require.ErrorIs(t, err, bridge.ErrUnauthorized)

	s.Update(testConfig("new"))
	_, err = client.Fetch(ctx)
	require.NoError(t, err)
}

func TestServer_Quota(t *testing.T) {
	cfg := testConfig("")
	cfg.Bridge.Quota = config.Quota{Enabled: true, OPS: 0.001, Burst: 1, MaxEntries: 10}
	s := NewServer(bridge.NewProxy(bridge.ProxyOptions{}), cfg, logr.Discard())

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, PathBridge, nil)
		r.RemoteAddr = "10.0.0.1:4000"
		s.ServeHTTP(w, r)
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, PathStatus, nil))
	assert.Equal(t, http.StatusOK, w.Code, "status is not rate limited")
}

func TestListen_ProxyProtocol(t *testing.T) {
	ln, err := Listen(config.Bridge{Bind: "127.0.0.1:0", ProxyProtocol: true})
	require.NoError(t, err)
	defer ln.Close()
	_, ok := ln.(*proxyproto.Listener)
	assert.True(t, ok)

	plain, err := Listen(config.Bridge{Bind: "127.0.0.1:0"})
	require.NoError(t, err)
	defer plain.Close()
	_, ok = plain.(*net.TCPListener)
	assert.True(t, ok)
}

func TestServer_Start(t *testing.T) {
	ln, err := Listen(config.Bridge{Bind: "127.0.0.1:0"})
	require.NoError(t, err)
	s := NewServer(bridge.NewProxy(bridge.ProxyOptions{}), testConfig(""), logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, ln) }()

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	_, err = (&bridge.StatusClient{URL: "http://" + ln.Addr().String() + PathStatus}).Fetch(reqCtx)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
