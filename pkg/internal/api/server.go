// Package api serves the bridge endpoints of the vanish proxy over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/pires/go-proxyproto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/atomic"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"go.minekube.com/vanish/pkg/bridge"
	"go.minekube.com/vanish/pkg/internal/addrquota"
	"go.minekube.com/vanish/pkg/vanish/config"
)

// Endpoint paths.
const (
	PathBridge = "/bridge"
	PathStatus = "/status"
)

// Server serves the bridge websocket endpoint and the status endpoint
// of a proxy. Its routes can be rebuilt at runtime with Update.
type Server struct {
	proxy *bridge.Proxy
	log   logr.Logger

	handler atomic.Pointer[http.Handler]
}

var _ http.Handler = (*Server)(nil)

// NewServer returns a Server routing to p as configured by cfg.
func NewServer(p *bridge.Proxy, cfg *config.Config, log logr.Logger) *Server {
	s := &Server{proxy: p, log: log}
	s.Update(cfg)
	return s
}

// Update rebuilds the routes for the secret and quota settings of cfg.
// Sessions that are already attached are kept.
func (s *Server) Update(cfg *config.Config) {
	opts := bridge.HandlerOptions{Secret: cfg.Bridge.Secret, Logger: s.log}
	var bridgeHandler http.Handler = s.proxy.Handler(opts)
	if q := cfg.Bridge.Quota; q.Enabled {
		bridgeHandler = addrquota.New(q.OPS, q.Burst, q.MaxEntries).Middleware(bridgeHandler)
	}
	mux := http.NewServeMux()
	mux.Handle(PathBridge, bridgeHandler)
	mux.Handle(PathStatus, otelhttp.NewHandler(s.proxy.StatusHandler(opts), "vanish.status"))
	var h http.Handler = mux
	s.handler.Store(&h)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.handler.Load()).ServeHTTP(w, r)
}

// Listen listens on the bridge bind address, accepting PROXY protocol
// headers if enabled.
func Listen(cfg config.Bridge) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return nil, err
	}
	if cfg.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln, ReadHeaderTimeout: 5 * time.Second}
	}
	return ln, nil
}

// Start serves on ln until ctx is done.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("starting bridge service", "bind", ln.Addr().String())

	// No read or write timeouts since bridge sessions are long lived.
	hs := &http.Server{
		Handler: h2c.NewHandler(s, &http2.Server{
			IdleTimeout: time.Second * 30,
		}),
		ReadHeaderTimeout: time.Second * 5,
		IdleTimeout:       time.Second * 30,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return hs.Shutdown(stopCtx)
	})
	eg.Go(func() error { return ignoreClosed(hs.Serve(ln)) })

	return eg.Wait()
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
