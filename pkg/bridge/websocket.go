package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-logr/logr"

	"go.minekube.com/vanish/pkg/version"
)

// Header names used when a backend connects to the proxy.
const (
	HeaderServerID = "X-Vanish-Server"
	headerAuth     = "Authorization"
	bearerPrefix   = "Bearer "
)

// ErrUnauthorized is returned by WebSocketDialer.Dial if the proxy rejected the secret.
var ErrUnauthorized = errors.New("bridge secret rejected by proxy")

// maxMessageSize bounds a single frame. Snapshot responses of large
// networks are the biggest messages.
const maxMessageSize = 8 << 20

type wsConn struct{ c *websocket.Conn }

var _ Conn = (*wsConn)(nil)

func (w *wsConn) Send(ctx context.Context, m *Message) error {
	return closedErr(wsjson.Write(ctx, w.c, m))
}

func (w *wsConn) Receive(ctx context.Context) (*Message, error) {
	m := new(Message)
	if err := wsjson.Read(ctx, w.c, m); err != nil {
		return nil, closedErr(err)
	}
	return m, nil
}

func (w *wsConn) Close() error {
	err := w.c.Close(websocket.StatusNormalClosure, "")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return closedErr(err)
}

// closedErr maps a normal websocket closure to ErrClosed.
func closedErr(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return ErrClosed
	}
	return err
}

// WebSocketDialer dials the proxy's bridge endpoint.
type WebSocketDialer struct {
	// URL of the bridge endpoint, e.g. ws://proxy:25580/bridge.
	URL string
	// Secret is sent as bearer token if set.
	Secret string
	// HTTPClient is used for the handshake. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

var _ Dialer = (*WebSocketDialer)(nil)

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, serverID string) (Conn, error) {
	h := http.Header{}
	h.Set(HeaderServerID, serverID)
	h.Set("User-Agent", version.UserAgent())
	if d.Secret != "" {
		h.Set(headerAuth, bearerPrefix+d.Secret)
	}
	c, resp, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: h,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	c.SetReadLimit(maxMessageSize)
	return &wsConn{c: c}, nil
}

// HandlerOptions configure the proxy's websocket endpoint.
type HandlerOptions struct {
	// Secret backends must present as bearer token. Empty allows any backend.
	Secret string
	// Logger defaults to the proxy's logger.
	Logger logr.Logger
}

// Handler returns the http.Handler accepting backend websocket sessions.
func (p *Proxy) Handler(opts HandlerOptions) http.Handler {
	log := opts.Logger
	if log.GetSink() == nil {
		log = p.log
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opts.Secret != "" && !validToken(r.Header.Get(headerAuth), opts.Secret) {
			log.Info("rejected bridge connection with invalid secret", "remoteAddr", r.RemoteAddr)
			http.Error(w, "invalid secret", http.StatusUnauthorized)
			return
		}
		serverID := strings.TrimSpace(r.Header.Get(HeaderServerID))
		if serverID == "" {
			http.Error(w, "missing "+HeaderServerID+" header", http.StatusBadRequest)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.V(1).Info("error accepting websocket", "error", err, "remoteAddr", r.RemoteAddr)
			return
		}
		c.SetReadLimit(maxMessageSize)
		conn := &wsConn{c: c}
		if err = p.Attach(r.Context(), serverID, conn); err != nil && !errors.Is(err, context.Canceled) {
			log.V(1).Info("bridge session ended with error", "server", serverID, "error", err)
		}
	})
}

func validToken(header, secret string) bool {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
