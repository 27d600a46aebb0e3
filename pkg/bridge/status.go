package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"go.minekube.com/vanish/pkg/vanish/user"
	"go.minekube.com/vanish/pkg/version"
)

// Status is the network view of a proxy as served by StatusHandler.
type Status struct {
	// Backends are the ids of the attached backends.
	Backends []string `json:"backends"`
	// Users is the network snapshot ordered by username.
	Users []user.User `json:"users"`
}

// Status returns the current network view.
func (p *Proxy) Status() *Status {
	return &Status{Backends: p.Backends(), Users: p.Snapshot()}
}

// StatusHandler serves Status as JSON. It requires the same secret as Handler.
func (p *Proxy) StatusHandler(opts HandlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if opts.Secret != "" && !validToken(r.Header.Get(headerAuth), opts.Secret) {
			http.Error(w, "invalid secret", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Status())
	})
}

// PathSuffixStatus is the last path element of the status endpoint.
const PathSuffixStatus = "/status"

// StatusURL derives the status endpoint from the bridge websocket URL,
// e.g. ws://proxy:25580/bridge becomes http://proxy:25580/status.
func StatusURL(bridgeURL string) (string, error) {
	u, err := url.Parse(bridgeURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, PathSuffixStatus) {
		u.Path = strings.TrimSuffix(u.Path, "/bridge") + PathSuffixStatus
	}
	u.RawQuery = ""
	return u.String(), nil
}

// StatusClient fetches the Status of a proxy.
type StatusClient struct {
	// URL of the status endpoint.
	URL    string
	Secret string
	// HTTPClient defaults to a client with otel instrumentation.
	HTTPClient *http.Client
}

// Fetch returns the proxy's current Status.
func (c *StatusClient) Fetch(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	if c.Secret != "" {
		req.Header.Set(headerAuth, bearerPrefix+c.Secret)
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(withHeader(http.DefaultTransport, version.UserAgentHeader()))}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching status: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, c.URL)
	}
	s := new(Status)
	if err = json.NewDecoder(resp.Body).Decode(s); err != nil {
		return nil, fmt.Errorf("error decoding status: %w", err)
	}
	return s, nil
}

func withHeader(rt http.RoundTripper, header http.Header) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return headerRoundTripper{Header: header, rt: rt}
}

type headerRoundTripper struct {
	http.Header
	rt http.RoundTripper
}

func (h headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range h.Header {
		req.Header[k] = v
	}
	return h.rt.RoundTrip(req)
}
