package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/huangsam/offcache/internal/contract"
)

// hopHeaders are meaningful only for a single connection and are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Dispatcher is an http.Handler that turns proxied requests into fetch events
// for the active worker. Requests the worker does not intercept, and requests
// from clients it does not control, go to the network unchanged.
type Dispatcher struct {
	origin       *url.URL
	registration *Registration
	network      contract.Fetcher
	clientHeader string
	console      *contract.Console
}

// NewDispatcher returns a dispatcher for cfg.Origin. The network fetcher
// performs default handling and should not follow redirects.
func NewDispatcher(cfg *contract.Config, registration *Registration, network contract.Fetcher, console *contract.Console) *Dispatcher {
	origin := *cfg.Origin
	return &Dispatcher{
		origin:       &origin,
		registration: registration,
		network:      network,
		clientHeader: cfg.ClientHeader,
		console:      console,
	}
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := d.Fetch(r.Context(), d.clientID(r), d.eventRequest(r))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		http.Error(w, "offcache: fetch failed", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	header := w.Header()
	for k, vs := range resp.Header {
		header[k] = append([]string(nil), vs...)
	}
	removeHopHeaders(header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// Fetch runs one request for clientID. Only navigations register a client.
// A navigation from an uncontrolled client is handled by the active worker
// and makes the client controlled.
func (d *Dispatcher) Fetch(ctx context.Context, clientID string, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	clients := d.registration.Clients()
	navigation := isNavigation(req)
	var controlled bool
	if navigation {
		controlled = clients.Add(clientID)
	} else {
		controlled = clients.Touch(clientID)
	}

	if v := d.registration.Controller(); v != nil {
		if !controlled && navigation {
			clients.Control(clientID)
			controlled = true
		}
		if controlled {
			resp, intercepted, err := v.Handler.Fetch(ctx, req)
			if err != nil {
				return nil, err
			}
			if intercepted {
				return resp, nil
			}
		}
	}

	resp, err := d.network.Do(req)
	if err != nil {
		d.console.Error("Network request failed", err)
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	return resp, nil
}

// eventRequest builds the outgoing request for r. Origin-form targets are
// resolved against the worker origin; absolute-form proxy targets are kept.
func (d *Dispatcher) eventRequest(r *http.Request) *http.Request {
	out := r.Clone(r.Context())
	target := *r.URL
	if !target.IsAbs() {
		target.Scheme = d.origin.Scheme
		target.Host = d.origin.Host
	}
	out.URL = &target
	out.Host = target.Host
	out.RequestURI = ""
	out.Header.Del(d.clientHeader)
	removeHopHeaders(out.Header)
	return out
}

// clientID identifies the page behind r by the client header, or by the
// remote host when the header is missing.
func (d *Dispatcher) clientID(r *http.Request) string {
	if id := r.Header.Get(d.clientHeader); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isNavigation reports whether req loads a document rather than a subresource.
func isNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html")
}

// removeHopHeaders deletes hop-by-hop headers, including any named by Connection.
func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for sf := range strings.SplitSeq(f, ",") {
			if sf = strings.TrimSpace(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
