// Package proxy implements the intercepting proxy used for manual crawling.
// The operator points a browser at it and every page the target serves
// through it that passes the crawler acceptance rule is reported to a sink.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0x6d61/wavs/internal/discovery"
	"github.com/0x6d61/wavs/internal/target"
	"github.com/0x6d61/wavs/internal/transport"
)

// maxBodySize caps the request body read from the browser.
const maxBodySize = 10 << 20

// shutdownTimeout bounds the graceful shutdown in Run.
const shutdownTimeout = 5 * time.Second

// hopHeaders apply to a single connection and are never relayed.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Sink receives every accepted page, possibly more than once.
type Sink func(page string)

// Proxy forwards browser requests to the target through the shared
// transport client, one at a time.
type Proxy struct {
	client transport.Client
	target *target.Target
	sink   Sink

	// mu serializes forwarded requests.
	mu  sync.Mutex
	log zerolog.Logger
}

// New creates a Proxy. sink may be nil.
func New(client transport.Client, t *target.Target, sink Sink) *Proxy {
	if sink == nil {
		sink = func(string) {}
	}
	return &Proxy{
		client: client,
		target: t,
		sink:   sink,
		log:    log.With().Str("component", "proxy").Logger(),
	}
}

// ServeHTTP forwards GET and POST requests to the target without following
// redirects and relays the response verbatim.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}

	upstream := p.target.Origin() + r.URL.RequestURI()
	p.mergeCookies(r.Cookies())

	noFollow := false
	req := &transport.Request{
		Method:          r.Method,
		URL:             upstream,
		Headers:         forwardHeaders(r.Header),
		Body:            string(body),
		FollowRedirects: &noFollow,
	}

	id := uuid.NewString()[:8]
	p.mu.Lock()
	resp := transport.Send(r.Context(), p.client, req)
	p.mu.Unlock()

	if resp == nil {
		p.log.Warn().Str("id", id).Str("method", r.Method).Str("url", upstream).Msg("no response from target")
		http.Error(w, "target did not respond", http.StatusBadGateway)
		return
	}
	p.log.Debug().Str("id", id).Str("method", r.Method).Str("url", upstream).Int("status", resp.StatusCode).Msg("proxied")

	if page, ok := discovery.PagePath(p.target, r.URL.Path); ok && p.target.AcceptPage(page, resp.StatusCode) {
		p.sink(page)
	}

	for k, vs := range resp.Headers {
		if hopHeaders[k] || k == "Content-Length" {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// mergeCookies stores browser cookies site-wide so later automated
// requests anywhere on the target carry the operator's session.
func (p *Proxy) mergeCookies(in []*http.Cookie) {
	if len(in) == 0 {
		return
	}
	cookies := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	p.client.Jar().SetCookies(p.target.Base, cookies)
}

// forwardHeaders copies browser headers minus the ones the transport owns.
// Cookies travel through the jar instead of the header.
func forwardHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		switch {
		case hopHeaders[k], k == "Cookie", k == "Host", k == "Content-Length", k == "Accept-Encoding":
			continue
		}
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

// Run listens on addr and serves until ctx is cancelled, then shuts the
// listener down and returns nil.
func (p *Proxy) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("proxy: listen %s: %w", addr, err)
	}
	return p.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	p.log.Info().Str("addr", ln.Addr().String()).Str("target", p.target.Origin()).Msg("proxy listening")
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return fmt.Errorf("proxy: serve: %w", err)
}
