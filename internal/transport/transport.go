// Package transport builds the HTTP round trippers used for the commerce API
// and the catalog feeds.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
)

// Options selects the round tripper stack.
type Options struct {
	// Timeout bounds dialing and the TLS handshake.
	Timeout time.Duration
	// ChromeTLS presents a Chrome TLS fingerprint instead of Go's.
	ChromeTLS bool
	// Tracing wraps the transport with OpenTelemetry client spans.
	Tracing bool
}

// New returns the round tripper described by opts.
func New(opts Options) http.RoundTripper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	var rt http.RoundTripper
	if opts.ChromeTLS {
		rt = NewChromeTransport(opts.Timeout)
	} else {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSHandshakeTimeout = opts.Timeout
		rt = t
	}

	if opts.Tracing {
		rt = otelhttp.NewTransport(rt,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return rt
}

// NewClient wraps New(opts) in an http.Client with an overall request timeout.
func NewClient(opts Options) *http.Client {
	return &http.Client{
		Transport: New(opts),
		Timeout:   opts.Timeout,
	}
}

// Some CDNs in front of storefront APIs rate limit Go's TLS client by its
// JA3 fingerprint. The Chrome transport dials with uTLS HelloChrome_Auto and
// lets ALPN pick h2 or http/1.1.

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint. Hosts that fail over HTTP/2 are remembered and go straight to
// HTTP/1.1 afterwards.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialChromeTLS(ctx, dialer, network, addr)
	}

	return &chromeTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			},
		},
		h1: &http.Transport{
			DialTLSContext:    dial,
			ForceAttemptHTTP2: false,
		},
	}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport

	h1Only sync.Map // host -> struct{}
}

// RoundTrip implements http.RoundTripper.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	if _, ok := t.h1Only.Load(req.URL.Host); ok {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	// The h2 attempt may have drained the body.
	retry := req
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("h2 round trip: %w", err)
		}
		body, berr := req.GetBody()
		if berr != nil {
			return nil, fmt.Errorf("rewinding body: %w", berr)
		}
		retry = req.Clone(req.Context())
		retry.Body = body
	}

	resp, err = t.h1.RoundTrip(retry)
	if err == nil {
		t.h1Only.Store(req.URL.Host, struct{}{})
	}
	return resp, err
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}
