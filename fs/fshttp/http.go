// Package fshttp contains the common http parts of the config, Transport and Client
package fshttp

import (
	"context"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/driveback/driveback/fs"
	"github.com/driveback/driveback/lib/pacer"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

var (
	transport    http.RoundTripper
	noTransport  sync.Once
	tpsBucket    *rate.Limiter // for limiting number of http transactions per second
	cookieJar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
)

// StartHTTPTokenBucket starts the token bucket if necessary
func StartHTTPTokenBucket(ctx context.Context) {
	ci := fs.GetConfig(ctx)
	if ci.TPSLimit > 0 {
		tpsBurst := ci.TPSLimitBurst
		if tpsBurst < 1 {
			tpsBurst = 1
		}
		tpsBucket = rate.NewLimiter(rate.Limit(ci.TPSLimit), tpsBurst)
		fs.Infof(nil, "Starting HTTP transaction limiter: max %g transactions/s with burst %d", ci.TPSLimit, tpsBurst)
	}
}

// A net.Conn that sets a deadline for every Read or Write operation.
// This is how the idle read/write timeout is implemented: the
// deadline is nudged forward on every successful transfer of >= 1
// byte, so only a stalled stream trips it.
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

// create a timeoutConn using the timeout
func newTimeoutConn(conn net.Conn, timeout time.Duration) (c *timeoutConn, err error) {
	c = &timeoutConn{
		Conn:    conn,
		timeout: timeout,
	}
	err = c.nudgeDeadline()
	return
}

// Nudge the deadline for an idle timeout on by c.timeout if non-zero
func (c *timeoutConn) nudgeDeadline() (err error) {
	if c.timeout == 0 {
		return nil
	}
	when := time.Now().Add(c.timeout)
	return c.Conn.SetDeadline(when)
}

// readOrWrite bytes doing idle timeouts
func (c *timeoutConn) readOrWrite(f func([]byte) (int, error), b []byte) (n int, err error) {
	n, err = f(b)
	// Don't nudge if no bytes or an error
	if n == 0 || err != nil {
		return
	}
	// Nudge the deadline on successful Read or Write
	err = c.nudgeDeadline()
	return
}

// Read bytes doing idle timeouts
func (c *timeoutConn) Read(b []byte) (n int, err error) {
	return c.readOrWrite(c.Conn.Read, b)
}

// Write bytes doing idle timeouts
func (c *timeoutConn) Write(b []byte) (n int, err error) {
	return c.readOrWrite(c.Conn.Write, b)
}

// dial with context and timeouts
func dialContextTimeout(ctx context.Context, network, address string, ci *fs.ConfigInfo) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   ci.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	c, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return c, err
	}
	return newTimeoutConn(c, ci.Timeout)
}

// ResetTransport resets the existing transport, allowing it to take
// new settings.  Should only be used for testing.
func ResetTransport() {
	noTransport = sync.Once{}
}

// NewTransport returns an http.RoundTripper with the correct timeouts
func NewTransport(ctx context.Context) http.RoundTripper {
	noTransport.Do(func() {
		ci := fs.GetConfig(ctx)
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = http.ProxyFromEnvironment
		t.MaxIdleConnsPerHost = 8
		t.MaxIdleConns = 32
		t.TLSHandshakeTimeout = ci.ConnectTimeout
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialContextTimeout(ctx, network, addr, ci)
		}
		t.IdleConnTimeout = 60 * time.Second
		transport = newTransport(ci, t)
	})
	return transport
}

// NewClient returns an http.Client with the correct timeouts
func NewClient(ctx context.Context) *http.Client {
	client := &http.Client{
		Transport: NewTransport(ctx),
	}
	if fs.GetConfig(ctx).UseCookies {
		client.Jar = cookieJar
	}
	return client
}

// Transport is our http Transport which wraps an http.Transport
// * Sets the User Agent
// * Waits on and updates the per-host Retry-After gate
type Transport struct {
	*http.Transport
	userAgent string
	gate      *pacer.RetryAfterGate
}

// newTransport wraps the http.Transport passed in
func newTransport(ci *fs.ConfigInfo, t *http.Transport) *Transport {
	return &Transport{
		Transport: t,
		userAgent: ci.UserAgent,
		gate:      pacer.StandardGate,
	}
}

// RoundTrip implements the RoundTripper interface.
//
// The Retry-After gate sits here, between the request pipeline and
// the wire, so every outbound request respects the host's backoff
// clock and every response updates it.
func (t *Transport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	// Get transactions per second token first if limiting
	if tpsBucket != nil {
		tbErr := tpsBucket.Wait(req.Context())
		if tbErr != nil && tbErr != context.Canceled {
			fs.Errorf(nil, "HTTP token bucket error: %v", tbErr)
		}
	}
	host := req.URL.Host
	if req.Host != "" {
		host = req.Host
	}
	if err = t.gate.Wait(req.Context(), host); err != nil {
		return nil, err
	}
	// Force user agent
	req.Header.Set("User-Agent", t.userAgent)
	// Do round trip
	resp, err = t.Transport.RoundTrip(req)
	if err == nil {
		t.gate.Observe(host, resp)
	}
	return resp, err
}
