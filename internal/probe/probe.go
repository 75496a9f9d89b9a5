// Package probe performs the individual network checks for one candidate
// host: DNS existence, IPv4 resolution, HTTP/HTTPS reachability, and the
// follow-up content-size fetch. Every operation is bounded by the configured
// timeout and reports failure as a (value, ok) pair; no probe ever returns
// an error to its caller.
package probe

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Config sets the shared probe policy for a run.
type Config struct {
	// Timeout bounds every individual network call.
	Timeout time.Duration
	// MaxConns caps the outbound connection pool; callers size it to the
	// worker count so in-flight sockets never exceed the concurrency ceiling.
	MaxConns int
	// DNSServer optionally routes lookups to a specific resolver ("ip:port")
	// instead of the platform default.
	DNSServer string
	// UserAgent is sent on every HTTP request.
	UserAgent string
	// Client overrides the built HTTP client; used by tests.
	Client *http.Client
}

// HTTPResult is the outcome of a successful HTTP or HTTPS probe.
// Size is nil when the response carried no parseable Content-Length.
type HTTPResult struct {
	Protocol string
	Status   int
	Size     *int64
}

// Prober runs network checks against candidate hosts. It is safe for
// concurrent use by multiple workers.
type Prober struct {
	client   *http.Client
	resolver *net.Resolver
	timeout  time.Duration
	agent    string
}

// New builds a Prober from cfg. TLS certificate validation is disabled on
// purpose: the tool probes misconfigured hosts intentionally.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 100
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "subhunt"
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
				MaxIdleConns:        cfg.MaxConns,
				MaxConnsPerHost:     2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	resolver := net.DefaultResolver
	if cfg.DNSServer != "" {
		server := cfg.DNSServer
		dialTimeout := cfg.Timeout
		resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				d := net.Dialer{Timeout: dialTimeout}
				return d.DialContext(ctx, "udp", server)
			},
		}
	}

	return &Prober{
		client:   client,
		resolver: resolver,
		timeout:  cfg.Timeout,
		agent:    cfg.UserAgent,
	}
}

// Exists reports whether host has at least one A record. Resolution errors,
// NXDOMAIN, and timeouts all yield false.
func (p *Prober) Exists(ctx context.Context, host string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	addrs, err := p.resolver.LookupIP(ctx, "ip4", host)
	return err == nil && len(addrs) > 0
}

// IP returns the first IPv4 address of host.
func (p *Prober) IP(ctx context.Context, host string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	addrs, err := p.resolver.LookupIP(ctx, "ip4", host)
	if err != nil || len(addrs) == 0 {
		return "", false
	}
	return addrs[0].String(), true
}

// HTTP probes https://host first and falls back to http://host only when the
// HTTPS attempt fails at the connection level. Any completed response,
// whatever its status code, ends the attempt. Redirects are followed.
func (p *Prober) HTTP(ctx context.Context, host string) (HTTPResult, bool) {
	for _, proto := range []string{"https", "http"} {
		reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
		resp, err := p.get(reqCtx, proto, host)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				break
			}
			continue
		}

		out := HTTPResult{Protocol: proto, Status: resp.StatusCode}
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
				out.Size = &n
			}
		}
		drain(resp.Body)
		cancel()
		return out, true
	}
	return HTTPResult{}, false
}

// ContentSize re-fetches host on the already-known working protocol and
// returns the body length. The header is preferred; when absent, the body is
// read under a secondary timeout of min(timeout, 3s).
func (p *Prober) ContentSize(ctx context.Context, host, protocol string) (int64, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.get(reqCtx, protocol, host)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
			return n, true
		}
	}

	readTimeout := p.timeout
	if readTimeout > 3*time.Second {
		readTimeout = 3 * time.Second
	}
	timer := time.AfterFunc(readTimeout, cancel)
	defer timer.Stop()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false
	}
	return int64(len(body)), true
}

func (p *Prober) get(ctx context.Context, proto, host string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proto+"://"+host, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.agent)
	return p.client.Do(req)
}

// drain reads a little of the body before closing so the connection can go
// back to the pool.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
