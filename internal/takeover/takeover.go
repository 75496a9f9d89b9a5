// Package takeover checks already-discovered hosts for dangling DNS records
// pointing at unclaimed third-party services. It runs as a one-shot batch
// pass over the result set with its own small concurrency bound, separate
// from the enumeration engine.
package takeover

import (
	"context"
	"crypto/tls"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/miekg/dns"
	"github.com/slack-go/slack"
)

//go:embed signatures.json
var rawSignatures []byte

// Signature describes how an unclaimed service looks: CNAME substrings that
// point at it and response strings that betray the missing resource.
type Signature struct {
	CNAME       []string `json:"cname"`
	Response    []string `json:"response"`
	Fingerprint string   `json:"fingerprint"`
}

// Finding is one host judged vulnerable to takeover.
type Finding struct {
	Host        string `json:"host"`
	Service     string `json:"service"`
	CNAME       string `json:"cname"`
	Status      int    `json:"status_code"`
	Fingerprint string `json:"fingerprint"`
	PageTitle   string `json:"page_title,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
}

// Config sets up a Scanner.
type Config struct {
	Timeout      time.Duration
	Workers      int
	SlackWebhook string
	// Screenshot, when set, is invoked for each finding with the reachable
	// URL and returns the saved image path.
	Screenshot func(ctx context.Context, url string) (string, error)
	// LookupCNAME overrides the DNS query; tests inject a fake.
	LookupCNAME func(ctx context.Context, host string) []string
	// Client overrides the HTTP client; tests inject one.
	Client *http.Client
}

// Scanner matches hosts against the embedded takeover signature set.
type Scanner struct {
	cfg        Config
	signatures map[string]Signature
	client     *http.Client
	log        *slog.Logger
}

// LoadSignatures parses the embedded signature set.
func LoadSignatures() (map[string]Signature, error) {
	var sigs map[string]Signature
	if err := json.Unmarshal(rawSignatures, &sigs); err != nil {
		return nil, fmt.Errorf("parsing takeover signatures: %w", err)
	}
	for service, sig := range sigs {
		if len(sig.CNAME) == 0 || len(sig.Response) == 0 || sig.Fingerprint == "" {
			return nil, fmt.Errorf("incomplete takeover signature for %s", service)
		}
	}
	return sigs, nil
}

// New creates a Scanner.
func New(cfg Config, log *slog.Logger) (*Scanner, error) {
	sigs, err := LoadSignatures()
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 20
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
	return &Scanner{cfg: cfg, signatures: sigs, client: client, log: log}, nil
}

// Scan checks every host and returns the vulnerable ones. Per-host failures
// are treated as non-matches.
func (s *Scanner) Scan(ctx context.Context, hosts []string) []Finding {
	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var findings []Finding

	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			defer func() { <-sem }()
			f, ok := s.check(ctx, h)
			if !ok {
				return
			}
			mu.Lock()
			findings = append(findings, f)
			mu.Unlock()
			s.notify(f)
		}(host)
	}
	wg.Wait()
	return findings
}

func (s *Scanner) check(ctx context.Context, host string) (Finding, bool) {
	cnames := s.lookupCNAME(ctx, host)
	if len(cnames) == 0 {
		return Finding{}, false
	}

	status, body, proto, ok := s.fetch(ctx, host)
	if !ok {
		return Finding{}, false
	}

	f, matched := MatchSignature(s.signatures, host, cnames, status, body)
	if !matched {
		return Finding{}, false
	}
	f.PageTitle = pageTitle(body)

	if s.cfg.Screenshot != nil {
		if path, err := s.cfg.Screenshot(ctx, proto+"://"+host); err == nil {
			f.Screenshot = path
		} else {
			s.log.Debug("screenshot failed", "host", host, "error", err)
		}
	}
	return f, true
}

// MatchSignature checks CNAMEs against each service's CNAME substrings and,
// on a hit, looks for the service's error strings in the response body.
func MatchSignature(sigs map[string]Signature, host string, cnames []string, status int, body string) (Finding, bool) {
	bodyLower := strings.ToLower(body)
	for service, sig := range sigs {
		matchedCNAME := ""
		for _, cname := range cnames {
			cnameLower := strings.ToLower(cname)
			for _, sub := range sig.CNAME {
				if strings.Contains(cnameLower, strings.ToLower(sub)) {
					matchedCNAME = cname
					break
				}
			}
			if matchedCNAME != "" {
				break
			}
		}
		if matchedCNAME == "" {
			continue
		}
		for _, marker := range sig.Response {
			if strings.Contains(bodyLower, strings.ToLower(marker)) {
				return Finding{
					Host:        host,
					Service:     service,
					CNAME:       matchedCNAME,
					Status:      status,
					Fingerprint: sig.Fingerprint,
				}, true
			}
		}
	}
	return Finding{}, false
}

// lookupCNAME queries the CNAME chain for host, preferring the system's
// configured nameserver and falling back to the platform resolver.
func (s *Scanner) lookupCNAME(ctx context.Context, host string) []string {
	if s.cfg.LookupCNAME != nil {
		return s.cfg.LookupCNAME(ctx, host)
	}

	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), dns.TypeCNAME)
		c := &dns.Client{Timeout: s.cfg.Timeout}
		in, _, err := c.ExchangeContext(ctx, m, net.JoinHostPort(conf.Servers[0], conf.Port))
		if err == nil && in != nil {
			var cnames []string
			for _, ans := range in.Answer {
				if cname, ok := ans.(*dns.CNAME); ok {
					cnames = append(cnames, strings.TrimSuffix(cname.Target, "."))
				}
			}
			return cnames
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	cname, err := net.DefaultResolver.LookupCNAME(lookupCtx, host)
	if err != nil || cname == "" || strings.TrimSuffix(cname, ".") == host {
		return nil
	}
	return []string{strings.TrimSuffix(cname, ".")}
}

// fetch grabs the page body over https, then http.
func (s *Scanner) fetch(ctx context.Context, host string) (status int, body, proto string, ok bool) {
	for _, p := range []string{"https", "http"} {
		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p+"://"+host, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			continue
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		cancel()
		return resp.StatusCode, string(b), p, true
	}
	return 0, "", "", false
}

// pageTitle pulls the <title> out of a response body; empty when the body is
// not parseable HTML or has no title.
func pageTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func (s *Scanner) notify(f Finding) {
	if s.cfg.SlackWebhook == "" {
		return
	}
	msg := slack.WebhookMessage{
		Text: fmt.Sprintf("*Subdomain Takeover Vulnerability Detected*\n"+
			"*Host:* %s\n*Service:* %s\n*CNAME:* %s\n*Fingerprint:* %s\n",
			f.Host, f.Service, f.CNAME, f.Fingerprint),
	}
	if err := slack.PostWebhook(s.cfg.SlackWebhook, &msg); err != nil {
		s.log.Warn("slack notification failed", "host", f.Host, "error", err)
	}
}
