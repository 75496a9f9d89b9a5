// Package zonetransfer tests whether a domain's nameservers answer AXFR
// requests from arbitrary clients, which would expose the full zone.
package zonetransfer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Report summarizes one zone-transfer check.
type Report struct {
	Domain      string
	Nameservers []string
	Vulnerable  []string
	Hosts       []string
}

// Detector runs the zone-transfer check for one domain.
type Detector struct {
	domain  string
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Detector for domain.
func New(domain string, timeout time.Duration, log *slog.Logger) *Detector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Detector{domain: domain, timeout: timeout, log: log}
}

// Nameservers resolves the domain's NS records to addresses. Nameservers
// whose A record cannot be resolved are kept by name so the transfer attempt
// can still dial them.
func (d *Detector) Nameservers(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	nss, err := net.DefaultResolver.LookupNS(ctx, d.domain)
	if err != nil {
		return nil, fmt.Errorf("looking up NS records for %s: %w", d.domain, err)
	}

	var servers []string
	for _, ns := range nss {
		name := strings.TrimSuffix(ns.Host, ".")
		addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", name)
		if err != nil || len(addrs) == 0 {
			servers = append(servers, name)
			continue
		}
		servers = append(servers, addrs[0].String())
	}
	return servers, nil
}

// Attempt performs one AXFR against server and returns the in-zone hosts it
// exposed. A refused, timed-out, or malformed transfer returns an error.
func (d *Detector) Attempt(ctx context.Context, server string) ([]string, error) {
	t := &dns.Transfer{
		DialTimeout:  d.timeout,
		ReadTimeout:  d.timeout,
		WriteTimeout: d.timeout,
	}
	m := new(dns.Msg)
	m.SetAxfr(dns.Fqdn(d.domain))

	env, err := t.In(m, net.JoinHostPort(server, "53"))
	if err != nil {
		return nil, fmt.Errorf("axfr to %s: %w", server, err)
	}

	hosts, err := collectHosts(ctx, env, d.domain)
	if err != nil {
		return nil, fmt.Errorf("axfr to %s: %w", server, err)
	}
	return hosts, nil
}

// collectHosts consumes a transfer's envelope stream. The sender goroutine
// behind the channel blocks until every envelope is received, so the stream
// is drained to the end even after an error or cancellation; only collection
// stops early.
func collectHosts(ctx context.Context, env <-chan *dns.Envelope, domain string) ([]string, error) {
	var hosts []string
	var firstErr error
	for e := range env {
		if firstErr != nil {
			continue
		}
		if e.Error != nil {
			firstErr = e.Error
			continue
		}
		if err := ctx.Err(); err != nil {
			firstErr = err
			continue
		}
		hosts = append(hosts, HostsFromRecords(e.RR, domain)...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return hosts, nil
}

// Run checks every nameserver of the domain and aggregates what leaked.
func (d *Detector) Run(ctx context.Context) (*Report, error) {
	servers, err := d.Nameservers(ctx)
	if err != nil {
		return nil, err
	}
	rep := &Report{Domain: d.domain, Nameservers: servers}

	seen := make(map[string]struct{})
	for _, server := range servers {
		if ctx.Err() != nil {
			break
		}
		hosts, err := d.Attempt(ctx, server)
		if err != nil {
			d.log.Debug("zone transfer refused", "server", server, "error", err)
			continue
		}
		d.log.Info("zone transfer succeeded", "server", server, "records", len(hosts))
		rep.Vulnerable = append(rep.Vulnerable, server)
		for _, h := range hosts {
			seen[h] = struct{}{}
		}
	}

	for h := range seen {
		rep.Hosts = append(rep.Hosts, h)
	}
	sort.Strings(rep.Hosts)
	return rep, nil
}

// HostsFromRecords extracts in-zone host names from transferred records.
// The zone apex maps to the domain itself; out-of-zone names are dropped.
func HostsFromRecords(rrs []dns.RR, domain string) []string {
	var hosts []string
	for _, rr := range rrs {
		name := strings.TrimSuffix(rr.Header().Name, ".")
		if name == domain || strings.HasSuffix(name, "."+domain) {
			hosts = append(hosts, name)
		}
	}
	return hosts
}
