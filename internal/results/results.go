// Package results holds the shared table of discovered subdomains and its
// plain-text persistence format.
package results

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// Entry is the accumulated probe outcome for a single host.
//
// An empty Protocol means the host resolved in DNS but no HTTP service was
// reachable. Size is nil when the content length could not be determined;
// it is filled in at most once by a follow-up fetch.
type Entry struct {
	Protocol string `json:"protocol,omitempty"`
	Status   int    `json:"status_code,omitempty"`
	IP       string `json:"ip,omitempty"`
	Size     *int64 `json:"content_size,omitempty"`
}

// Table maps a fully-qualified host to its probe outcome.
type Table map[string]Entry

// Hosts returns the table keys sorted lexicographically.
func (t Table) Hosts() []string {
	hosts := make([]string, 0, len(t))
	for h := range t {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Line formats one host for the persisted report, e.g.
// "admin.example.com [https] [200] [93.184.216.34]" for HTTP-reachable hosts
// and "mail.example.com [DNS] [93.184.216.34]" for DNS-only matches.
func Line(host string, e Entry) string {
	var line string
	if e.Protocol != "" {
		line = fmt.Sprintf("%s [%s] [%d]", host, e.Protocol, e.Status)
	} else {
		line = fmt.Sprintf("%s [DNS]", host)
	}
	if e.IP != "" {
		line += fmt.Sprintf(" [%s]", e.IP)
	}
	return line
}

// Save writes the table to path, one host per line, sorted by host name.
// A save failure leaves the in-memory table untouched.
func Save(path string, t Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, host := range t.Hosts() {
		if _, err := fmt.Fprintln(w, Line(host, t[host])); err != nil {
			return fmt.Errorf("writing results: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}
