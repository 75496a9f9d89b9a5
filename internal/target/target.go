// Package target normalizes and validates user-supplied scan targets.
// All functions are pure; no network access happens here.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var labelRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9\-]{0,61}[A-Za-z0-9])?$`)

// Hostname extracts the bare hostname from raw input, stripping any scheme,
// path, port, and trailing dot. It accepts both "example.com/login" and
// "https://example.com".
func Hostname(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty target")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("cannot extract host from %q", raw)
	}
	return strings.TrimSuffix(u.Hostname(), "."), nil
}

// Normalize reduces raw input to its registrable domain
// ("sub.web.example.co.uk" becomes "example.co.uk"). Inputs the public
// suffix list cannot reduce are returned as-is, minus any "www." prefix.
func Normalize(raw string) (string, error) {
	host, err := Hostname(raw)
	if err != nil {
		return "", err
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1, nil
	}
	return strings.TrimPrefix(host, "www."), nil
}

// Validate performs a syntactic sanity check on a registrable domain.
func Validate(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	if strings.Contains(domain, " ") || !strings.Contains(domain, ".") {
		return false
	}
	return true
}

// ValidHostname checks each label of host against RFC 1123 rules.
func ValidHostname(host string) bool {
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > 63 || !labelRe.MatchString(label) {
			return false
		}
	}
	return true
}
