package server

import (
	"net/http"
	"os"
	"strings"
)

const forwardedHostHeader = "X-Forwarded-Host"

// tenantDomainFromRequest derives the hostname the tenancy resolver keys on.
// Behind a trusted proxy the first X-Forwarded-Host hop wins; otherwise the
// Host header is authoritative.
func tenantDomainFromRequest(r *http.Request) string {
	if os.Getenv("TRUST_PROXY") == "1" {
		if hop := firstForwardedHop(r.Header.Get(forwardedHostHeader)); hop != "" {
			return canonicalDomain(hop)
		}
	}
	return canonicalDomain(r.Host)
}

func firstForwardedHop(raw string) string {
	hop, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(hop)
}

// canonicalDomain lowercases the hostname and drops any port suffix.
func canonicalDomain(host string) string {
	host = strings.TrimSpace(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return strings.ToLower(strings.TrimSpace(host))
}
