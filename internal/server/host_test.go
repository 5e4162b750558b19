package server

import (
	"net/http"
	"testing"
)

func TestTenantDomainFromRequest_TrustProxy(t *testing.T) {
	t.Setenv("TRUST_PROXY", "1")

	r := &http.Request{Header: http.Header{}, Host: "ignored:8080"}
	r.Header.Set("X-Forwarded-Host", "Example.COM:1234, other")
	if got := tenantDomainFromRequest(r); got != "example.com" {
		t.Fatalf("got=%q", got)
	}

	// Empty forwarded header falls back to Host even when the proxy is
	// trusted.
	r.Header.Del("X-Forwarded-Host")
	if got := tenantDomainFromRequest(r); got != "ignored" {
		t.Fatalf("got=%q", got)
	}
}

func TestTenantDomainFromRequest_NoProxyTrust(t *testing.T) {
	t.Setenv("TRUST_PROXY", "")

	r := &http.Request{Header: http.Header{}, Host: "Example.COM:8080"}
	r.Header.Set("X-Forwarded-Host", "should-not-use.local")
	if got := tenantDomainFromRequest(r); got != "example.com" {
		t.Fatalf("got=%q", got)
	}
}

func TestFirstForwardedHop(t *testing.T) {
	if got := firstForwardedHop(""); got != "" {
		t.Fatalf("got=%q", got)
	}
	if got := firstForwardedHop(" a.example , b.example "); got != "a.example" {
		t.Fatalf("got=%q", got)
	}
	if got := firstForwardedHop("single.example"); got != "single.example" {
		t.Fatalf("got=%q", got)
	}
}

func TestCanonicalDomain(t *testing.T) {
	if got := canonicalDomain("  Example.COM:443 "); got != "example.com" {
		t.Fatalf("got=%q", got)
	}
	if got := canonicalDomain("localhost:8080"); got != "localhost" {
		t.Fatalf("got=%q", got)
	}
	if got := canonicalDomain("localhost"); got != "localhost" {
		t.Fatalf("got=%q", got)
	}
	if got := canonicalDomain(""); got != "" {
		t.Fatalf("got=%q", got)
	}
}
