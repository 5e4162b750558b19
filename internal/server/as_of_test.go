package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolveAsOf_Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/deviceform/api/status-options", nil)
	rec := httptest.NewRecorder()

	asOf, ok := resolveAsOf(rec, req)
	if !ok {
		t.Fatal("expected ok")
	}
	if asOf != time.Now().UTC().Format(asOfLayout) {
		t.Fatalf("asOf=%q", asOf)
	}
}

func TestResolveAsOf_Explicit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/deviceform/api/status-options?as_of=2026-01-02", nil)
	rec := httptest.NewRecorder()

	asOf, ok := resolveAsOf(rec, req)
	if !ok || asOf != "2026-01-02" {
		t.Fatalf("ok=%v asOf=%q", ok, asOf)
	}
}

func TestResolveAsOf_Invalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/deviceform/api/status-options?as_of=2026-13-99", nil)
	rec := httptest.NewRecorder()

	if _, ok := resolveAsOf(rec, req); ok {
		t.Fatal("expected ok=false")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
	var envelope struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Code != "invalid_as_of" {
		t.Fatalf("code=%q", envelope.Code)
	}
}

func TestNormalizeAsOf(t *testing.T) {
	if got, ok := normalizeAsOf(" 2026-01-02 "); !ok || got != "2026-01-02" {
		t.Fatalf("ok=%v got=%q", ok, got)
	}
	if got, ok := normalizeAsOf(""); !ok || got != time.Now().UTC().Format(asOfLayout) {
		t.Fatalf("ok=%v got=%q", ok, got)
	}
	if _, ok := normalizeAsOf("nope"); ok {
		t.Fatal("expected ok=false")
	}
	if _, ok := normalizeAsOf("2026-1-2"); ok {
		t.Fatal("expected ok=false for non-padded date")
	}
}
