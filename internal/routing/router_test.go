package routing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testClassifier(t *testing.T) *Classifier {
	t.Helper()

	a := Allowlist{
		Version: 1,
		Entrypoints: map[string]Entrypoint{
			"server": {Routes: []Route{{Path: "/healthz", Methods: []string{"GET"}, RouteClass: "ops"}}},
		},
	}
	c, err := NewClassifier(a, "server")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRouter_PanicBecomes500JSON(t *testing.T) {
	t.Parallel()

	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/deviceform/api/panic", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/deviceform/api/panic", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
}

func TestRouter_MethodNotAllowed_JSONOnly(t *testing.T) {
	t.Parallel()

	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/deviceform/api/status-options", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/deviceform/api/status-options", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
}

func TestRouter_PatternRoute(t *testing.T) {
	t.Parallel()

	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/deviceform/api/devices/{device_id}/decisions", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(req.PathValue("device_id")))
	}))

	req := httptest.NewRequest(http.MethodGet, "/deviceform/api/devices/dev-7/decisions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Body.String() != "dev-7" {
		t.Fatalf("body=%q", rec.Body.String())
	}

	postReq := httptest.NewRequest(http.MethodPost, "/deviceform/api/devices/dev-7/decisions", nil)
	postRec := httptest.NewRecorder()
	r.ServeHTTP(postRec, postReq)
	if postRec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", postRec.Code)
	}

	missReq := httptest.NewRequest(http.MethodGet, "/deviceform/api/devices/dev-7/unknown", nil)
	missRec := httptest.NewRecorder()
	r.ServeHTTP(missRec, missReq)
	if missRec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", missRec.Code)
	}
}

func TestRouter_PatternRoute_SecondMethodSharesPattern(t *testing.T) {
	t.Parallel()

	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/deviceform/api/devices/{device_id}/decisions", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r.Handle(RouteClassInternalAPI, http.MethodPost, "/deviceform/api/devices/{device_id}/decisions", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	if len(r.patterns) != 1 {
		t.Fatalf("patterns=%d", len(r.patterns))
	}

	req := httptest.NewRequest(http.MethodPost, "/deviceform/api/devices/dev-7/decisions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestEntrypointClass_Fallback(t *testing.T) {
	t.Parallel()

	if got := entrypointClass(map[string]routeEntry{}, RouteClassUI); got != RouteClassUI {
		t.Fatalf("got=%q", got)
	}
}
