package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kavia-common/deviceform/internal/routing"
	"github.com/kavia-common/deviceform/pkg/authz"
)

type stubAuthorizer struct {
	allowed  bool
	enforced bool
	err      error
}

func (a stubAuthorizer) Authorize(string, string, string, string) (bool, bool, error) {
	return a.allowed, a.enforced, a.err
}

func mustTestClassifier(t *testing.T) *routing.Classifier {
	t.Helper()

	c, err := routing.NewClassifier(routing.Allowlist{Version: 1, Entrypoints: map[string]routing.Entrypoint{
		"server": {Routes: []routing.Route{{Path: "/healthz", Methods: []string{"GET"}, RouteClass: "ops"}}},
	}}, "server")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestWithAuthz_AllowsBypassRoutes(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := withAuthz(mustTestClassifier(t), stubAuthorizer{allowed: false, enforced: true}, next)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestWithAuthz_SkipsWhenNoRequirement(t *testing.T) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	})
	h := withAuthz(mustTestClassifier(t), stubAuthorizer{allowed: false, enforced: true}, next)

	req := httptest.NewRequest(http.MethodGet, "/deviceform/unprotected", nil)
	req = req.WithContext(tenantIntoContext(req.Context(), Tenant{ID: "t1", Domain: "example.com", Name: "T"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !nextCalled {
		t.Fatalf("status=%d next=%v", rec.Code, nextCalled)
	}
}

func TestWithAuthz_AnonymousRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := withAuthz(mustTestClassifier(t), stubAuthorizer{allowed: true, enforced: true}, next)

	req := httptest.NewRequest(http.MethodGet, "/deviceform/api/status-options", nil)
	req = req.WithContext(tenantIntoContext(req.Context(), Tenant{ID: "t1", Domain: "example.com", Name: "T"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestWithAuthz_ForbiddenWhenEnforced(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := withAuthz(mustTestClassifier(t), stubAuthorizer{allowed: false, enforced: true}, next)

	req := httptest.NewRequest(http.MethodPost, "/deviceform/api/status-changes", nil)
	req = req.WithContext(tenantIntoContext(req.Context(), Tenant{ID: "t1", Domain: "example.com", Name: "T"}))
	req = req.WithContext(withActor(req.Context(), Actor{ID: "u1", RoleSlug: authz.RoleViewer}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestWithAuthz_AllowsWhenNotEnforced(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := withAuthz(mustTestClassifier(t), stubAuthorizer{allowed: false, enforced: false}, next)

	req := httptest.NewRequest(http.MethodPost, "/deviceform/api/saves", nil)
	req = req.WithContext(tenantIntoContext(req.Context(), Tenant{ID: "t1", Domain: "example.com", Name: "T"}))
	req = req.WithContext(withActor(req.Context(), Actor{ID: "u1", RoleSlug: authz.RoleInstaller}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestWithAuthz_AuthzError(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := withAuthz(mustTestClassifier(t), stubAuthorizer{allowed: false, enforced: true, err: os.ErrInvalid}, next)

	req := httptest.NewRequest(http.MethodPost, "/deviceform/api/decisions", nil)
	req = req.WithContext(tenantIntoContext(req.Context(), Tenant{ID: "t1", Domain: "example.com", Name: "T"}))
	req = req.WithContext(withActor(req.Context(), Actor{ID: "u1", RoleSlug: authz.RoleTenantAdmin}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestWithAuthz_TenantMissing(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := withAuthz(mustTestClassifier(t), stubAuthorizer{allowed: true, enforced: true}, next)

	req := httptest.NewRequest(http.MethodPost, "/deviceform/api/decisions", nil)
	req = req.WithContext(withActor(req.Context(), Actor{ID: "u1", RoleSlug: authz.RoleTenantAdmin}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestAuthzRequirementForRoute(t *testing.T) {
	cases := []struct {
		method     string
		path       string
		wantObject string
		wantAction string
		wantOK     bool
	}{
		{http.MethodPost, "/deviceform/api/decisions", authz.ObjectDeviceForm, authz.ActionRead, true},
		{http.MethodGet, "/deviceform/api/decisions", "", "", false},
		{http.MethodGet, "/deviceform/api/devices/dev-1/decisions", authz.ObjectDeviceForm, authz.ActionRead, true},
		{http.MethodPost, "/deviceform/api/devices/dev-1/decisions", "", "", false},
		{http.MethodPost, "/deviceform/api/status-changes", authz.ObjectDeviceForm, authz.ActionEdit, true},
		{http.MethodGet, "/deviceform/api/status-changes", "", "", false},
		{http.MethodPost, "/deviceform/api/saves", authz.ObjectDeviceForm, authz.ActionEdit, true},
		{http.MethodDelete, "/deviceform/api/saves", "", "", false},
		{http.MethodGet, "/deviceform/api/status-options", authz.ObjectDeviceOptions, authz.ActionRead, true},
		{http.MethodPost, "/deviceform/api/status-options", "", "", false},
		{http.MethodGet, "/deviceform/api/unknown", "", "", false},
		{http.MethodGet, "/deviceform/api/devices//decisions", "", "", false},
	}

	for _, tc := range cases {
		object, action, ok := authzRequirementForRoute(tc.method, tc.path)
		if ok != tc.wantOK {
			t.Fatalf("method=%s path=%s ok=%v", tc.method, tc.path, ok)
		}
		if object != tc.wantObject || action != tc.wantAction {
			t.Fatalf("method=%s path=%s object=%q action=%q", tc.method, tc.path, object, action)
		}
	}
}

func TestPathMatchRouteTemplate(t *testing.T) {
	template := "/deviceform/api/devices/{device_id}/decisions"
	if !pathMatchRouteTemplate("/deviceform/api/devices/dev-1/decisions", template) {
		t.Fatal("expected match")
	}
	if pathMatchRouteTemplate("/deviceform/api/devices/dev-1", template) {
		t.Fatal("expected mismatch on length")
	}
	if pathMatchRouteTemplate("/deviceform/api/devices/dev-1/other", template) {
		t.Fatal("expected mismatch on literal segment")
	}
}

func TestDefaultAuthzPaths_NotFound(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if _, err := defaultAuthzModelPath(); err == nil {
		t.Fatal("expected error")
	}
	if _, err := defaultAuthzPolicyPath(); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadAuthorizer_WithEnvPaths(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.conf")
	policy := filepath.Join(dir, "policy.csv")

	if err := os.WriteFile(model, []byte(`
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policy, []byte("p, role:installer, t1, deviceform.form, edit\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTHZ_MODEL_PATH", model)
	t.Setenv("AUTHZ_POLICY_PATH", policy)
	t.Setenv("AUTHZ_MODE", "enforce")

	a, err := loadAuthorizer()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err := a.Authorize("role:installer", "t1", authz.ObjectDeviceForm, authz.ActionEdit)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}
}

func TestLoadAuthorizer_InvalidMode(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTHZ_MODEL_PATH", filepath.Join(wd, "..", "..", "config", "access", "model.conf"))
	t.Setenv("AUTHZ_POLICY_PATH", filepath.Join(wd, "..", "..", "config", "access", "policy.csv"))
	t.Setenv("AUTHZ_MODE", "nope")

	if _, err := loadAuthorizer(); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadAuthorizer_DefaultPaths_Success(t *testing.T) {
	t.Setenv("AUTHZ_MODEL_PATH", "")
	t.Setenv("AUTHZ_POLICY_PATH", "")
	t.Setenv("AUTHZ_MODE", "enforce")

	a, err := loadAuthorizer()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err := a.Authorize("role:tenant-admin", "00000000-0000-0000-0000-000000000001", authz.ObjectDeviceForm, authz.ActionEdit)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}

	allowed, enforced, err = a.Authorize("role:viewer", "00000000-0000-0000-0000-000000000001", authz.ObjectDeviceForm, authz.ActionEdit)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if allowed || !enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}
}

func TestLoadAuthorizer_NewAuthorizerError(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.conf")
	if err := os.WriteFile(model, []byte(`
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTHZ_MODEL_PATH", model)
	t.Setenv("AUTHZ_POLICY_PATH", dir)
	t.Setenv("AUTHZ_MODE", "enforce")

	if _, err := loadAuthorizer(); err == nil {
		t.Fatal("expected error")
	}
}
