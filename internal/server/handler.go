package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kavia-common/deviceform/internal/routing"
	dictpkg "github.com/kavia-common/deviceform/pkg/dict"
)

func NewHandler() (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{})
}

type HandlerOptions struct {
	TenancyResolver TenancyResolver
	OptionStore     StatusOptionStore
	StatusRules     []statusRule
	SaveGateway     saveGateway
	Authorizer      authorizer
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultAllowlistPath()
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}

	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}

	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	// Handlers look up status options through the dict registry, so the
	// store is registered rather than passed down.
	optionStore := opts.OptionStore
	if optionStore == nil {
		optionStore = newStatusOptionMemoryStore()
	}
	if err := dictpkg.RegisterResolver(optionStore); err != nil {
		return nil, err
	}

	rules := opts.StatusRules
	if rules == nil {
		loaded, err := loadStatusRules()
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	gw := opts.SaveGateway
	if gw == nil {
		g, err := newSaveGatewayFromEnv()
		if err != nil {
			return nil, err
		}
		gw = g
	}

	auth := opts.Authorizer
	if auth == nil {
		a, err := loadAuthorizer()
		if err != nil {
			return nil, err
		}
		auth = a
	}

	tenancyResolver := opts.TenancyResolver
	if tenancyResolver == nil {
		resolver, err := newTenancyFileResolver()
		if err != nil {
			return nil, err
		}
		tenancyResolver = resolver
	}

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/deviceform/api/decisions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDeviceFormDecisionsAPI(w, r, auth)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/deviceform/api/devices/{device_id}/decisions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDeviceFormDeviceDecisionsAPI(w, r, auth)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/deviceform/api/status-changes", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDeviceFormStatusChangesAPI(w, r, rules)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/deviceform/api/saves", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDeviceFormSavesAPI(w, r, gw)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/deviceform/api/status-options", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDeviceFormStatusOptionsAPI(w, r)
	}))

	guarded := withTenantContext(classifier, tenancyResolver,
		withActorContext(classifier,
			withAuthz(classifier, auth, router)))

	return guarded, nil
}

func NewMux() http.Handler {
	return MustNewHandler()
}

func MustNewHandler() http.Handler {
	h, err := NewHandler()
	if err != nil {
		panic(errors.New("server: failed to build handler: " + err.Error()))
	}
	return h
}

func defaultAllowlistPath() (string, error) {
	path := "config/routing/allowlist.yaml"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: allowlist not found")
}

func withTenantContext(classifier *routing.Classifier, tenants TenancyResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/healthz" || path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}

		tenantDomain := tenantDomainFromRequest(r)
		t, ok, err := tenants.ResolveTenant(r.Context(), tenantDomain)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_resolve_error", "tenant resolve error")
			return
		}
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "tenant_not_found", "tenant not found")
			return
		}
		r = r.WithContext(tenantIntoContext(r.Context(), t))

		next.ServeHTTP(w, r)
	})
}

func withActorContext(classifier *routing.Classifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		actor, ok, err := actorFromRequest(r)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "invalid_actor_role", "invalid actor role")
			return
		}
		if ok {
			r = r.WithContext(withActor(r.Context(), actor))
		}

		next.ServeHTTP(w, r)
	})
}
