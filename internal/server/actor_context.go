package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kavia-common/deviceform/pkg/authz"
)

var errUnknownActorRole = errors.New("server: unknown actor role")

// Actor identifies the authenticated operator as asserted by the fronting
// proxy. Requests without the role header run as anonymous.
type Actor struct {
	ID       string
	RoleSlug string
}

type actorCtxKey struct{}

const (
	actorRoleHeader = "X-Actor-Role"
	actorIDHeader   = "X-Actor-ID"
)

func withActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, a)
}

func currentActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorCtxKey{}).(Actor)
	return a, ok
}

func knownActorRole(roleSlug string) bool {
	switch roleSlug {
	case authz.RoleTenantAdmin, authz.RoleInstaller, authz.RoleViewer:
		return true
	default:
		return false
	}
}

func actorFromRequest(r *http.Request) (Actor, bool, error) {
	roleSlug := strings.ToLower(strings.TrimSpace(r.Header.Get(actorRoleHeader)))
	if roleSlug == "" {
		return Actor{}, false, nil
	}
	if !knownActorRole(roleSlug) {
		return Actor{}, false, errUnknownActorRole
	}
	return Actor{
		ID:       strings.TrimSpace(r.Header.Get(actorIDHeader)),
		RoleSlug: roleSlug,
	}, true, nil
}
