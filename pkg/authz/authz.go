package authz

import (
	"errors"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

// Role slugs accepted on X-Actor-Role and mapped to casbin subjects.
const (
	RoleTenantAdmin = "tenant-admin"
	RoleInstaller   = "installer"
	RoleViewer      = "viewer"
	RoleAnonymous   = "anonymous"
)

const (
	ActionRead = "read"
	ActionEdit = "edit"
)

const (
	ObjectDeviceForm    = "deviceform.form"
	ObjectDeviceOptions = "deviceform.status-options"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(raw))) {
	case ModeEnforce:
		return ModeEnforce, nil
	case ModeShadow:
		return ModeShadow, nil
	case ModeDisabled:
		return ModeDisabled, nil
	default:
		return "", errors.New("authz: invalid mode (expected enforce|shadow|disabled)")
	}
}

func ModeFromEnv() (Mode, error) {
	raw := os.Getenv("AUTHZ_MODE")
	if strings.TrimSpace(raw) == "" {
		return ModeEnforce, nil
	}
	mode, err := ParseMode(raw)
	if err != nil {
		return "", err
	}
	if mode == ModeDisabled && os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") != "1" {
		return "", errors.New("authz: AUTHZ_MODE=disabled requires AUTHZ_UNSAFE_ALLOW_DISABLED=1")
	}
	return mode, nil
}

type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(modelPath string, policyPath string, mode Mode) (*Authorizer, error) {
	enforcer, err := casbin.NewEnforcer(modelPath, fileadapter.NewAdapter(policyPath))
	if err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

func SubjectFromRoleSlug(roleSlug string) string {
	roleSlug = strings.TrimSpace(strings.ToLower(roleSlug))
	if roleSlug == "" {
		roleSlug = RoleAnonymous
	}
	return "role:" + roleSlug
}

func DomainFromTenantID(tenantID string) string {
	return strings.ToLower(strings.TrimSpace(tenantID))
}

// Authorize evaluates the policy for one request tuple. enforced reports
// whether a deny is binding: shadow and disabled modes never block, they only
// observe.
func (a *Authorizer) Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error) {
	switch a.mode {
	case ModeDisabled:
		return true, false, nil
	case ModeEnforce, ModeShadow:
	default:
		return false, false, errors.New("authz: unknown mode")
	}

	enforced = a.mode == ModeEnforce
	ok, err := a.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return false, enforced, err
	}
	return ok, enforced, nil
}
