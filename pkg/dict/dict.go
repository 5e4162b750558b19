// Package dict resolves tenant-scoped coded vocabularies, like the
// device_status codes behind the status select, through a process-wide
// resolver registry.
package dict

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"
)

// ErrResolverNotConfigured is returned by the package-level lookups when no
// resolver has been registered yet.
var ErrResolverNotConfigured = errors.New("dict: resolver not configured")

// Option is one selectable value of a coded dictionary. Enablement windows
// are civil dates; DisabledOn nil means open-ended.
type Option struct {
	Code       string
	Label      string
	Status     string
	EnabledOn  string
	DisabledOn *string
	UpdatedAt  time.Time
}

// ActiveOn reports whether the option is selectable on the given civil date.
// The enablement window is inclusive of EnabledOn and exclusive of DisabledOn.
func (o Option) ActiveOn(asOf string) bool {
	if o.EnabledOn > asOf {
		return false
	}
	return o.DisabledOn == nil || asOf < *o.DisabledOn
}

type Resolver interface {
	ResolveValueLabel(ctx context.Context, tenantID string, asOf string, dictCode string, code string) (string, bool, error)
	ListOptions(ctx context.Context, tenantID string, asOf string, dictCode string, keyword string, limit int) ([]Option, error)
}

var registry = struct {
	mu sync.RWMutex
	r  Resolver
}{}

func RegisterResolver(r Resolver) error {
	if r == nil {
		return errors.New("dict: resolver is nil")
	}
	switch v := reflect.ValueOf(r); v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return errors.New("dict: resolver is nil")
		}
	}
	registry.mu.Lock()
	registry.r = r
	registry.mu.Unlock()
	return nil
}

func ResolveValueLabel(ctx context.Context, tenantID string, asOf string, dictCode string, code string) (string, bool, error) {
	resolver, err := currentResolver()
	if err != nil {
		return "", false, err
	}
	return resolver.ResolveValueLabel(
		ctx,
		strings.TrimSpace(tenantID),
		strings.TrimSpace(asOf),
		strings.TrimSpace(dictCode),
		strings.TrimSpace(code),
	)
}

func ListOptions(ctx context.Context, tenantID string, asOf string, dictCode string, keyword string, limit int) ([]Option, error) {
	resolver, err := currentResolver()
	if err != nil {
		return nil, err
	}
	return resolver.ListOptions(
		ctx,
		strings.TrimSpace(tenantID),
		strings.TrimSpace(asOf),
		strings.TrimSpace(dictCode),
		strings.TrimSpace(keyword),
		limit,
	)
}

func currentResolver() (Resolver, error) {
	registry.mu.RLock()
	r := registry.r
	registry.mu.RUnlock()
	if r == nil {
		return nil, ErrResolverNotConfigured
	}
	return r, nil
}
