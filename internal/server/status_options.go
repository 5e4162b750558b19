package server

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/kavia-common/deviceform/pkg/dict"
)

const dictCodeDeviceStatus = "device_status"

const globalTenantID = "00000000-0000-0000-0000-000000000000"

var (
	errStatusOptionAsOfRequired = errors.New("status options: as_of required")
	errStatusOptionCodeRequired = errors.New("status options: code required")
)

// StatusOptionStore serves the coded values offered by the status select.
// It doubles as the dict resolver so labels stay consistent everywhere.
type StatusOptionStore interface {
	ResolveValueLabel(ctx context.Context, tenantID string, asOf string, dictCode string, code string) (string, bool, error)
	ListOptions(ctx context.Context, tenantID string, asOf string, dictCode string, keyword string, limit int) ([]dict.Option, error)
}

type statusOptionMemoryStore struct {
	options map[string][]dict.Option
}

func newStatusOptionMemoryStore() StatusOptionStore {
	now := time.Unix(0, 0).UTC()
	defaults := []dict.Option{
		{Code: "ACTIVE", Label: "在线", Status: "active", EnabledOn: "1970-01-01", UpdatedAt: now},
		{Code: "INSTALLED", Label: "已安装", Status: "active", EnabledOn: "1970-01-01", UpdatedAt: now},
		{Code: "MAINTENANCE", Label: "维护中", Status: "active", EnabledOn: "1970-01-01", UpdatedAt: now},
		{Code: "DECOMMISSIONED", Label: "已退役", Status: "active", EnabledOn: "1970-01-01", UpdatedAt: now},
	}
	return &statusOptionMemoryStore{
		options: map[string][]dict.Option{
			globalTenantID:                         append([]dict.Option(nil), defaults...),
			"00000000-0000-0000-0000-000000000001": append([]dict.Option(nil), defaults...),
			"t1":                                   append([]dict.Option(nil), defaults...),
		},
	}
}

func (s *statusOptionMemoryStore) ResolveValueLabel(_ context.Context, tenantID string, asOf string, dictCode string, code string) (string, bool, error) {
	if strings.TrimSpace(asOf) == "" {
		return "", false, errStatusOptionAsOfRequired
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", false, errStatusOptionCodeRequired
	}
	if dictCode != dictCodeDeviceStatus {
		return "", false, nil
	}
	for _, opt := range s.optionsByTenant(tenantID) {
		if opt.Code != code {
			continue
		}
		if !opt.ActiveOn(asOf) {
			return "", false, nil
		}
		return opt.Label, true, nil
	}
	return "", false, nil
}

func (s *statusOptionMemoryStore) ListOptions(_ context.Context, tenantID string, asOf string, dictCode string, keyword string, limit int) ([]dict.Option, error) {
	if strings.TrimSpace(asOf) == "" {
		return nil, errStatusOptionAsOfRequired
	}
	if dictCode != dictCodeDeviceStatus {
		return []dict.Option{}, nil
	}

	keyword = strings.ToLower(strings.TrimSpace(keyword))
	out := make([]dict.Option, 0)
	for _, opt := range s.optionsByTenant(tenantID) {
		if !opt.ActiveOn(asOf) {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(opt.Code), keyword) &&
			!strings.Contains(strings.ToLower(opt.Label), keyword) {
			continue
		}
		out = append(out, opt)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *statusOptionMemoryStore) optionsByTenant(tenantID string) []dict.Option {
	if opts, ok := s.options[tenantID]; ok {
		return opts
	}
	return s.options[globalTenantID]
}
