package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kavia-common/deviceform/internal/routing"
	"github.com/kavia-common/deviceform/modules/deviceform/domain/types"
	"github.com/kavia-common/deviceform/modules/deviceform/services"
	"github.com/kavia-common/deviceform/pkg/authz"
	"github.com/kavia-common/deviceform/pkg/dict"
)

type deviceFormDecisionRequest struct {
	State              types.DeviceState `json:"state"`
	FormDisabled       bool              `json:"form_disabled"`
	BaseDisabledFields []string          `json:"base_disabled_fields"`
	AsOf               string            `json:"as_of"`
}

type deviceFormDecisionResponse struct {
	DeviceID     string                      `json:"device_id"`
	AsOf         string                      `json:"as_of"`
	FormDisabled bool                        `json:"form_disabled"`
	NewlyEnabled bool                        `json:"newly_enabled"`
	Fields       []types.DeviceFieldDecision `json:"fields"`
	DenyReasons  []string                    `json:"deny_reasons"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, msg string) {
	routing.WriteError(w, r, routing.RouteClassInternalAPI, status, code, msg)
}

func writeStatusOptionsError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dict.ErrResolverNotConfigured) {
		writeError(w, r, http.StatusInternalServerError, "status_options_missing", "status options missing")
		return
	}
	writeError(w, r, http.StatusInternalServerError, "status_options_error", "status options error")
}

func handleDeviceFormDecisionsAPI(w http.ResponseWriter, r *http.Request, a authorizer) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	var req deviceFormDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.State.DeviceID = strings.TrimSpace(req.State.DeviceID)
	if req.State.DeviceID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "state.device_id required")
		return
	}
	asOf, ok := normalizeAsOf(req.AsOf)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_as_of", "invalid as_of")
		return
	}

	writeDecisionResponse(w, r, a, tenant, req.State, req.FormDisabled, req.BaseDisabledFields, asOf)
}

func handleDeviceFormDeviceDecisionsAPI(w http.ResponseWriter, r *http.Request, a authorizer) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	deviceID := strings.TrimSpace(r.PathValue("device_id"))
	if deviceID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "device_id required")
		return
	}

	q := r.URL.Query()
	enabled, err := parseBoolParam(q.Get("enabled"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid enabled")
		return
	}
	justEnabled, err := parseBoolParam(q.Get("just_enabled"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid just_enabled")
		return
	}
	formDisabled, err := parseBoolParam(q.Get("form_disabled"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid form_disabled")
		return
	}
	asOf, ok := resolveAsOf(w, r)
	if !ok {
		return
	}

	state := types.DeviceState{
		DeviceID:    deviceID,
		Enabled:     enabled,
		Status:      strings.TrimSpace(q.Get("status")),
		JustEnabled: justEnabled,
	}
	writeDecisionResponse(w, r, a, tenant, state, formDisabled, splitCSVParams(q["base_disabled_fields"]), asOf)
}

func writeDecisionResponse(w http.ResponseWriter, r *http.Request, a authorizer, tenant Tenant, state types.DeviceState, formDisabled bool, baseDisabledFields []string, asOf string) {
	statusUnknown := false
	if state.HasStatus() {
		code := strings.ToUpper(strings.TrimSpace(state.Status))
		_, known, err := dict.ResolveValueLabel(r.Context(), tenant.ID, asOf, dictCodeDeviceStatus, code)
		if err != nil {
			writeStatusOptionsError(w, r, err)
			return
		}
		statusUnknown = !known
	}

	canEdit, err := deviceFormCanEdit(r.Context(), a, tenant)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "authz_error", "authz error")
		return
	}

	decision, err := services.ResolveFormPolicy(services.DeviceFormPolicyKey{Surface: services.DeviceFormSurfaceEdit}, services.DeviceFormPolicyFacts{
		State:              state,
		CanEdit:            canEdit,
		FormDisabled:       formDisabled,
		BaseDisabledFields: baseDisabledFields,
		StatusUnknown:      statusUnknown,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(deviceFormDecisionResponse{
		DeviceID:     state.DeviceID,
		AsOf:         asOf,
		FormDisabled: decision.FormDisabled,
		NewlyEnabled: decision.NewlyEnabled,
		Fields:       decision.Fields,
		DenyReasons:  decision.DenyReasons,
	})
}

func deviceFormCanEdit(ctx context.Context, a authorizer, tenant Tenant) (bool, error) {
	roleSlug := authz.RoleAnonymous
	if actor, ok := currentActor(ctx); ok {
		roleSlug = actor.RoleSlug
	}
	allowed, enforced, err := a.Authorize(
		authz.SubjectFromRoleSlug(roleSlug),
		authz.DomainFromTenantID(tenant.ID),
		authz.ObjectDeviceForm,
		authz.ActionEdit,
	)
	if err != nil {
		return false, err
	}
	if !enforced {
		return true, nil
	}
	return allowed, nil
}

type deviceStatusChangeRequest struct {
	State     types.DeviceState `json:"state"`
	NewStatus string            `json:"new_status"`
	AsOf      string            `json:"as_of"`
}

type deviceStatusChangeResponse struct {
	Accepted   bool              `json:"accepted"`
	ReasonCode string            `json:"reason_code,omitempty"`
	Device     types.DeviceState `json:"device"`
}

type statusTransitionDeniedError struct {
	ReasonCode string
}

func (e *statusTransitionDeniedError) Error() string {
	return "server: status transition denied: " + e.ReasonCode
}

func handleDeviceFormStatusChangesAPI(w http.ResponseWriter, r *http.Request, rules []statusRule) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	var req deviceStatusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.State.DeviceID = strings.TrimSpace(req.State.DeviceID)
	if req.State.DeviceID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "state.device_id required")
		return
	}
	newStatus := strings.ToUpper(strings.TrimSpace(req.NewStatus))
	if newStatus == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "new_status required")
		return
	}
	asOf, ok := normalizeAsOf(req.AsOf)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_as_of", "invalid as_of")
		return
	}

	_, known, err := dict.ResolveValueLabel(r.Context(), tenant.ID, asOf, dictCodeDeviceStatus, newStatus)
	if err != nil {
		writeStatusOptionsError(w, r, err)
		return
	}
	if !known {
		writeError(w, r, http.StatusUnprocessableEntity, "UNKNOWN_STATUS_VALUE", "unknown status value")
		return
	}

	actor, _ := currentActor(r.Context())
	ctxMap := statusChangeCELContext(tenant.ID, actor, req.State, newStatus, asOf)

	next := req.State
	var acceptedReason string
	notify := func(string) error {
		decision, reasonCode, _, evalErr := evaluateStatusRules(asOf, ctxMap, rules)
		if evalErr != nil {
			return evalErr
		}
		if decision != statusRuleDecisionAllow {
			return &statusTransitionDeniedError{ReasonCode: reasonCode}
		}
		acceptedReason = reasonCode
		return nil
	}
	clear := func() {
		next = services.Reduce(next, types.DeviceFormEvent{Type: types.DeviceFormEventStatusChanged, Status: newStatus})
	}

	if notifyErr := services.ApplyStatusChange(newStatus, notify, clear); notifyErr != nil {
		if denied, ok := errors.AsType[*statusTransitionDeniedError](notifyErr); ok {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(deviceStatusChangeResponse{
				Accepted:   false,
				ReasonCode: denied.ReasonCode,
				Device:     next,
			})
			return
		}
		writeError(w, r, http.StatusInternalServerError, "STATUS_RULES_INVALID", "status rules invalid")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(deviceStatusChangeResponse{
		Accepted:   true,
		ReasonCode: acceptedReason,
		Device:     next,
	})
}

type deviceSaveRequest struct {
	State types.DeviceState `json:"state"`
}

type deviceSaveResponse struct {
	Saved  bool              `json:"saved"`
	Device types.DeviceState `json:"device"`
}

func handleDeviceFormSavesAPI(w http.ResponseWriter, r *http.Request, gw saveGateway) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	var req deviceSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.State.DeviceID = strings.TrimSpace(req.State.DeviceID)
	if req.State.DeviceID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "state.device_id required")
		return
	}
	if gw == nil {
		writeError(w, r, http.StatusServiceUnavailable, "SAVE_GATEWAY_MISSING", "save gateway missing")
		return
	}

	next := req.State
	var gatewayErr error
	perform := func(ctx context.Context) (bool, error) {
		saved, err := gw.PerformSave(ctx, tenant.ID, req.State)
		if err != nil {
			gatewayErr = err
		}
		return saved, err
	}

	saved := services.RunSave(r.Context(), perform, func() {
		next = services.Reduce(next, types.DeviceFormEvent{Type: types.DeviceFormEventSaveSucceeded})
	})
	if !saved && gatewayErr != nil {
		writeError(w, r, http.StatusBadGateway, "SAVE_GATEWAY_UNAVAILABLE", "save gateway unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(deviceSaveResponse{Saved: saved, Device: next})
}

type statusOptionView struct {
	Code       string `json:"code"`
	Label      string `json:"label"`
	Status     string `json:"status"`
	EnabledOn  string `json:"enabled_on"`
	DisabledOn string `json:"disabled_on,omitempty"`
}

type statusOptionsResponse struct {
	AsOf    string             `json:"as_of"`
	Options []statusOptionView `json:"options"`
}

func handleDeviceFormStatusOptionsAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}

	asOf, ok := resolveAsOf(w, r)
	if !ok {
		return
	}
	limit, err := parseOptionLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}

	opts, err := dict.ListOptions(r.Context(), tenant.ID, asOf, dictCodeDeviceStatus, r.URL.Query().Get("q"), limit)
	if err != nil {
		if errors.Is(err, dict.ErrResolverNotConfigured) {
			writeError(w, r, http.StatusInternalServerError, "status_options_missing", "status options missing")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "options_list_failed", "options list failed")
		return
	}

	views := make([]statusOptionView, 0, len(opts))
	for _, opt := range opts {
		views = append(views, statusOptionViewFromOption(opt))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(statusOptionsResponse{AsOf: asOf, Options: views})
}

func statusOptionViewFromOption(opt dict.Option) statusOptionView {
	view := statusOptionView{
		Code:      opt.Code,
		Label:     opt.Label,
		Status:    opt.Status,
		EnabledOn: opt.EnabledOn,
	}
	if opt.DisabledOn != nil {
		view.DisabledOn = *opt.DisabledOn
	}
	return view
}

func parseBoolParam(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func parseOptionLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 50, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	if n > 200 {
		n = 200
	}
	return n, nil
}

func splitCSVParams(values []string) []string {
	out := make([]string, 0, len(values))
	for _, raw := range values {
		for _, item := range strings.Split(raw, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			out = append(out, item)
		}
	}
	return out
}
