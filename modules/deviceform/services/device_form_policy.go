package services

import (
	"errors"
	"sort"
	"strings"

	"github.com/kavia-common/deviceform/modules/deviceform/domain/fieldmeta"
	"github.com/kavia-common/deviceform/modules/deviceform/domain/types"
)

type DeviceFormSurface string

const (
	DeviceFormSurfaceEdit DeviceFormSurface = "edit"
)

const (
	DenyReasonForbidden          = "FORBIDDEN"
	DenyReasonFormDisabled       = "FORM_DISABLED"
	DenyReasonFieldDisabled      = "FIELD_DISABLED"
	DenyReasonPendingStatus      = "PENDING_STATUS_CONFIRMATION"
	DenyReasonUnknownStatusValue = "UNKNOWN_STATUS_VALUE"
)

type DeviceFormPolicyKey struct {
	Surface DeviceFormSurface
}

type DeviceFormPolicyFacts struct {
	State   types.DeviceState
	CanEdit bool

	// Host-supplied disablement props.
	FormDisabled       bool
	BaseDisabledFields []string

	// StatusUnknown is set by callers that checked the state's status
	// against the option store and found no active code.
	StatusUnknown bool
}

type DeviceFormPolicyDecision struct {
	FormDisabled bool
	NewlyEnabled bool
	Fields       []types.DeviceFieldDecision
	DenyReasons  []string
}

// IsNewlyEnabled reports whether the device has just been switched on and
// still awaits its first status. Holds either while the transient flag is
// pending or while the checkbox is on with no status value yet. Total over
// all states.
func IsNewlyEnabled(state types.DeviceState) bool {
	return state.JustEnabled || (state.Enabled && !state.HasStatus())
}

// ComputeDisabled folds the three disablement sources for one control.
// No hidden inputs: the result is exactly the OR of its arguments.
func ComputeDisabled(baseDisabled, formDisabled, newlyEnabled bool) bool {
	return baseDisabled || formDisabled || newlyEnabled
}

func ResolveFormPolicy(key DeviceFormPolicyKey, facts DeviceFormPolicyFacts) (DeviceFormPolicyDecision, error) {
	switch key.Surface {
	case DeviceFormSurfaceEdit:
		newly := IsNewlyEnabled(facts.State)

		formDeny := []string{}
		if !facts.CanEdit {
			formDeny = append(formDeny, DenyReasonForbidden)
		}
		if facts.FormDisabled {
			formDeny = append(formDeny, DenyReasonFormDisabled)
		}
		formDisabled := len(formDeny) > 0

		baseDisabled := normalizeFieldKeys(facts.BaseDisabledFields)
		fields := make([]types.DeviceFieldDecision, 0, 2)
		for _, def := range fieldmeta.ListFieldDefinitions() {
			base := containsKey(baseDisabled, def.FieldKey)
			newlyForField := newly && def.GuardedByNewlyEnabled

			deny := append([]string(nil), formDeny...)
			if base {
				deny = append(deny, DenyReasonFieldDisabled)
			}
			if newlyForField {
				deny = append(deny, DenyReasonPendingStatus)
			}
			if def.FieldKey == fieldmeta.FieldKeyStatus && facts.StatusUnknown && facts.State.HasStatus() {
				deny = append(deny, DenyReasonUnknownStatusValue)
			}
			fields = append(fields, types.DeviceFieldDecision{
				FieldKey:    def.FieldKey,
				Disabled:    ComputeDisabled(base, formDisabled, newlyForField),
				DenyReasons: dedupAndSortDenyReasons(deny),
			})
		}

		return DeviceFormPolicyDecision{
			FormDisabled: formDisabled,
			NewlyEnabled: newly,
			Fields:       fields,
			DenyReasons:  dedupAndSortDenyReasons(formDeny),
		}, nil
	default:
		return DeviceFormPolicyDecision{}, errors.New("deviceform policy: invalid key")
	}
}

func normalizeFieldKeys(keys []string) []string {
	if len(keys) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, raw := range keys {
		key := strings.TrimSpace(raw)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func containsKey(keys []string, key string) bool {
	for _, item := range keys {
		if item == key {
			return true
		}
	}
	return false
}

func dedupAndSortDenyReasons(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, item := range in {
		code := strings.TrimSpace(item)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return denyReasonPriority(out[i]) < denyReasonPriority(out[j])
	})
	return out
}

func denyReasonPriority(code string) int {
	switch code {
	case DenyReasonForbidden:
		return 10
	case DenyReasonFormDisabled:
		return 20
	case DenyReasonFieldDisabled:
		return 30
	case DenyReasonPendingStatus:
		return 40
	case DenyReasonUnknownStatusValue:
		return 50
	default:
		return 100
	}
}
