package types

import "strings"

type DeviceFormEventType string

const (
	DeviceFormEventEnableToggled DeviceFormEventType = "ENABLE_TOGGLED"
	DeviceFormEventStatusChanged DeviceFormEventType = "STATUS_CHANGED"
	DeviceFormEventSaveSucceeded DeviceFormEventType = "SAVE_SUCCEEDED"
)

// DeviceState is the caller-owned snapshot of the edit form's device.
// Zero values carry the absent semantics: a device with no record yet has
// Enabled false and Status "".
type DeviceState struct {
	DeviceID    string `json:"device_id"`
	Enabled     bool   `json:"enabled"`
	Status      string `json:"status"`
	JustEnabled bool   `json:"just_enabled"`
}

// DeviceFormEvent is one user interaction with the edit form. Payload use
// depends on the event type: ENABLE_TOGGLED reads Enabled, STATUS_CHANGED
// reads Status.
type DeviceFormEvent struct {
	Type    DeviceFormEventType `json:"type"`
	Enabled bool                `json:"enabled,omitempty"`
	Status  string              `json:"status,omitempty"`
}

// HasStatus reports whether the state carries a non-empty status value.
// Whitespace-only values count as empty.
func (s DeviceState) HasStatus() bool {
	return strings.TrimSpace(s.Status) != ""
}

type DeviceFieldDecision struct {
	FieldKey    string   `json:"field_key"`
	Disabled    bool     `json:"disabled"`
	DenyReasons []string `json:"deny_reasons"`
}

type DeviceFormDecision struct {
	DeviceID     string                `json:"device_id"`
	FormDisabled bool                  `json:"form_disabled"`
	NewlyEnabled bool                  `json:"newly_enabled"`
	Fields       []DeviceFieldDecision `json:"fields"`
	DenyReasons  []string              `json:"deny_reasons"`
}
