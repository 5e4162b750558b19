package fieldmeta

import (
	"sort"
	"strings"
)

// FieldDefinition describes one control of the device edit form. The form is
// fixed: an "enabled" toggle and a "status" select. GuardedByNewlyEnabled
// marks controls that must lock while the device awaits its first status.
type FieldDefinition struct {
	FieldKey              string
	ControlType           string
	DataSourceType        string
	DictCode              string
	LabelI18nKey          string
	GuardedByNewlyEnabled bool
}

const (
	FieldKeyEnabled = "enabled"
	FieldKeyStatus  = "status"
)

var fieldDefinitions = []FieldDefinition{
	{
		FieldKey:     FieldKeyEnabled,
		ControlType:  "toggle",
		LabelI18nKey: "device.fields.enabled",
	},
	{
		FieldKey:              FieldKeyStatus,
		ControlType:           "select",
		DataSourceType:        "DICT",
		DictCode:              "device_status",
		LabelI18nKey:          "device.fields.status",
		GuardedByNewlyEnabled: true,
	},
}

var fieldDefinitionByKey = func() map[string]FieldDefinition {
	out := make(map[string]FieldDefinition, len(fieldDefinitions))
	for _, def := range fieldDefinitions {
		out[def.FieldKey] = def
	}
	return out
}()

func ListFieldDefinitions() []FieldDefinition {
	out := make([]FieldDefinition, 0, len(fieldDefinitions))
	out = append(out, fieldDefinitions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FieldKey < out[j].FieldKey
	})
	return out
}

func LookupFieldDefinition(fieldKey string) (FieldDefinition, bool) {
	def, ok := fieldDefinitionByKey[strings.TrimSpace(fieldKey)]
	if !ok {
		return FieldDefinition{}, false
	}
	return def, true
}
