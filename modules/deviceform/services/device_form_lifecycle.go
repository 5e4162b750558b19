package services

import (
	"context"

	"github.com/kavia-common/deviceform/modules/deviceform/domain/types"
)

// Injected host hooks. The form owner supplies these; the lifecycle
// operations never reach into host state on their own.
type (
	StatusNotifyFunc func(newStatus string) error
	FlagClearFunc    func()
	SaveFunc         func(ctx context.Context) (bool, error)
)

// Reduce applies one form event to a device state and returns the next
// state. The input is never mutated.
//
// The transient just-enabled flag moves through exactly three transitions:
// set when the checkbox turns on while status is empty, cleared when a
// status is chosen, cleared when a save succeeds. Every other event leaves
// it alone, including toggling the checkbox back off.
func Reduce(state types.DeviceState, event types.DeviceFormEvent) types.DeviceState {
	next := state
	switch event.Type {
	case types.DeviceFormEventEnableToggled:
		next.Enabled = event.Enabled
		if event.Enabled && !state.HasStatus() {
			next.JustEnabled = true
		}
	case types.DeviceFormEventStatusChanged:
		next.Status = event.Status
		next.JustEnabled = false
	case types.DeviceFormEventSaveSucceeded:
		next.JustEnabled = false
	}
	return next
}

// ApplyStatusChange runs the host notification for a newly chosen status and
// then clears the transient flag. The clear is unconditional: a failed
// notification must not leave the select locked. The notification error is
// returned after the clear has run.
func ApplyStatusChange(newStatus string, notify StatusNotifyFunc, clear FlagClearFunc) error {
	var notifyErr error
	if notify != nil {
		notifyErr = notify(newStatus)
	}
	if clear != nil {
		clear()
	}
	return notifyErr
}

// RunSave invokes the host save hook and clears the transient flag only on
// an outcome of exactly true with no error. Failures and panics from the
// hook are absorbed here: the flag stays untouched and the save reports
// false.
func RunSave(ctx context.Context, perform SaveFunc, clearAll FlagClearFunc) (saved bool) {
	if perform == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			saved = false
		}
	}()
	ok, err := perform(ctx)
	if err != nil || !ok {
		return false
	}
	if clearAll != nil {
		clearAll()
	}
	return true
}
