package common

import "errors"

// ErrModulePaused is returned when a ledger module has been administratively
// halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named ledger module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutations against a paused module. A nil view or empty module
// name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
