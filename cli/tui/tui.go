package tui

import (
	"fmt"
)

// View types that support TUI mode.
const (
	ViewHistory = "history"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	switch viewType {
	case ViewHistory:
		return RunHistoryTUI(data)
	default:
		return fmt.Errorf("unknown view type: %s", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewHistory}
}
