package dashboard

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNotFound is returned when a component or dashboard is not found.
	ErrNotFound = errors.New("component not found")
	// ErrDashboardNotFound is returned when a dashboard definition does not exist.
	ErrDashboardNotFound = errors.New("dashboard not found")
)

// BindingError reports a component whose binding references a dataset
// or column that does not exist. It is fatal to that component and
// surfaced to the caller; it never aborts cascades for siblings.
type BindingError struct {
	ComponentID string `json:"component_id"`
	DatasetID   string `json:"dataset_id"`
	Column      string `json:"column,omitempty"`
	Reason      string `json:"reason"`
}

func (e *BindingError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("component %s: binding to %s.%s invalid: %s",
			e.ComponentID, e.DatasetID, e.Column, e.Reason)
	}
	return fmt.Sprintf("component %s: binding to dataset %s invalid: %s",
		e.ComponentID, e.DatasetID, e.Reason)
}
