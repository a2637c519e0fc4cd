package dashboard

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Kind identifies what a placed component is.
type Kind string

const (
	KindFilter Kind = "filter"
	KindCard   Kind = "card"
	KindFigure Kind = "figure"
	KindTable  Kind = "table"
)

// ValidKind reports whether k is one of the four component kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindFilter, KindCard, KindFigure, KindTable:
		return true
	}
	return false
}

// IsData reports whether the kind renders dataset rows (everything
// except filter controls).
func (k Kind) IsData() bool {
	return k == KindCard || k == KindFigure || k == KindTable
}

// Binding is the declarative link from a component to the dataset
// column it reads.
type Binding struct {
	DatasetID string `yaml:"dataset_id" json:"dataset_id"`
	Column    string `yaml:"column" json:"column"`
}

// Config holds kind-specific declarative parameters. Not all fields
// are valid for all kinds; Validate enforces the per-kind rules.
type Config struct {
	// Card and figure: the aggregate applied per slice.
	Aggregate string `yaml:"aggregate,omitempty" json:"aggregate,omitempty"` // count | sum | avg | min | max

	// Figure only: the binding column is the group axis; Field is the
	// aggregated column (empty for count).
	Field     string `yaml:"field,omitempty" json:"field,omitempty"`
	ChartType string `yaml:"chart_type,omitempty" json:"chart_type,omitempty"` // bar | line | pie

	// Table only.
	Columns []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Limit   int      `yaml:"limit,omitempty" json:"limit,omitempty"`

	// Filter only: which control the filter renders as.
	Control string `yaml:"control,omitempty" json:"control,omitempty"` // range | multi | scalar
}

// ValueKind discriminates the shape of a filter value.
type ValueKind string

const (
	ValueRange  ValueKind = "range"
	ValueMulti  ValueKind = "multi"
	ValueScalar ValueKind = "scalar"
)

// FilterValue is the runtime value of one filter control: a numeric
// range, a multi-select set, or a single scalar.
type FilterValue struct {
	Kind    ValueKind       `yaml:"kind" json:"kind"`
	Min     decimal.Decimal `yaml:"min,omitempty" json:"min,omitempty"`
	Max     decimal.Decimal `yaml:"max,omitempty" json:"max,omitempty"`
	Options []string        `yaml:"options,omitempty" json:"options,omitempty"`
	Scalar  string          `yaml:"scalar,omitempty" json:"scalar,omitempty"`
}

// Equal reports whether two filter values are the same value, not the
// same pointer. Decimal comparison is by numeric value so 20 == 20.0.
// Multi-select comparison is set-wise: the order the user clicked
// options in does not make a different selection.
func (v FilterValue) Equal(other FilterValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueRange:
		return v.Min.Equal(other.Min) && v.Max.Equal(other.Max)
	case ValueMulti:
		if len(v.Options) != len(other.Options) {
			return false
		}
		a := append([]string(nil), v.Options...)
		b := append([]string(nil), other.Options...)
		sort.Strings(a)
		sort.Strings(b)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	case ValueScalar:
		return v.Scalar == other.Scalar
	}
	return false
}

// Component is a placed, user-visible dashboard unit. Editing a
// component produces a new definition under the same ID; the reactive
// engine only ever reads these.
type Component struct {
	ID           string       `yaml:"id" json:"id"`
	Kind         Kind         `yaml:"kind" json:"kind"`
	Title        string       `yaml:"title,omitempty" json:"title,omitempty"`
	Binding      Binding      `yaml:"binding" json:"binding"`
	Config       Config       `yaml:"config,omitempty" json:"config,omitempty"`
	DefaultState *FilterValue `yaml:"default_state,omitempty" json:"default_state,omitempty"`
}

// Validate checks the component's intrinsic shape. Binding existence
// against the dataset catalog is the registry's job.
func (c *Component) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("component id is required")
	}
	if !ValidKind(c.Kind) {
		return fmt.Errorf("component %s: invalid kind %q", c.ID, c.Kind)
	}
	if c.Binding.DatasetID == "" {
		return fmt.Errorf("component %s: binding.dataset_id is required", c.ID)
	}

	switch c.Kind {
	case KindFilter:
		if c.Binding.Column == "" {
			return fmt.Errorf("component %s: filter requires binding.column", c.ID)
		}
		if c.DefaultState == nil {
			return fmt.Errorf("component %s: filter requires default_state", c.ID)
		}
		switch c.DefaultState.Kind {
		case ValueRange, ValueMulti, ValueScalar:
		default:
			return fmt.Errorf("component %s: invalid default_state kind %q", c.ID, c.DefaultState.Kind)
		}
	case KindCard:
		switch c.Config.Aggregate {
		case "count":
		case "sum", "avg", "min", "max":
			if c.Binding.Column == "" {
				return fmt.Errorf("component %s: aggregate %q requires binding.column", c.ID, c.Config.Aggregate)
			}
		default:
			return fmt.Errorf("component %s: invalid aggregate %q", c.ID, c.Config.Aggregate)
		}
	case KindFigure:
		if c.Binding.Column == "" {
			return fmt.Errorf("component %s: figure requires binding.column as group axis", c.ID)
		}
		switch c.Config.Aggregate {
		case "count":
		case "sum", "avg", "min", "max":
			if c.Config.Field == "" {
				return fmt.Errorf("component %s: aggregate %q requires config.field", c.ID, c.Config.Aggregate)
			}
		default:
			return fmt.Errorf("component %s: invalid aggregate %q", c.ID, c.Config.Aggregate)
		}
	case KindTable:
		if c.Config.Limit < 0 {
			return fmt.Errorf("component %s: table limit must be >= 0", c.ID)
		}
	}

	return nil
}

// Dashboard is the persisted definition a session is opened against.
type Dashboard struct {
	ID         string       `yaml:"id" json:"id"`
	Name       string       `yaml:"name,omitempty" json:"name,omitempty"`
	Components []*Component `yaml:"components" json:"components"`
}

// Validate checks the dashboard definition, including component ID
// uniqueness.
func (d *Dashboard) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dashboard id is required")
	}
	seen := make(map[string]bool, len(d.Components))
	for _, c := range d.Components {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.ID] {
			return fmt.Errorf("dashboard %s: duplicate component id %q", d.ID, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}
