package resolve

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Supported aggregate operators for cards and figures.
const (
	OpCount = "count"
	OpSum   = "sum"
	OpAvg   = "avg"
	OpMin   = "min"
	OpMax   = "max"
)

// Folder defines the reduce semantics of an aggregate operator over
// resolved rows. The hot path is a single map lookup, no switch.
type Folder interface {
	// Fold accumulates one row's value. For count the value is ignored.
	Fold(v decimal.Decimal)

	// Result returns the final aggregate. Zero rows → zero value.
	Result() decimal.Decimal
}

// Folders maps operator name to a fresh fold-state constructor.
var Folders = map[string]func() Folder{
	OpCount: func() Folder { return &countFold{} },
	OpSum:   func() Folder { return &sumFold{} },
	OpAvg:   func() Folder { return &avgFold{} },
	OpMin:   func() Folder { return &extremeFold{keep: decimal.Decimal.LessThan} },
	OpMax:   func() Folder { return &extremeFold{keep: decimal.Decimal.GreaterThan} },
}

// ValidAggregate reports whether op is a registered aggregate operator.
func ValidAggregate(op string) bool {
	_, ok := Folders[op]
	return ok
}

type countFold struct{ n int64 }

func (f *countFold) Fold(_ decimal.Decimal)  { f.n++ }
func (f *countFold) Result() decimal.Decimal { return decimal.NewFromInt(f.n) }

type sumFold struct{ sum decimal.Decimal }

func (f *sumFold) Fold(v decimal.Decimal)  { f.sum = f.sum.Add(v) }
func (f *sumFold) Result() decimal.Decimal { return f.sum }

// avgFold carries composite state (sum + count), unlike the
// single-value folds above.
type avgFold struct {
	sum decimal.Decimal
	n   int64
}

func (f *avgFold) Fold(v decimal.Decimal) {
	f.sum = f.sum.Add(v)
	f.n++
}

func (f *avgFold) Result() decimal.Decimal {
	if f.n == 0 {
		return decimal.Zero
	}
	return f.sum.DivRound(decimal.NewFromInt(f.n), 8)
}

type extremeFold struct {
	keep  func(decimal.Decimal, decimal.Decimal) bool
	best  decimal.Decimal
	first bool
}

func (f *extremeFold) Fold(v decimal.Decimal) {
	if !f.first || f.keep(v, f.best) {
		f.best = v
		f.first = true
	}
}

func (f *extremeFold) Result() decimal.Decimal { return f.best }

// Aggregate reduces a resolved table to a single value for a card or
// figure slice.
func Aggregate(table *Table, op, field string) (decimal.Decimal, error) {
	newFolder, ok := Folders[op]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown aggregate operator %q", op)
	}

	folder := newFolder()
	for _, row := range table.Rows {
		folder.Fold(extractDecimal(row, field))
	}
	return folder.Result(), nil
}

// GroupBy reduces a table into one aggregate value per distinct value
// of groupColumn. Used for figures (one slice/bar per group).
func GroupBy(table *Table, groupColumn, op, field string) (map[string]decimal.Decimal, error) {
	newFolder, ok := Folders[op]
	if !ok {
		return nil, fmt.Errorf("unknown aggregate operator %q", op)
	}

	folders := make(map[string]Folder)
	for _, row := range table.Rows {
		group := fmt.Sprintf("%v", row[groupColumn])
		f, exists := folders[group]
		if !exists {
			f = newFolder()
			folders[group] = f
		}
		f.Fold(extractDecimal(row, field))
	}

	result := make(map[string]decimal.Decimal, len(folders))
	for group, f := range folders {
		result[group] = f.Result()
	}
	return result, nil
}

// extractDecimal pulls a numeric value from a row by column name.
// Returns decimal.Zero if the column is missing, empty, or not a
// recognized numeric type. JSON numbers arrive as float64; that's the
// common path.
func extractDecimal(row Row, field string) decimal.Decimal {
	if field == "" {
		return decimal.Zero
	}
	v, ok := row[field]
	if !ok {
		return decimal.Zero
	}
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat(float64(val))
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case int32:
		return decimal.NewFromInt(int64(val))
	case decimal.Decimal:
		return val
	case string:
		d, err := decimal.NewFromString(val)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}
