package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Filter restricts a binding to rows whose Column equals Value. The zero
// Filter matches every row.
type Filter struct {
	Column string
	Value  string
}

func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// ParseFilter reads the "column=eq.value" form.
func ParseFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	column, rest, ok := strings.Cut(expr, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("realtime: malformed filter %q", expr)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok {
		return Filter{}, fmt.Errorf("realtime: only eq filters are supported, got %q", expr)
	}
	return Filter{Column: column, Value: value}, nil
}

func (f Filter) IsZero() bool {
	return f.Column == ""
}

func (f Filter) String() string {
	if f.IsZero() {
		return ""
	}
	return f.Column + "=eq." + f.Value
}

// Matches evaluates the filter against a JSON object row.
func (f Filter) Matches(row json.RawMessage) bool {
	if f.IsZero() {
		return true
	}
	if isNullJSON(row) {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	value, ok := fields[f.Column]
	if !ok || value == nil {
		return false
	}
	return stringify(value) == f.Value
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
