package value

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/gridbase/backend/pkg/formula/types"
)

// SelectOption is one option of a single or multiple select field.
type SelectOption struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
	Color string `json:"color,omitempty"`
}

// Collaborator is a workspace user stored in a collaborators field.
type Collaborator struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Link is the value of link() and button().
type Link struct {
	URL   string `json:"url"`
	Label string `json:"label,omitempty"`
}

// Item is one element of an array, keyed by the id of the row it came from.
type Item struct {
	ID    int64 `json:"id"`
	Value any   `json:"value"`
}

// Array is the value of an array typed formula.
type Array []Item

// Many is the per linked row stream flowing between functions before it is
// aggregated. It never leaves the evaluator.
type Many []Item

type skip struct{}

// Skip is returned by element wise functions to drop the current item.
var Skip any = skip{}

// IsSkip reports whether v is Skip.
func IsSkip(v any) bool {
	_, ok := v.(skip)
	return ok
}

// MarshalJSON renders decimals as strings so no precision is lost.
func (a Array) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, len(a))
	for i, item := range a {
		out[i] = map[string]any{"id": item.ID, "value": JSONValue(item.Value)}
	}
	return json.Marshal(out)
}

// JSONValue converts a formula value into something encoding/json renders the
// way the API exposes it.
func JSONValue(v any) any {
	switch x := v.(type) {
	case *apd.Decimal:
		if x == nil {
			return nil
		}
		return FormatDecimal(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return x.Seconds()
	}
	return v
}

// ToBool converts a value to a boolean. Only true and non zero numbers are true.
func ToBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case *apd.Decimal:
		return b != nil && !IsNaN(b) && !b.IsZero()
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "t", "1", "yes", "y", "on", "checked":
			return true
		}
	}
	return false
}

// Text renders v as totext would for a value of type t. NULL renders as the
// empty string.
func Text(v any, t types.FormulaType) string {
	if v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case *apd.Decimal:
		if n, ok := t.(types.Number); ok && !IsNaN(x) {
			return FormatDecimal(Quantize(x, n.DecimalPlaces))
		}
		return FormatDecimal(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case time.Time:
		if d, ok := t.(types.Date); ok {
			if d.ForceTimezone != "" {
				if loc, err := time.LoadLocation(d.ForceTimezone); err == nil {
					x = x.In(loc)
				}
			}
			return x.Format(d.Layout())
		}
		return x.Format("2006-01-02")
	case time.Duration:
		return FormatInterval(x)
	case SelectOption:
		return x.Value
	case []SelectOption:
		values := make([]string, len(x))
		for i, o := range x {
			values[i] = o.Value
		}
		return strings.Join(values, ", ")
	case []Collaborator:
		names := make([]string, len(x))
		for i, c := range x {
			names[i] = c.Name
		}
		return strings.Join(names, ", ")
	case Link:
		return x.URL
	case Array:
		var sub types.FormulaType
		if arr, ok := t.(types.Array); ok {
			sub = arr.Sub
		}
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, Text(item.Value, sub))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

// FormatInterval renders a duration as "<days>d HH:MM:SS".
func FormatInterval(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	total := int64(d / time.Second)
	days := total / 86400
	rest := total % 86400
	return fmt.Sprintf("%s%dd %02d:%02d:%02d", sign, days, rest/3600, rest%3600/60, rest%60)
}
