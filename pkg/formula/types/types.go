package types

import (
	"fmt"
	"strings"
)

// NumberMaxDecimalPlaces is the widest scale a formula number column is given.
const NumberMaxDecimalPlaces = 5

// FormulaType is the resolved type of a formula expression.
type FormulaType interface {
	Kind() Kind
	Nullable() bool
	String() string
	Attributes() Attributes
}

// Invalid marks an expression that failed to type. Error is shown to the user.
type Invalid struct {
	Error string
}

func (Invalid) Kind() Kind       { return KindInvalid }
func (Invalid) Nullable() bool   { return true }
func (t Invalid) String() string { return "invalid: " + t.Error }

// Text is an unbounded string.
type Text struct {
	Null bool
}

func (Text) Kind() Kind       { return KindText }
func (t Text) Nullable() bool { return t.Null }
func (Text) String() string   { return "text" }

// Char is a short string such as a select option value.
type Char struct {
	Null bool
}

func (Char) Kind() Kind       { return KindChar }
func (t Char) Nullable() bool { return t.Null }
func (Char) String() string   { return "char" }

// Number is a fixed scale decimal.
type Number struct {
	DecimalPlaces int
	Negative      bool
	Null          bool
}

func (Number) Kind() Kind       { return KindNumber }
func (t Number) Nullable() bool { return t.Null }
func (t Number) String() string { return fmt.Sprintf("number(%d)", t.DecimalPlaces) }

// Boolean values are never NULL.
type Boolean struct{}

func (Boolean) Kind() Kind     { return KindBoolean }
func (Boolean) Nullable() bool { return false }
func (Boolean) String() string { return "boolean" }

// DateFormat is the display order of date parts.
type DateFormat string

const (
	DateFormatISO DateFormat = "ISO"
	DateFormatEU  DateFormat = "EU"
	DateFormatUS  DateFormat = "US"
)

// TimeFormat selects a 24 or 12 hour clock.
type TimeFormat string

const (
	TimeFormat24 TimeFormat = "24"
	TimeFormat12 TimeFormat = "12"
)

// Date is a calendar date, optionally with a time of day.
type Date struct {
	IncludeTime   bool
	Format        DateFormat
	TimeFormat    TimeFormat
	ForceTimezone string
	Null          bool
}

func (Date) Kind() Kind       { return KindDate }
func (t Date) Nullable() bool { return t.Null }
func (t Date) String() string {
	if t.IncludeTime {
		return "date(" + string(t.Format) + ", time " + string(t.TimeFormat) + ")"
	}
	return "date(" + string(t.Format) + ")"
}

// Layout returns the Go time layout that renders the date the way the user configured it.
func (t Date) Layout() string {
	var layout string
	switch t.Format {
	case DateFormatEU:
		layout = "02/01/2006"
	case DateFormatUS:
		layout = "01/02/2006"
	default:
		layout = "2006-01-02"
	}
	if !t.IncludeTime {
		return layout
	}
	if t.TimeFormat == TimeFormat12 {
		return layout + " 03:04 PM"
	}
	return layout + " 15:04"
}

// DateInterval is a duration between two dates.
type DateInterval struct {
	Null bool
}

func (DateInterval) Kind() Kind       { return KindDateInterval }
func (t DateInterval) Nullable() bool { return t.Null }
func (DateInterval) String() string   { return "date_interval" }

// Array is a list of items of the sub type.
type Array struct {
	Sub FormulaType
}

func (Array) Kind() Kind     { return KindArray }
func (Array) Nullable() bool { return false }
func (t Array) String() string {
	if t.Sub == nil {
		return "array"
	}
	return "array(" + t.Sub.String() + ")"
}

// SingleSelect holds one select option.
type SingleSelect struct {
	Null bool
}

func (SingleSelect) Kind() Kind       { return KindSingleSelect }
func (t SingleSelect) Nullable() bool { return t.Null }
func (SingleSelect) String() string   { return "single_select" }

// MultipleSelect holds a set of select options.
type MultipleSelect struct{}

func (MultipleSelect) Kind() Kind     { return KindMultipleSelect }
func (MultipleSelect) Nullable() bool { return false }
func (MultipleSelect) String() string { return "multiple_select" }

// MultipleCollaborators holds a set of workspace users.
type MultipleCollaborators struct{}

func (MultipleCollaborators) Kind() Kind     { return KindMultipleCollaborators }
func (MultipleCollaborators) Nullable() bool { return false }
func (MultipleCollaborators) String() string { return "multiple_collaborators" }

// Link is a URL with an optional label. Buttons are links rendered as a button.
type Link struct {
	Button bool
	Null   bool
}

func (Link) Kind() Kind       { return KindLink }
func (t Link) Nullable() bool { return t.Null }
func (t Link) String() string {
	if t.Button {
		return "button"
	}
	return "link"
}

// IsInvalid reports whether t is nil or Invalid.
func IsInvalid(t FormulaType) bool {
	return t == nil || t.Kind() == KindInvalid
}

// Errorf builds an Invalid type with a formatted message.
func Errorf(format string, args ...any) Invalid {
	return Invalid{Error: fmt.Sprintf(format, args...)}
}

// WithNullable returns a copy of t with the nullable flag set. Types that are
// never NULL are returned unchanged.
func WithNullable(t FormulaType, nullable bool) FormulaType {
	switch v := t.(type) {
	case Text:
		v.Null = nullable
		return v
	case Char:
		v.Null = nullable
		return v
	case Number:
		v.Null = nullable
		return v
	case Date:
		v.Null = nullable
		return v
	case DateInterval:
		v.Null = nullable
		return v
	case SingleSelect:
		v.Null = nullable
		return v
	case Link:
		v.Null = nullable
		return v
	default:
		return t
	}
}

// Equal compares two types including their attributes.
func Equal(a, b FormulaType) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Attributes().Equal(b.Attributes())
}

// KindNames renders a list of kinds for error messages, e.g. "text or number".
func KindNames(kinds []Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	switch len(names) {
	case 0:
		return "nothing"
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
}
