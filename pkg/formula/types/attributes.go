package types

import (
	"encoding/json"
	"fmt"
)

// Attributes is the serialisable snapshot of a FormulaType stored with each
// formula field.
type Attributes struct {
	Type                string      `json:"formula_type"`
	Nullable            bool        `json:"nullable"`
	Error               string      `json:"error,omitempty"`
	NumberDecimalPlaces *int        `json:"number_decimal_places,omitempty"`
	NumberNegative      bool        `json:"number_negative,omitempty"`
	DateIncludeTime     bool        `json:"date_include_time,omitempty"`
	DateFormat          string      `json:"date_format,omitempty"`
	DateTimeFormat      string      `json:"date_time_format,omitempty"`
	DateForceTimezone   string      `json:"date_force_timezone,omitempty"`
	LinkIsButton        bool        `json:"link_is_button,omitempty"`
	ArraySubType        *Attributes `json:"array_formula_type,omitempty"`
}

// Equal compares two snapshots field by field.
func (a Attributes) Equal(b Attributes) bool {
	if a.Type != b.Type || a.Nullable != b.Nullable || a.Error != b.Error ||
		a.NumberNegative != b.NumberNegative || a.DateIncludeTime != b.DateIncludeTime ||
		a.DateFormat != b.DateFormat || a.DateTimeFormat != b.DateTimeFormat ||
		a.DateForceTimezone != b.DateForceTimezone || a.LinkIsButton != b.LinkIsButton {
		return false
	}
	if (a.NumberDecimalPlaces == nil) != (b.NumberDecimalPlaces == nil) {
		return false
	}
	if a.NumberDecimalPlaces != nil && *a.NumberDecimalPlaces != *b.NumberDecimalPlaces {
		return false
	}
	if (a.ArraySubType == nil) != (b.ArraySubType == nil) {
		return false
	}
	if a.ArraySubType != nil {
		return a.ArraySubType.Equal(*b.ArraySubType)
	}
	return true
}

// JSON marshals the snapshot, for storage in a JSON column.
func (a Attributes) JSON() ([]byte, error) {
	return json.Marshal(a)
}

func (t Invalid) Attributes() Attributes {
	return Attributes{Type: KindInvalid.String(), Nullable: true, Error: t.Error}
}

func (t Text) Attributes() Attributes {
	return Attributes{Type: KindText.String(), Nullable: t.Null}
}

func (t Char) Attributes() Attributes {
	return Attributes{Type: KindChar.String(), Nullable: t.Null}
}

func (t Number) Attributes() Attributes {
	dp := t.DecimalPlaces
	return Attributes{
		Type:                KindNumber.String(),
		Nullable:            t.Null,
		NumberDecimalPlaces: &dp,
		NumberNegative:      t.Negative,
	}
}

func (Boolean) Attributes() Attributes {
	return Attributes{Type: KindBoolean.String()}
}

func (t Date) Attributes() Attributes {
	return Attributes{
		Type:              KindDate.String(),
		Nullable:          t.Null,
		DateIncludeTime:   t.IncludeTime,
		DateFormat:        string(t.Format),
		DateTimeFormat:    string(t.TimeFormat),
		DateForceTimezone: t.ForceTimezone,
	}
}

func (t DateInterval) Attributes() Attributes {
	return Attributes{Type: KindDateInterval.String(), Nullable: t.Null}
}

func (t Array) Attributes() Attributes {
	a := Attributes{Type: KindArray.String()}
	if t.Sub != nil {
		sub := t.Sub.Attributes()
		a.ArraySubType = &sub
	}
	return a
}

func (t SingleSelect) Attributes() Attributes {
	return Attributes{Type: KindSingleSelect.String(), Nullable: t.Null}
}

func (MultipleSelect) Attributes() Attributes {
	return Attributes{Type: KindMultipleSelect.String()}
}

func (MultipleCollaborators) Attributes() Attributes {
	return Attributes{Type: KindMultipleCollaborators.String()}
}

func (t Link) Attributes() Attributes {
	return Attributes{Type: KindLink.String(), Nullable: t.Null, LinkIsButton: t.Button}
}

// FromAttributes rebuilds a FormulaType from its stored snapshot.
func FromAttributes(a Attributes) (FormulaType, error) {
	kind, err := ParseKind(a.Type)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindInvalid:
		return Invalid{Error: a.Error}, nil
	case KindText:
		return Text{Null: a.Nullable}, nil
	case KindChar:
		return Char{Null: a.Nullable}, nil
	case KindNumber:
		dp := 0
		if a.NumberDecimalPlaces != nil {
			dp = *a.NumberDecimalPlaces
		}
		if dp < 0 || dp > NumberMaxDecimalPlaces {
			return nil, fmt.Errorf("number decimal places %d out of range", dp)
		}
		return Number{DecimalPlaces: dp, Negative: a.NumberNegative, Null: a.Nullable}, nil
	case KindBoolean:
		return Boolean{}, nil
	case KindDate:
		format := DateFormat(a.DateFormat)
		if format == "" {
			format = DateFormatISO
		}
		timeFormat := TimeFormat(a.DateTimeFormat)
		if timeFormat == "" {
			timeFormat = TimeFormat24
		}
		return Date{
			IncludeTime:   a.DateIncludeTime,
			Format:        format,
			TimeFormat:    timeFormat,
			ForceTimezone: a.DateForceTimezone,
			Null:          a.Nullable,
		}, nil
	case KindDateInterval:
		return DateInterval{Null: a.Nullable}, nil
	case KindArray:
		if a.ArraySubType == nil {
			return Array{}, nil
		}
		sub, err := FromAttributes(*a.ArraySubType)
		if err != nil {
			return nil, fmt.Errorf("array sub type: %w", err)
		}
		return Array{Sub: sub}, nil
	case KindSingleSelect:
		return SingleSelect{Null: a.Nullable}, nil
	case KindMultipleSelect:
		return MultipleSelect{}, nil
	case KindMultipleCollaborators:
		return MultipleCollaborators{}, nil
	case KindLink:
		return Link{Button: a.LinkIsButton, Null: a.Nullable}, nil
	}
	return nil, fmt.Errorf("unsupported formula type %q", a.Type)
}

// ParseAttributes decodes a stored JSON snapshot.
func ParseAttributes(data []byte) (FormulaType, error) {
	var a Attributes
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode formula type: %w", err)
	}
	return FromAttributes(a)
}
