package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/gridbase/backend/pkg/constants"
	"github.com/gridbase/backend/pkg/formula/types"
)

// Table is a user table.
type Table struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FieldOptions holds the type specific settings of a field. It is stored as
// JSON in grid_field.options.
type FieldOptions struct {
	DecimalPlaces   int    `json:"decimal_places,omitempty"`
	NumberNegative  bool   `json:"number_negative,omitempty"`
	DateFormat      string `json:"date_format,omitempty"`
	DateIncludeTime bool   `json:"date_include_time,omitempty"`
	DateTimeFormat  string `json:"date_time_format,omitempty"`
	DateTimezone    string `json:"date_force_timezone,omitempty"`
	// LinkTableID is the table a link_row field points to.
	LinkTableID int64 `json:"link_table_id,omitempty"`
	// ThroughFieldName and TargetFieldName describe a lookup field.
	ThroughFieldName string `json:"through_field_name,omitempty"`
	TargetFieldName  string `json:"target_field_name,omitempty"`
}

// Value implements driver.Valuer.
func (o FieldOptions) Value() (driver.Value, error) {
	return json.Marshal(o)
}

// Scan implements sql.Scanner.
func (o *FieldOptions) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*o = FieldOptions{}
		return nil
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	}
	return fmt.Errorf("cannot scan %T into FieldOptions", src)
}

// Field is a column of a user table.
type Field struct {
	ID      int64        `json:"id"`
	TableID int64        `json:"table_id"`
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	Primary bool         `json:"primary"`
	Order   int          `json:"order"`
	Options FieldOptions `json:"options"`
	// Formula is the source of formula and lookup fields.
	Formula string `json:"formula,omitempty"`
	// FormulaType is the snapshot of the resolved type of a computed field.
	FormulaType    *types.Attributes `json:"formula_type,omitempty"`
	FormulaVersion int               `json:"formula_version,omitempty"`
	// Error is set when the formula does not type.
	Error               string `json:"error,omitempty"`
	NeedsPeriodicUpdate bool   `json:"needs_periodic_update,omitempty"`
}

// IsComputed reports whether the values of the field come from a formula.
func (f *Field) IsComputed() bool { return constants.IsComputed(f.Type) }

// IsLink reports whether the field is a link_row field.
func (f *Field) IsLink() bool { return f.Type == constants.FieldTypeLinkRow }

// HasColumn reports whether the field is stored in a column of its table.
// Link fields are stored in their relation table.
func (f *Field) HasColumn() bool { return !f.IsLink() }

// Clone returns a copy that can be changed without touching f.
func (f *Field) Clone() *Field {
	c := *f
	if f.FormulaType != nil {
		attrs := *f.FormulaType
		c.FormulaType = &attrs
	}
	return &c
}

// ResolvedType is the formula type values of the field have when read from a formula.
func (f *Field) ResolvedType() types.FormulaType {
	o := f.Options
	switch f.Type {
	case constants.FieldTypeText, constants.FieldTypeLongText, constants.FieldTypeURL,
		constants.FieldTypeEmail, constants.FieldTypePhone:
		return types.Text{Null: true}
	case constants.FieldTypeNumber:
		return types.Number{DecimalPlaces: min(max(o.DecimalPlaces, 0), types.NumberMaxDecimalPlaces), Negative: o.NumberNegative, Null: true}
	case constants.FieldTypeRating, constants.FieldTypeAutonumber:
		return types.Number{Null: f.Type == constants.FieldTypeRating}
	case constants.FieldTypeBoolean:
		return types.Boolean{}
	case constants.FieldTypeDate, constants.FieldTypeCreatedOn, constants.FieldTypeLastModified:
		format := types.DateFormat(o.DateFormat)
		if format == "" {
			format = types.DateFormatISO
		}
		timeFormat := types.TimeFormat(o.DateTimeFormat)
		if timeFormat == "" {
			timeFormat = types.TimeFormat24
		}
		return types.Date{
			IncludeTime:   o.DateIncludeTime || f.Type != constants.FieldTypeDate,
			Format:        format,
			TimeFormat:    timeFormat,
			ForceTimezone: o.DateTimezone,
			Null:          f.Type == constants.FieldTypeDate,
		}
	case constants.FieldTypeSingleSelect:
		return types.SingleSelect{Null: true}
	case constants.FieldTypeMultipleSelect:
		return types.MultipleSelect{}
	case constants.FieldTypeMultipleCollaborators:
		return types.MultipleCollaborators{}
	case constants.FieldTypeLinkRow:
		return types.Array{Sub: types.Text{Null: true}}
	case constants.FieldTypeFormula, constants.FieldTypeLookup:
		if f.FormulaType == nil {
			return types.Invalid{Error: "the formula has not been typed yet"}
		}
		t, err := types.FromAttributes(*f.FormulaType)
		if err != nil {
			return types.Invalid{Error: err.Error()}
		}
		return t
	}
	return types.Invalid{Error: fmt.Sprintf("unknown field type %s", f.Type)}
}

// Dependency is an edge of the field dependency graph as stored in
// grid_field_dependency. DependencyID is nil for a reference to a name that
// does not exist in TableID.
type Dependency struct {
	DependantID  int64  `json:"dependant_id"`
	DependencyID *int64 `json:"dependency_id,omitempty"`
	ViaFieldID   *int64 `json:"via_field_id,omitempty"`
	BrokenName   string `json:"broken_reference_field_name,omitempty"`
	TableID      int64  `json:"table_id"`
}

// FieldChange is the outcome of a field mutation.
type FieldChange struct {
	Field *Field `json:"field,omitempty"`
	// UpdatedFields are the other fields retyped or recomputed as a consequence.
	UpdatedFields []*Field `json:"related_fields"`
	// NewlyInvalidFields were valid before the change and no longer type.
	NewlyInvalidFields []*Field `json:"newly_invalid_fields,omitempty"`
}

// FormulaTypePreview is the result of typing a formula without saving it.
type FormulaTypePreview struct {
	FormulaType types.Attributes `json:"formula_type"`
	Error       string           `json:"error,omitempty"`
	Value       any              `json:"value,omitempty"`
}
