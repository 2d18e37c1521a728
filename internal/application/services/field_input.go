package services

import (
	"strings"

	"github.com/gridbase/backend/internal/domain/models"
	"github.com/gridbase/backend/pkg/constants"
	apperrors "github.com/gridbase/backend/pkg/errors"
	"github.com/gridbase/backend/pkg/formula/ast"
)

// MaxFieldNameLength matches the grid_field.name column.
const MaxFieldNameLength = 255

var knownFieldTypes = map[string]bool{
	constants.FieldTypeText: true, constants.FieldTypeLongText: true, constants.FieldTypeURL: true,
	constants.FieldTypeEmail: true, constants.FieldTypePhone: true, constants.FieldTypeNumber: true,
	constants.FieldTypeRating: true, constants.FieldTypeBoolean: true, constants.FieldTypeDate: true,
	constants.FieldTypeCreatedOn: true, constants.FieldTypeLastModified: true, constants.FieldTypeAutonumber: true,
	constants.FieldTypeLinkRow: true, constants.FieldTypeFormula: true, constants.FieldTypeLookup: true,
	constants.FieldTypeSingleSelect: true, constants.FieldTypeMultipleSelect: true,
	constants.FieldTypeMultipleCollaborators: true,
}

// FieldInput describes a field to create.
type FieldInput struct {
	Name    string              `json:"name" binding:"required"`
	Type    string              `json:"type" binding:"required"`
	Formula string              `json:"formula,omitempty"`
	Options models.FieldOptions `json:"options"`
}

// FieldUpdate lists the attributes to change. Nil means unchanged.
type FieldUpdate struct {
	Name    *string              `json:"name,omitempty"`
	Type    *string              `json:"type,omitempty"`
	Formula *string              `json:"formula,omitempty"`
	Options *models.FieldOptions `json:"options,omitempty"`
}

func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperrors.NewValidationError("name", "field name is required")
	case len(name) > MaxFieldNameLength:
		return apperrors.NewValidationError("name", "field name is too long")
	}
	return nil
}

// validateDefinition checks the parts of a field that do not need the schema.
func validateDefinition(f *models.Field) error {
	if err := validateName(f.Name); err != nil {
		return err
	}
	if !knownFieldTypes[f.Type] {
		return apperrors.NewValidationError("type", "unknown field type "+f.Type)
	}
	switch f.Type {
	case constants.FieldTypeFormula:
		if strings.TrimSpace(f.Formula) == "" {
			return apperrors.NewValidationError("formula", "a formula field needs a formula")
		}
	case constants.FieldTypeLookup:
		if f.Options.ThroughFieldName == "" || f.Options.TargetFieldName == "" {
			return apperrors.NewValidationError("options", "a lookup field needs through_field_name and target_field_name")
		}
		f.Formula = lookupFormula(f.Options)
	case constants.FieldTypeLinkRow:
		if f.Options.LinkTableID == 0 {
			return apperrors.NewValidationError("options", "a link row field needs link_table_id")
		}
	default:
		f.Formula = ""
	}
	if !f.IsComputed() {
		f.FormulaType = nil
		f.FormulaVersion = 0
		f.Error = ""
		f.NeedsPeriodicUpdate = false
	}
	return nil
}

// lookupFormula is the formula a lookup field is computed with.
func lookupFormula(o models.FieldOptions) string {
	return "lookup(" + ast.Quote(o.ThroughFieldName) + ", " + ast.Quote(o.TargetFieldName) + ")"
}
