package codegen

import (
	"fmt"

	"github.com/gridbase/backend/pkg/formula/types"
)

// ColumnType is the column definition that stores values of t.
func ColumnType(t types.FormulaType) string {
	if t == nil {
		return "LONGTEXT NULL"
	}
	switch v := t.(type) {
	case types.Number:
		return fmt.Sprintf("DECIMAL(65,%d) NULL", v.DecimalPlaces)
	case types.Text:
		return "LONGTEXT NULL"
	case types.Char:
		return "VARCHAR(255) NULL"
	case types.Boolean:
		return "TINYINT(1) NOT NULL DEFAULT 0"
	case types.Date:
		if v.IncludeTime {
			return "DATETIME(6) NULL"
		}
		return "DATE NULL"
	case types.DateInterval:
		return "BIGINT NULL"
	case types.SingleSelect:
		return "BIGINT NULL"
	case types.Array, types.MultipleSelect, types.MultipleCollaborators, types.Link:
		return "JSON NULL"
	}
	return "LONGTEXT NULL"
}
