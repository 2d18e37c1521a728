package persistence

import (
	"fmt"

	"github.com/gridbase/backend/pkg/constants"
)

// DDL fragments of the physical tables.
const (
	SQLTypeID       = "BIGINT NOT NULL AUTO_INCREMENT"
	SQLTypeRowOrder = "DECIMAL(40,20) NOT NULL DEFAULT 1"
	SQLTypeRowRef   = "BIGINT NOT NULL"
	tableOptions    = "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci"
)

// fieldColumns is the column list of grid_field in scan order.
var fieldColumns = fmt.Sprintf("`%s`, `table_id`, `name`, `type`, `primary`, `%s`, `options`, `formula`, `formula_type`, `formula_version`, `error`, `needs_periodic_update`",
	constants.ColumnID, constants.ColumnOrder)

// fieldWritableColumns are the columns written on insert, in argument order.
var fieldWritableColumns = []string{
	"table_id", "name", "type", "primary", constants.ColumnOrder, "options", "formula",
	"formula_type", "formula_version", "error", "needs_periodic_update",
}

const dependencyColumns = "`dependant_id`, `dependency_id`, `via_field_id`, `broken_reference_field_name`, `table_id`"

// quote backquotes an identifier.
func quote(name string) string {
	return "`" + name + "`"
}
