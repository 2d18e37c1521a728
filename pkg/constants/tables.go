package constants

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata tables.
const (
	TableTable           = "grid_table"
	TableField           = "grid_field"
	TableFieldDependency = "grid_field_dependency"
	TableSelectOption    = "grid_select_option"
	TableCollaborator    = "grid_collaborator"
)

// Physical table and column prefixes for user tables.
const (
	UserTablePrefix     = "table_"
	UserColumnPrefix    = "field_"
	RelationTablePrefix = "relation_"
)

// Columns present on every user table and every relation table.
const (
	ColumnID          = "id"
	ColumnOrder       = "order"
	ColumnRowID       = "row_id"
	ColumnTargetRowID = "target_row_id"
)

// TableName returns the physical table name of a user table.
func TableName(tableID int64) string {
	return UserTablePrefix + strconv.FormatInt(tableID, 10)
}

// ColumnName returns the physical column name of a field.
func ColumnName(fieldID int64) string {
	return UserColumnPrefix + strconv.FormatInt(fieldID, 10)
}

// RelationTableName returns the m2m table backing a link_row field.
func RelationTableName(linkFieldID int64) string {
	return RelationTablePrefix + strconv.FormatInt(linkFieldID, 10)
}

// ParseColumnName extracts the field id from a physical column name.
func ParseColumnName(column string) (int64, error) {
	if !strings.HasPrefix(column, UserColumnPrefix) {
		return 0, fmt.Errorf("column %q is not a field column", column)
	}
	return strconv.ParseInt(strings.TrimPrefix(column, UserColumnPrefix), 10, 64)
}
