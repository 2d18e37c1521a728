package constants

// Field types known to the grid.
const (
	FieldTypeText                  = "text"
	FieldTypeLongText              = "long_text"
	FieldTypeURL                   = "url"
	FieldTypeEmail                 = "email"
	FieldTypePhone                 = "phone_number"
	FieldTypeNumber                = "number"
	FieldTypeRating                = "rating"
	FieldTypeBoolean               = "boolean"
	FieldTypeDate                  = "date"
	FieldTypeCreatedOn             = "created_on"
	FieldTypeLastModified          = "last_modified"
	FieldTypeAutonumber            = "autonumber"
	FieldTypeLinkRow               = "link_row"
	FieldTypeFormula               = "formula"
	FieldTypeLookup                = "lookup"
	FieldTypeSingleSelect          = "single_select"
	FieldTypeMultipleSelect        = "multiple_select"
	FieldTypeMultipleCollaborators = "multiple_collaborators"
)

// IsComputed reports whether values of the field type are derived from a formula.
func IsComputed(fieldType string) bool {
	return fieldType == FieldTypeFormula || fieldType == FieldTypeLookup
}

// Environment variable names.
const (
	EnvPort             = "PORT"
	EnvDBHost           = "TIDB_HOST"
	EnvDBPort           = "TIDB_PORT"
	EnvDBUser           = "TIDB_USER"
	EnvDBPassword       = "TIDB_PASSWORD"
	EnvDBName           = "TIDB_DATABASE"
	EnvDebug            = "GRID_DEBUG"
	EnvLogLevel         = "GRID_LOG_LEVEL"
	EnvPeriodicSchedule = "GRID_PERIODIC_SCHEDULE"
	EnvEvalCacheSize    = "GRID_EVAL_CACHE_SIZE"
)

// Defaults.
const (
	DefaultPort             = "3001"
	DefaultDBPort           = "4000"
	DefaultDBName           = "gridbase"
	DefaultPeriodicSchedule = "@every 1m"
	DefaultEvalCacheSize    = 512
)
