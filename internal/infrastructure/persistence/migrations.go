package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/gridbase/backend/pkg/constants"
	"github.com/gridbase/backend/pkg/logging"
)

// metadataSchema creates the tables holding user table and field metadata.
var metadataSchema = []string{
	fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"`id` BIGINT NOT NULL AUTO_INCREMENT, "+
		"`name` VARCHAR(255) NOT NULL, "+
		"`created_at` DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6), "+
		"PRIMARY KEY (`id`)) %s", constants.TableTable, tableOptions),

	fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"`id` BIGINT NOT NULL AUTO_INCREMENT, "+
		"`table_id` BIGINT NOT NULL, "+
		"`name` VARCHAR(255) NOT NULL, "+
		"`type` VARCHAR(50) NOT NULL, "+
		"`primary` TINYINT(1) NOT NULL DEFAULT 0, "+
		"`order` INT NOT NULL DEFAULT 0, "+
		"`options` JSON NULL, "+
		"`formula` LONGTEXT NULL, "+
		"`formula_type` JSON NULL, "+
		"`formula_version` INT NOT NULL DEFAULT 0, "+
		"`error` TEXT NULL, "+
		"`needs_periodic_update` TINYINT(1) NOT NULL DEFAULT 0, "+
		"PRIMARY KEY (`id`), "+
		"UNIQUE KEY `uniq_field_table_name` (`table_id`, `name`), "+
		"KEY `idx_field_periodic` (`needs_periodic_update`)) %s", constants.TableField, tableOptions),

	fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"`id` BIGINT NOT NULL AUTO_INCREMENT, "+
		"`dependant_id` BIGINT NOT NULL, "+
		"`dependency_id` BIGINT NULL, "+
		"`via_field_id` BIGINT NULL, "+
		"`broken_reference_field_name` VARCHAR(255) NULL, "+
		"`table_id` BIGINT NOT NULL, "+
		"PRIMARY KEY (`id`), "+
		"KEY `idx_dependency_dependant` (`dependant_id`), "+
		"KEY `idx_dependency_dependency` (`dependency_id`)) %s", constants.TableFieldDependency, tableOptions),
}

// Migrate creates the metadata tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, ddl := range metadataSchema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	logging.L().Info("metadata schema ready", zap.Int("tables", len(metadataSchema)))
	return nil
}
