// Package bootstrap assembles the application from its configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/gridbase/backend/internal/application/services"
	"github.com/gridbase/backend/internal/config"
	"github.com/gridbase/backend/internal/infrastructure/persistence"
	"github.com/gridbase/backend/pkg/formula"
)

// App is the wired application.
type App struct {
	Engine   *formula.Engine
	Fields   *services.FormulaFieldService
	Tx       *persistence.TransactionManager
	Logger   *zap.Logger
	Config   *config.Config
	Periodic *services.PeriodicUpdater
}

// New wires the repositories, the formula engine and the field service over db.
func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) (*App, error) {
	engine, err := formula.NewEngine(cfg.EvalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create formula engine: %w", err)
	}
	tx := persistence.NewTransactionManager(db)
	svc := services.NewFormulaFieldService(services.Stores{
		Tables:   persistence.NewTableRepository(db),
		Fields:   persistence.NewFieldRepository(db),
		Deps:     persistence.NewDependencyRepository(db),
		Schema:   persistence.NewSchemaRepository(db),
		Values:   persistence.NewFormulaValueRepository(db),
		Tx:       tx,
		Reporter: services.NewZapErrorReporter(logger),
	}, engine, logger, cfg.Debug)

	periodic, err := services.NewPeriodicUpdater(svc, cfg.PeriodicSchedule, logger)
	if err != nil {
		return nil, err
	}
	return &App{Engine: engine, Fields: svc, Tx: tx, Logger: logger, Config: cfg, Periodic: periodic}, nil
}

// InitializeSchema creates the metadata tables and brings stored formulas
// to the current formula version.
func (a *App) InitializeSchema(ctx context.Context, db *sql.DB) error {
	if err := persistence.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate metadata tables: %w", err)
	}
	n, err := a.Fields.MigrateFormulasToLatestVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate formulas: %w", err)
	}
	if n > 0 {
		a.Logger.Info("formulas retyped", zap.Int("fields", n), zap.Int("version", formula.Version))
	}
	return nil
}
