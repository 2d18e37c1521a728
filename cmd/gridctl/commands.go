package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gridbase/backend/internal/application/services"
	"github.com/gridbase/backend/internal/bootstrap"
	"github.com/gridbase/backend/internal/config"
	"github.com/gridbase/backend/internal/infrastructure/database"
	"github.com/gridbase/backend/pkg/formula"
	"github.com/gridbase/backend/pkg/formula/typecheck"
	"github.com/gridbase/backend/pkg/formula/value"
	"github.com/gridbase/backend/pkg/logging"
)

func newRootCmd(out io.Writer) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:          "gridctl",
		Short:        "Maintenance and formula tools for the grid backend",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	connect := func(ctx context.Context) (*bootstrap.App, func(), error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, nil, err
		}
		logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Development: true})
		if err != nil {
			return nil, nil, err
		}
		logging.SetLogger(logger)
		conn, err := database.GetInstance(cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		app, err := bootstrap.New(conn.DB(), cfg, logger)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return app, func() { _ = conn.Close(); _ = logger.Sync() }, nil
	}

	root.AddCommand(
		newMigrateCmd(connect),
		newTypeCmd(connect),
		newEvalCmd(),
		newFunctionsCmd(),
	)
	return root
}

type connector func(ctx context.Context) (*bootstrap.App, func(), error)

func newMigrateCmd(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-formulas",
		Short: "Retype every formula stored with an older formula version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, closeFn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := app.Fields.MigrateFormulasToLatestVersion(ctx)
			if err != nil {
				return err
			}
			app.Logger.Info("formula migration finished", zap.Int("fields", n))
			fmt.Fprintf(cmd.OutOrStdout(), "%d fields migrated to formula version %d\n", n, formula.Version)
			return nil
		},
	}
}

func newTypeCmd(connect connector) *cobra.Command {
	var row string
	cmd := &cobra.Command{
		Use:   "type <table-id> <formula>",
		Short: "Type a formula against a table and optionally compute it for sample values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tableID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid table id %q", args[0])
			}
			req := services.TypeFormulaRequest{Formula: args[1]}
			if row != "" {
				if err := json.Unmarshal([]byte(row), &req.Row); err != nil {
					return fmt.Errorf("invalid --row: %w", err)
				}
			}
			ctx := cmd.Context()
			app, closeFn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			preview, err := app.Fields.TypeFormula(ctx, tableID, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), preview)
		},
	}
	cmd.Flags().StringVar(&row, "row", "", `sample values by field name, as JSON, e.g. {"Price": "10.00"}`)
	return cmd
}

// newEvalCmd computes a formula without fields, so it needs no database.
func newEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <formula>",
		Short: "Compute a formula made of literals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := formula.NewEngine(1)
			if err != nil {
				return err
			}
			res, err := engine.Type(args[0], typecheck.NewStaticSchema(), typecheck.Options{})
			if err != nil {
				return err
			}
			attrs := res.Type().Attributes()
			if res.Invalid() {
				return fmt.Errorf("formula does not type: %s", attrs.Error)
			}
			out, err := engine.Evaluate(res.Node, nil, time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"formula_type": attrs,
				"value":        value.JSONValue(out),
			})
		},
	}
}

func newFunctionsCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the formula functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := formula.NewEngine(1)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORY\tUSAGE")
			for _, d := range engine.Functions() {
				if category != "" && d.Category != category {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Category, d.Usage)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list functions of this category")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
