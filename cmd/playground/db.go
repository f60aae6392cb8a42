package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/playground/pkg/db"
	"github.com/jingkaihe/playground/pkg/presenter"
)

// schemaRegistry is the part of the registry the db commands use
type schemaRegistry interface {
	Migrations() []db.Migration
	Latest() int
	Detect(ctx context.Context) (int, error)
	Converge(ctx context.Context) error
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing the playground database (schema status and convergence).`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the database schema version",
	Long:  `Shows the schema version of the database and the steps that remain to reach the latest one.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		return printSchemaStatus(cmd.Context(), a.registry, a.paths.Database, os.Stdout)
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Converge the database to the latest schema",
	Long:  `Applies every pending schema step. A database that is already up to date is left unchanged.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		return migrate(cmd.Context(), a.registry, presenter.Default())
	},
}

func init() {
	dbCmd.AddCommand(withTracing(dbStatusCmd))
	dbCmd.AddCommand(withTracing(dbMigrateCmd))
}

func printSchemaStatus(ctx context.Context, registry schemaRegistry, dbPath string, out io.Writer) error {
	current, err := registry.Detect(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to detect schema version")
	}

	fmt.Fprintln(out, "Database Schema Status")
	fmt.Fprintln(out, "======================")
	fmt.Fprintf(out, "Database: %s\n\n", dbPath)

	for _, m := range registry.Migrations() {
		status := "[ ]"
		if m.Version <= current {
			status = "[✓]"
		}
		fmt.Fprintf(out, "%s %d - %s\n", status, m.Version, m.Description)
	}

	latest := registry.Latest()
	fmt.Fprintf(out, "\nVersion: %d/%d\n", current, latest)
	if current > latest {
		fmt.Fprintln(out, "The database was written by a newer playground and cannot be used by this one.")
	}
	return nil
}

func migrate(ctx context.Context, registry schemaRegistry, p presenter.Presenter) error {
	before, err := registry.Detect(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to detect schema version")
	}

	if err := registry.Converge(ctx); err != nil {
		return err
	}

	latest := registry.Latest()
	if before == latest {
		p.Info(fmt.Sprintf("Database is up to date at version %d", latest))
		return nil
	}
	p.Success(fmt.Sprintf("Database converged from version %d to %d", before, latest))
	return nil
}
