package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/seanankenbruck/analytics-sql-ai/internal/config"
	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

var (
	extractDriver string
	extractDSN    string
	extractDBName string
	extractOutput string
	extractFormat string
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and extract schema catalogs",
}

var schemaExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Write the catalog of a live database as a schema file",
	Long: `extract introspects the tables, columns, primary keys and foreign keys of a
database and writes them in the schema file format the pipeline loads.`,
	RunE: runSchemaExtract,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Load a schema file and print its tables",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemaShow,
}

func init() {
	schemaExtractCmd.Flags().StringVar(&extractDriver, "driver", "",
		"Database driver: postgres, pgx or sqlite (defaults to DB_DRIVER)")
	schemaExtractCmd.Flags().StringVar(&extractDSN, "dsn", "",
		"Database DSN (defaults to DB_DSN)")
	schemaExtractCmd.Flags().StringVar(&extractDBName, "db-name", "",
		"Schema to introspect on postgres (defaults to SCHEMA_DB_NAME)")
	schemaExtractCmd.Flags().StringVarP(&extractOutput, "output", "o", "",
		"Output file (defaults to stdout)")
	schemaExtractCmd.Flags().StringVarP(&extractFormat, "format", "f", "json",
		"Output format: json or yaml")

	schemaCmd.AddCommand(schemaExtractCmd, schemaShowCmd)
}

func runSchemaExtract(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := context.Background()

	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		return err
	}
	if extractDriver != "" {
		cfg.Database.Driver = extractDriver
	}
	if extractDSN != "" {
		cfg.Database.DSN = extractDSN
	}
	if extractDBName != "" {
		cfg.Schema.DBName = extractDBName
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("a database DSN is required (--dsn or DB_DSN)")
	}

	driver := cfg.Database.Driver
	if driver == config.DriverPgx {
		driver = config.DriverPostgres
	}
	db, err := executor.Open(driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := schema.ExcludeTables(func(ctx context.Context) (*schema.Catalog, error) {
		return schema.Introspect(ctx, db, cfg.Dialect(), cfg.Schema.DBName)
	}, cfg.Schema.ExcludeTables)
	if err != nil {
		return err
	}
	catalog, err := source(ctx)
	if err != nil {
		return err
	}

	data, err := encodeCatalog(catalog, extractFormat)
	if err != nil {
		return err
	}

	if extractOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(extractOutput, data, 0o644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d tables to %s (version %s)\n",
		len(catalog.TableNames()), extractOutput, catalog.Version())
	return nil
}

func encodeCatalog(catalog *schema.Catalog, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(catalog.Specs())
	default:
		return nil, fmt.Errorf("unknown format %q (must be json or yaml)", format)
	}
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.NewDefaultLoader().Load(context.Background())
		if err != nil {
			return err
		}
		path = cfg.Schema.Path
	}

	catalog, err := schema.LoadFile(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Schema %s (version %s)\n", path, catalog.Version())
	for _, name := range catalog.TableNames() {
		table, _ := catalog.LookupTable(name)
		fmt.Fprintf(out, "  %s (%s)\n", name, strings.Join(table.Columns(), ", "))
		for _, fk := range table.ForeignKeys() {
			fmt.Fprintf(out, "    %s\n", fk)
		}
	}
	return nil
}
