package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/file"
	sfdest "github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/salesforce"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/sources/salesforce"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/formats"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
)

func newSalesforceCommand(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salesforce",
		Short: "Download from or upsert into Salesforce",
	}
	cmd.AddCommand(newSalesforceDownloadCommand(global), newSalesforceUpsertCommand(global))
	return cmd
}

func newSalesforceDownloadCommand(global *globalFlags) *cobra.Command {
	var configPath, output, query, table string
	var columns []string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Run a SOQL query and write the result to a file",
		Long: `Run a SOQL query, or select columns of a table, and write the records
to a local file. The format follows the file extension (.csv, .json,
.parquet or .avro).

Example:
  nebula-connectors salesforce download --config sf.yaml \
    --table Contact --columns Id,Email --output contacts.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConnectorConfig(configPath, global)
			if err != nil {
				return err
			}
			if query != "" {
				cfg.Properties["query"] = query
			}
			if table != "" {
				cfg.Properties["table"] = table
			}
			if len(columns) > 0 {
				cfg.Properties["columns"] = strings.Join(columns, ",")
			}

			ctx, cancel := commandContext(cmd, global)
			defer cancel()

			source, err := salesforce.NewSalesforceSource(cfg.Name, cfg)
			if err != nil {
				return err
			}
			if err := source.Initialize(ctx, cfg); err != nil {
				return err
			}
			defer source.Close(ctx)

			f, err := source.Extract(ctx)
			if err != nil {
				return err
			}
			if err := writeFrame(ctx, f, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d records to %s\n", f.Len(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the salesforce source config (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("output")
	cmd.Flags().StringVarP(&query, "query", "q", "", "SOQL query (overrides the query property)")
	cmd.Flags().StringVar(&table, "table", "", "Table to select from when no query is given")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns selected from --table")
	return cmd
}

func newSalesforceUpsertCommand(global *globalFlags) *cobra.Command {
	var configPath, input, table, externalID string

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Upsert the rows of a CSV file into a Salesforce object",
		Long: `Upsert every row of a CSV file into a Salesforce object. Rows are matched
on the external id field when given, otherwise on their Id column.

Example:
  nebula-connectors salesforce upsert --config sf.yaml --input contacts.csv \
    --table Contact --external-id SAPContactId__c`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConnectorConfig(configPath, global)
			if err != nil {
				return err
			}
			if table != "" {
				cfg.Properties["table"] = table
			}
			if externalID != "" {
				cfg.Properties["external_id"] = externalID
			}

			f, err := frame.ReadCSVFile(input, cfg.Property("table", "upsert"))
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd, global)
			defer cancel()

			dest, err := sfdest.NewSalesforceDestination(cfg.Name, cfg)
			if err != nil {
				return err
			}
			if err := dest.Initialize(ctx, cfg); err != nil {
				return err
			}
			defer dest.Close(ctx)

			if err := dest.CreateSchema(ctx, f.Schema()); err != nil {
				return err
			}
			if err := dest.Write(ctx, f.Stream(ctx, cfg.Performance.BufferSize)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d records into %s\n", f.Len(), cfg.Property("table", ""))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the salesforce destination config (required)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "CSV file to upsert (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVar(&table, "table", "", "Salesforce object (overrides the table property)")
	cmd.Flags().StringVar(&externalID, "external-id", "", "External id field used to match rows")
	return cmd
}

// writeFrame writes f to path with the file destination matching the
// path's extension. A trailing .gz, .zst or .lz4 selects the compression.
func writeFrame(ctx context.Context, f *frame.Frame, path string) error {
	format, err := formats.FormatFromPath(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConfig, "cannot derive a file format from %s", path)
	}

	cfg := config.NewBaseConfig(f.Name, string(format))
	cfg.Properties["path"] = path
	cfg.Properties["format"] = string(format)
	if ext := filepath.Ext(path); ext != format.Extension() {
		cfg.Properties["compression"] = strings.TrimPrefix(ext, ".")
	}

	dest := file.NewFileDestination(f.Name, format)
	if err := dest.Initialize(ctx, cfg); err != nil {
		return err
	}
	defer dest.Close(ctx)
	if err := dest.CreateSchema(ctx, f.Schema()); err != nil {
		return err
	}
	return dest.Write(ctx, f.Stream(ctx, 0))
}
