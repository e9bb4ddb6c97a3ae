package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-connectors/internal/pipeline"
	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/logger"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
)

type runFlags struct {
	SourceConfig string
	DestConfig   string
	BatchSize    int
	BufferSize   int
	Where        map[string]string
	Cast         map[string]string
	Rename       map[string]string
	Drop         []string
}

func newRunCommand(global *globalFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a source to destination pipeline",
		Long: `Run a data pipeline with the specified source and destination configurations.
Configuration files are YAML documents holding the connector settings;
${VAR} references are replaced from the environment.

Example:
  nebula-connectors run --source outlook.yaml --destination postgres.yaml \
    --where mailbox=ops@example.com --cast size=int \
    --rename "conversation ID=conversation_id" --drop _nebula_source

Filters and casts see the source field names; renames and drops run after them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, global, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.SourceConfig, "source", "s", "", "Path to source configuration YAML file (required)")
	cmd.Flags().StringVarP(&flags.DestConfig, "destination", "d", "", "Path to destination configuration YAML file (required)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("destination")
	cmd.Flags().IntVar(&flags.BatchSize, "batch-size", 0, "Override performance.batch_size of both connectors")
	cmd.Flags().IntVar(&flags.BufferSize, "buffer-size", 1000, "Records buffered between source and destination")
	cmd.Flags().StringToStringVar(&flags.Where, "where", nil, "Keep records whose field equals value, as field=value pairs")
	cmd.Flags().StringToStringVar(&flags.Cast, "cast", nil, "Convert fields to int, float, bool or string, as field=type pairs")
	cmd.Flags().StringToStringVar(&flags.Rename, "rename", nil, "Rename fields, as old=new pairs")
	cmd.Flags().StringSliceVar(&flags.Drop, "drop", nil, "Fields to drop before writing")
	return cmd
}

// loadConnectorConfig loads a connector config and points it at the global
// credentials file unless it names its own.
func loadConnectorConfig(path string, global *globalFlags) (*config.BaseConfig, error) {
	cfg, err := config.LoadBaseConfig(path)
	if err != nil {
		return nil, err
	}
	if global.CredentialsFile != "" && cfg.Property("credentials_file", "") == "" {
		cfg.Properties["credentials_file"] = global.CredentialsFile
	}
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, global *globalFlags, flags *runFlags) error {
	sourceConfig, err := loadConnectorConfig(flags.SourceConfig, global)
	if err != nil {
		return fmt.Errorf("source configuration error: %w", err)
	}
	destConfig, err := loadConnectorConfig(flags.DestConfig, global)
	if err != nil {
		return fmt.Errorf("destination configuration error: %w", err)
	}
	casts := make([]pipeline.Transform, 0, len(flags.Cast))
	for field, kind := range flags.Cast {
		convert, err := converterFor(kind)
		if err != nil {
			return errors.Wrapf(err, errors.ErrorTypeConfig, "invalid --cast for field %s", field)
		}
		casts = append(casts, pipeline.TypeConverterTransform(field, convert))
	}
	if flags.BatchSize > 0 {
		sourceConfig.Performance.BatchSize = flags.BatchSize
		destConfig.Performance.BatchSize = flags.BatchSize
	}

	log := logger.Get().With(
		zap.String("component", "nebula-cli"),
		zap.String("source", sourceConfig.Type),
		zap.String("destination", destConfig.Type),
	)

	source, err := registry.CreateSource(sourceConfig.Type, sourceConfig)
	if err != nil {
		return fmt.Errorf("failed to create source connector '%s': %w", sourceConfig.Type, err)
	}
	destination, err := registry.CreateDestination(destConfig.Type, destConfig)
	if err != nil {
		return fmt.Errorf("failed to create destination connector '%s': %w", destConfig.Type, err)
	}

	ctx, cancel := commandContext(cmd, global)
	defer cancel()

	if err := source.Initialize(ctx, sourceConfig); err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}
	defer func() {
		if err := source.Close(ctx); err != nil {
			log.Warn("failed to close source", zap.Error(err))
		}
	}()
	if err := destination.Initialize(ctx, destConfig); err != nil {
		return fmt.Errorf("failed to initialize destination: %w", err)
	}
	defer func() {
		if err := destination.Close(ctx); err != nil {
			log.Warn("failed to close destination", zap.Error(err))
		}
	}()

	p := pipeline.NewSimplePipeline(source, destination, &pipeline.Config{
		Name:       sourceConfig.Name + "_to_" + destConfig.Name,
		BufferSize: flags.BufferSize,
	}, log)
	if len(flags.Where) > 0 {
		p.AddTransform(pipeline.FilterTransform(matchAll(flags.Where)))
	}
	for _, cast := range casts {
		p.AddTransform(cast)
	}
	if len(flags.Rename) > 0 {
		p.AddTransform(pipeline.FieldMapperTransform(flags.Rename))
		p.AddSchemaRewriter(pipeline.RenameSchemaFields(flags.Rename))
	}
	if len(flags.Drop) > 0 {
		p.AddTransform(pipeline.DropFieldsTransform(flags.Drop...))
		p.AddSchemaRewriter(pipeline.DropSchemaFields(flags.Drop...))
	}

	res, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "records read: %d, written: %d, filtered: %d in %s\n",
		res.RecordsRead, res.RecordsWritten, res.RecordsFiltered, res.Duration.Round(time.Millisecond))
	return nil
}

// matchAll accepts records whose fields all print as the wanted values.
func matchAll(want map[string]string) func(*pool.Record) bool {
	return func(r *pool.Record) bool {
		for field, value := range want {
			got, ok := r.Data[field]
			if !ok || fmt.Sprint(got) != value {
				return false
			}
		}
		return true
	}
}

// converterFor parses values printed with fmt.Sprint into kind. Nil stays nil.
func converterFor(kind string) (func(interface{}) (interface{}, error), error) {
	var parse func(string) (interface{}, error)
	switch kind {
	case "int":
		parse = func(s string) (interface{}, error) { return strconv.ParseInt(s, 10, 64) }
	case "float":
		parse = func(s string) (interface{}, error) { return strconv.ParseFloat(s, 64) }
	case "bool":
		parse = func(s string) (interface{}, error) { return strconv.ParseBool(s) }
	case "string":
		parse = func(s string) (interface{}, error) { return s, nil }
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown type %q", kind)
	}
	return func(v interface{}) (interface{}, error) {
		if v == nil {
			return nil, nil
		}
		return parse(fmt.Sprint(v))
	}, nil
}
