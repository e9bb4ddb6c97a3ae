package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations/objectstore"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-connectors/pkg/connector/sources/outlook"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/flows"
	"github.com/ajitpratap0/nebula-connectors/pkg/logger"
)

type outlookFlags struct {
	Config       string
	Output       string
	IfExists     string
	RulesFile    string
	UploadConfig string
	UploadKey    string
}

func newOutlookCommand(global *globalFlags) *cobra.Command {
	flags := &outlookFlags{}
	cmd := &cobra.Command{
		Use:   "outlook",
		Short: "Extract mailboxes into a CSV or Parquet file, optionally uploading it",
		Long: `Extract one or more Outlook mailboxes into a single file.

The config is an outlook source config; the mailboxes property holds a comma
separated mailbox list. Mailboxes without messages in the window are skipped.

Example:
  nebula-connectors outlook --config outlook.yaml --output out/mail.parquet \
    --rules rules.yaml --upload s3.yaml --upload-key raw/outlook/mail.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutlook(cmd, global, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.Config, "config", "c", "", "Path to the outlook source config (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "Local .csv or .parquet file (default: local_file_path property)")
	cmd.Flags().StringVar(&flags.IfExists, "if-exists", "", "replace or append (csv only)")
	cmd.Flags().StringVar(&flags.RulesFile, "rules", "", "YAML file with frame rules, e.g. column_list_to_match")
	cmd.Flags().StringVar(&flags.UploadConfig, "upload", "", "s3 or gcs destination config used to upload the file")
	cmd.Flags().StringVar(&flags.UploadKey, "upload-key", "", "Object key of the upload (default: upload_key property or the file name)")
	return cmd
}

func runOutlook(cmd *cobra.Command, global *globalFlags, flags *outlookFlags) error {
	cfg, err := loadConnectorConfig(flags.Config, global)
	if err != nil {
		return err
	}
	mailboxes := cfg.ListProperty("mailboxes", nil)
	if len(mailboxes) == 0 {
		mailboxes = cfg.ListProperty("mailbox", nil)
	}
	if len(mailboxes) == 0 {
		return errors.New(errors.ErrorTypeConfig, "mailboxes property is required")
	}
	// The source validates one mailbox; the flow iterates over all of them.
	cfg.Properties["mailbox"] = mailboxes[0]

	localPath := flags.Output
	if localPath == "" {
		localPath = cfg.Property("local_file_path", "")
	}
	ifExists := flags.IfExists
	if ifExists == "" {
		ifExists = cfg.Property("if_exists", flows.IfExistsReplace)
	}

	var rules map[string]interface{}
	if flags.RulesFile != "" {
		if err := config.Load(flags.RulesFile, &rules); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load frame rules")
		}
	}

	ctx, cancel := commandContext(cmd, global)
	defer cancel()

	source, err := outlook.NewOutlookSource(cfg.Name, cfg)
	if err != nil {
		return err
	}
	if err := source.Initialize(ctx, cfg); err != nil {
		return err
	}
	defer source.Close(ctx)

	log := logger.With(zap.String("component", "outlook_to_storage"))
	opts := []flows.FlowOption{flows.WithFlowLogger(log)}
	if flags.UploadConfig != "" {
		uploader, closeUploader, err := openUploader(ctx, global, flags.UploadConfig)
		if err != nil {
			return err
		}
		defer closeUploader()
		key := flags.UploadKey
		if key == "" {
			key = cfg.Property("upload_key", "")
		}
		opts = append(opts, flows.WithUploader(uploader, key))
	}

	flow, err := flows.NewOutlookToStorage(flows.OutlookToStorageConfig{
		Name:       cfg.Name,
		Mailboxes:  mailboxes,
		Request:    source.Request(),
		Validation: rules,
		LocalPath:  localPath,
		IfExists:   ifExists,
	}, source.Extractor(), opts...)
	if err != nil {
		return err
	}

	res, err := flow.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mailboxes extracted: %d, skipped: %d, rows: %d\n", len(res.Extracted), len(res.Skipped), res.Rows)
	if res.LocalPath != "" {
		fmt.Fprintf(out, "written: %s\n", res.LocalPath)
	}
	if res.Location != "" {
		fmt.Fprintf(out, "uploaded: %s\n", res.Location)
	}
	return nil
}

// openUploader creates and initializes the object storage destination named
// by the config at path.
func openUploader(ctx context.Context, global *globalFlags, path string) (objectstore.Uploader, func(), error) {
	cfg, err := loadConnectorConfig(path, global)
	if err != nil {
		return nil, nil, err
	}
	dest, err := registry.CreateDestination(cfg.Type, cfg)
	if err != nil {
		return nil, nil, err
	}
	uploader, ok := dest.(objectstore.Uploader)
	if !ok {
		return nil, nil, errors.Newf(errors.ErrorTypeConfig, "destination %s cannot upload files", cfg.Type)
	}
	if err := dest.Initialize(ctx, cfg); err != nil {
		return nil, nil, err
	}
	return uploader, func() { _ = dest.Close(ctx) }, nil
}
