package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/ajitpratap0/nebula-connectors/pkg/frame"
	"github.com/ajitpratap0/nebula-connectors/pkg/logger"
	"github.com/ajitpratap0/nebula-connectors/pkg/validation"
)

type validateFlags struct {
	Input        string
	Expectations string
	ParamsFile   string
	RulesFile    string
}

func newValidateCommand(global *globalFlags) *cobra.Command {
	flags := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a CSV file against expectation suites and frame rules",
		Long: `Validate a CSV file against every expectation suite in a directory.
Results are stored under <project>/uncommitted/validations and the data docs
page is rebuilt, where <project> is the parent of the expectations directory.

Example:
  nebula-connectors validate --input mail.csv --expectations gx/expectations \
    --params params.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, global, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.Input, "input", "i", "", "CSV file to validate (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringVarP(&flags.Expectations, "expectations", "e", "", "Directory holding expectation suite JSON files")
	cmd.Flags().StringVar(&flags.ParamsFile, "params", "", "YAML file with evaluation parameters")
	cmd.Flags().StringVar(&flags.RulesFile, "rules", "", "YAML file with frame rules")
	return cmd
}

func runValidate(cmd *cobra.Command, global *globalFlags, flags *validateFlags) error {
	if flags.Expectations == "" && flags.RulesFile == "" {
		return errors.New(errors.ErrorTypeConfig, "either --expectations or --rules is required")
	}

	name := strings.TrimSuffix(filepath.Base(flags.Input), filepath.Ext(flags.Input))
	f, err := frame.ReadCSVFile(flags.Input, name)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if flags.RulesFile != "" {
		var rules map[string]interface{}
		if err := config.Load(flags.RulesFile, &rules); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load frame rules")
		}
		if err := validation.CheckFrame(f, rules); err != nil {
			return err
		}
		fmt.Fprintf(out, "frame rules passed: %d\n", len(rules))
	}

	if flags.Expectations == "" {
		return nil
	}

	var params map[string]interface{}
	if flags.ParamsFile != "" {
		if err := config.Load(flags.ParamsFile, &params); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load evaluation parameters")
		}
	}

	ctx, cancel := commandContext(cmd, global)
	defer cancel()

	task := validation.NewTask(flags.Expectations,
		validation.WithEvaluationParameters(params),
		validation.WithTaskLogger(logger.With(zap.String("component", "validation"))))
	result, err := task.Run(ctx, f)
	if result != nil {
		for _, r := range result.Results {
			fmt.Fprintf(out, "%s: %d/%d expectations passed\n",
				r.Suite, r.Statistics.SuccessfulExpectations, r.Statistics.EvaluatedExpectations)
		}
	}
	return err
}
