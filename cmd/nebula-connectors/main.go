package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-connectors/pkg/logger"
	"github.com/ajitpratap0/nebula-connectors/pkg/observability"

	// Import all available connectors to register them
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/destinations"
	_ "github.com/ajitpratap0/nebula-connectors/pkg/connector/sources"
)

var version = "0.1.0"

// globalFlags are shared by every command.
type globalFlags struct {
	LogLevel        string
	LogFormat       string
	CredentialsFile string
	Timeout         time.Duration
	MetricsAddr     string
	Trace           bool
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	flags := &globalFlags{}
	var shutdownTracing func(context.Context) error

	root := &cobra.Command{
		Use:   "nebula-connectors",
		Short: "Extract Outlook mailboxes and Salesforce objects, validate and store them",
		Long: `nebula-connectors extracts Outlook mailboxes through Microsoft Graph and
Salesforce objects through the REST API, validates the results against
expectation suites and writes them to files, object storage or PostgreSQL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: flags.LogLevel, Encoding: flags.LogFormat}); err != nil {
				return err
			}
			if flags.Trace {
				cfg := observability.DefaultTracingConfig()
				cfg.ServiceVersion = version
				shutdown, err := observability.Init(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				shutdownTracing = shutdown
			}
			if flags.MetricsAddr != "" {
				serveMetrics(flags.MetricsAddr)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdownTracing != nil {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.Warn("failed to flush traces", zap.Error(err))
				}
			}
			_ = logger.Sync()
			return nil
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.LogFormat, "log-format", "console", "Log encoding (console, json)")
	pf.StringVar(&flags.CredentialsFile, "credentials", "", "Credentials file used when a config has no inline credentials")
	pf.DurationVar(&flags.Timeout, "timeout", time.Hour, "Overall command timeout")
	pf.StringVar(&flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	pf.BoolVar(&flags.Trace, "trace", false, "Export trace spans to stderr")

	root.AddCommand(
		newVersionCommand(),
		newListCommand(),
		newRunCommand(flags),
		newOutlookCommand(flags),
		newSalesforceCommand(flags),
		newValidateCommand(flags),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "nebula-connectors v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Source Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Fprintf(out, "  - %s\n", source)
			}
			fmt.Fprintln(out, "\nAvailable Destination Connectors:")
			for _, dest := range registry.ListDestinations() {
				fmt.Fprintf(out, "  - %s\n", dest)
			}
		},
	}
}

// commandContext bounds a command by the global timeout and cancels it on
// SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command, flags *globalFlags) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	if flags.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, flags.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
}
