package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modelops/internal/batch"
	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/config"
	"github.com/roach88/modelops/internal/router"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Lookup overrides environment access (for testing).
	// If nil, defaults to os.LookupEnv.
	Lookup config.LookupFunc

	// Clock overrides the wall clock used for version ids, job ids and
	// report timestamps (for testing).
	Clock clock.Clock

	// RequestIDs overrides request id generation for route (for testing).
	RequestIDs router.IDGenerator

	// RunnerOptions are appended to every batch runner (for testing).
	RunnerOptions []batch.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mlp CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mlp",
		Short: "mlp - model registry, scheduler and traffic router",
		Long: `Operate a small ML platform from the command line.

Register and promote model versions, run maintenance DAGs as tracked jobs,
inspect job history, route requests between primary and canary models and
score JSONL files offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file (default $MLP_CONFIG)")

	cmd.AddCommand(NewRegistryCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewRouteCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// newLogger builds the operator logger. Logs go to w so they never corrupt
// JSON output on stdout.
func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
