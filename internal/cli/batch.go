package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modelops/internal/batch"
	"github.com/roach88/modelops/internal/pipelines"
	"github.com/roach88/modelops/internal/registry"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Input  string
	Output string
	Model  string
}

type batchSummary batch.Summary

func (s batchSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scored %d record(s) with %s %s: %d ok, %d failed\noutput: %s",
		s.Processed, s.ModelAlias, s.ModelVersion, s.Succeeded, s.Failed, s.OutputPath)
	if s.Drift != nil {
		fmt.Fprintf(&b, "\ndrift: price_psi=%.4f text_length_delta=%.4f", s.Drift.PricePSI, s.Drift.TextLengthDelta)
		if len(s.Drift.Alerts) > 0 {
			fmt.Fprintf(&b, " alerts=%s", strings.Join(s.Drift.Alerts, ","))
		}
	}
	return b.String()
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Score a JSONL file of product records",
		Long: `Score every record of a JSONL file and write one result line per record.

A record that fails validation is written as an error line and does not stop
the run. Drift against the model's baseline is evaluated afterwards.

--model accepts a version id, an alias, "latest" (the preferred serving
alias) or "local" (the working model directory).

Example:
  mlp batch --input data/sample_requests.jsonl --output outputs/batch/preds.jsonl
  mlp batch --model stable --input requests.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "input JSONL (default <data>/sample_requests.jsonl)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output JSONL (default <outputs>/batch/preds.jsonl)")
	cmd.Flags().StringVar(&opts.Model, "model", registry.LatestRef, "model reference")

	return cmd
}

func runBatch(opts *BatchOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	a, err := opts.open(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	input := opts.Input
	if input == "" {
		input = filepath.Join(a.cfg.DataDir, pipelines.SampleRequestsFile)
	}
	output := opts.Output
	if output == "" {
		output = filepath.Join(a.cfg.BatchOutputsDir, "preds.jsonl")
	}

	runOpts := append([]batch.Option{batch.WithClock(a.clock), batch.WithLogger(a.logger)}, opts.RunnerOptions...)
	sum, err := batch.NewRunner(a.cfg, a.reg, runOpts...).Run(cmd.Context(), batch.Options{
		Input:     input,
		Output:    output,
		Reference: opts.Model,
	})
	if err != nil {
		return f.Fail(err)
	}
	if opts.Format == "json" {
		return f.Success(sum)
	}
	return f.Success(batchSummary(sum))
}
