package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// DAGListing maps DAG names to task names in execution order.
type DAGListing struct {
	names []string
	tasks map[string][]string
}

func (l DAGListing) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.tasks)
}

func (l DAGListing) String() string {
	lines := make([]string, 0, len(l.names))
	for _, n := range l.names {
		lines = append(lines, fmt.Sprintf("%s: %s", n, strings.Join(l.tasks[n], ", ")))
	}
	return strings.Join(lines, "\n")
}

// JobRun is the output of schedule run.
type JobRun struct {
	JobID  string `json:"job_id"`
	DAG    string `json:"dag_name"`
	Status string `json:"status"`
}

func (r JobRun) String() string {
	return fmt.Sprintf("%s %s (%s)", r.JobID, r.Status, r.DAG)
}

// NewScheduleCommand creates the schedule command group.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "List and run registered DAGs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered DAGs and their tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.open(cmd)
			if err != nil {
				return f.Fail(err)
			}
			defer a.Close()

			s, err := a.scheduler(rootOpts)
			if err != nil {
				return f.Fail(err)
			}
			return f.Success(DAGListing{names: s.Names(), tasks: s.ListDAGs()})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <dag>",
		Short: "Run a DAG now as a tracked job",
		Long: `Run a DAG synchronously as a new job.

The job record moves queued -> running -> success|failed. A failed run
prints the job id and exits 1; an unknown DAG exits 2 without creating a job.

Example:
  mlp schedule run nightly
  mlp schedule run daily_batch --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(rootOpts, cmd, args[0])
		},
	})

	return cmd
}

func runSchedule(opts *RootOptions, cmd *cobra.Command, name string) error {
	f := opts.formatter(cmd)
	a, err := opts.open(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	s, err := a.scheduler(opts)
	if err != nil {
		return f.Fail(err)
	}

	jobID, runErr := s.Run(cmd.Context(), name)
	if runErr != nil {
		if jobID == "" {
			return f.Fail(runErr)
		}
		code := ErrorCode(runErr)
		if f.Format == "json" {
			_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
				Status: "error",
				JobID:  jobID,
				Error:  &CLIError{Code: code, Message: runErr.Error()},
			})
		} else {
			fmt.Fprintf(f.Writer, "%s failed (%s)\n", jobID, name)
			fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, runErr.Error())
		}
		return WrapExitError(ExitFailure, code, runErr)
	}

	return f.Success(JobRun{JobID: jobID, DAG: name, Status: "success"})
}
