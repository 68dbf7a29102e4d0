package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modelops/internal/jobs"
)

// JobListing is the output of jobs list.
type JobListing []jobs.Record

func (l JobListing) String() string {
	if len(l) == 0 {
		return "no jobs"
	}
	lines := make([]string, 0, len(l))
	for _, r := range l {
		lines = append(lines, fmt.Sprintf("%-40s %-8s %s", r.JobID, r.Status, r.QueuedAt))
	}
	return strings.Join(lines, "\n")
}

// JobDetail is the output of jobs show.
type JobDetail jobs.Record

func (d JobDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "job_id: %s\ndag_name: %s\nstatus: %s\nqueued_at: %s", d.JobID, d.DAGName, d.Status, d.QueuedAt)
	if d.StartedAt != nil {
		fmt.Fprintf(&b, "\nstarted_at: %s", *d.StartedAt)
	}
	if d.FinishedAt != nil {
		fmt.Fprintf(&b, "\nfinished_at: %s", *d.FinishedAt)
	}
	if d.DurationMS != nil {
		fmt.Fprintf(&b, "\nduration_ms: %.3f", *d.DurationMS)
	}
	if d.Error != nil {
		fmt.Fprintf(&b, "\nerror: %s", *d.Error)
	}
	return b.String()
}

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect job records",
	}

	var (
		dagName string
		limit   int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(rootOpts, cmd, func(js *jobs.Store) (any, error) {
				var (
					recs []jobs.Record
					err  error
				)
				if dagName != "" {
					recs, err = js.ListDAGJobs(cmd.Context(), dagName, limit)
				} else {
					recs, err = js.ListJobs(cmd.Context(), limit)
				}
				if err != nil {
					return nil, err
				}
				if recs == nil {
					recs = []jobs.Record{}
				}
				return JobListing(recs), nil
			})
		},
	}
	list.Flags().StringVar(&dagName, "dag", "", "only jobs of this DAG")
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs (0 for all)")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(rootOpts, cmd, func(js *jobs.Store) (any, error) {
				rec, err := js.GetJob(cmd.Context(), args[0])
				if err != nil {
					return nil, err
				}
				if rootOpts.Format == "json" {
					return rec, nil
				}
				return JobDetail(rec), nil
			})
		},
	})

	return cmd
}

func withJobs(opts *RootOptions, cmd *cobra.Command, fn func(*jobs.Store) (any, error)) error {
	f := opts.formatter(cmd)
	a, err := opts.open(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	js, err := a.jobStore()
	if err != nil {
		return f.Fail(err)
	}
	out, err := fn(js)
	if err != nil {
		return f.Fail(err)
	}
	return f.Success(out)
}
