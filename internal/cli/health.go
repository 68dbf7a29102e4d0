package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modelops/internal/monitoring"
	"github.com/roach88/modelops/internal/router"
)

// HealthReport combines the registry probe with the serving bindings.
type HealthReport struct {
	monitoring.Health
	Serving *router.Metadata `json:"serving,omitempty"`
}

func (h HealthReport) String() string {
	var b strings.Builder
	latest := "none"
	if h.LatestVersion != nil {
		latest = *h.LatestVersion
	}
	fmt.Fprintf(&b, "status: %s\nregistry_available: %t\nmodel_loaded: %t\nlatest_version: %s",
		h.Status, h.RegistryAvailable, h.ModelLoaded, latest)
	if h.Serving != nil {
		fmt.Fprintf(&b, "\nprimary: %s %s", h.Serving.Primary.Alias, h.Serving.Primary.Version)
		if c := h.Serving.Canary; c != nil && c.Percent != nil {
			fmt.Fprintf(&b, "\ncanary: %s %s (%d%%)", c.Alias, c.Version, *c.Percent)
		}
	}
	return b.String()
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report registry readiness and the serving configuration",
		Long: `Report whether the latest registered version has artifacts on disk and,
when the router can be built, which versions the primary and canary serve.

Health never fails: a missing model is reported as "degraded".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			a, err := rootOpts.open(cmd)
			if err != nil {
				return f.Fail(err)
			}
			defer a.Close()

			report := HealthReport{Health: monitoring.Probe(a.reg)}
			if r, err := router.New(a.cfg, a.reg, nil); err == nil {
				md := r.Metadata()
				report.Serving = &md
			} else {
				a.logger.Warn("router unavailable", "error", err)
			}
			return f.Success(report)
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mlp version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if rootOpts.Format == "json" {
				return f.Success(map[string]string{"version": Version, "go": runtime.Version()})
			}
			return f.Success("mlp " + Version)
		},
	}
}
