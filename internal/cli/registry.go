package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/registry"
)

// RegistryListing is the output of registry list.
type RegistryListing struct {
	Versions []string          `json:"versions"`
	Latest   string            `json:"latest,omitempty"`
	Aliases  map[string]string `json:"aliases"`
}

func (l RegistryListing) String() string {
	var b strings.Builder
	b.WriteString("versions:\n")
	if len(l.Versions) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, v := range l.Versions {
		if v == l.Latest {
			fmt.Fprintf(&b, "  %s (latest)\n", v)
			continue
		}
		fmt.Fprintf(&b, "  %s\n", v)
	}
	b.WriteString("aliases:")
	if len(l.Aliases) == 0 {
		b.WriteString("\n  (none)")
	}
	names := make([]string, 0, len(l.Aliases))
	for n := range l.Aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "\n  %s -> %s", n, l.Aliases[n])
	}
	return b.String()
}

// AliasChange is the output of every command that moves an alias.
type AliasChange struct {
	Alias   string `json:"alias"`
	Version string `json:"version"`
}

func (c AliasChange) String() string {
	return fmt.Sprintf("%s -> %s", c.Alias, c.Version)
}

// Registration is the output of registry register.
type Registration struct {
	Version string `json:"version"`
}

func (r Registration) String() string {
	return "registered " + r.Version
}

type aliasHistory registry.AliasState

func (h aliasHistory) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "alias: %s\ncurrent: %s\nupdated_at: %s\nhistory:", h.Alias, h.Current, h.UpdatedAt)
	for i, v := range h.History {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, v)
	}
	return b.String()
}

// NewRegistryCommand creates the registry command group.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage registered model versions and aliases",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered versions and aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(rootOpts, cmd, func(reg *registry.Registry) (any, error) {
				versions, err := reg.ListVersions()
				if err != nil {
					return nil, err
				}
				aliases, err := reg.ListAliases()
				if err != nil {
					return nil, err
				}
				out := RegistryListing{Versions: versions, Aliases: aliases}
				if out.Versions == nil {
					out.Versions = []string{}
				}
				if latest, err := reg.LatestVersion(); err == nil {
					out.Latest = latest
				} else if !fault.Is(err, fault.NotFound) {
					return nil, err
				}
				return out, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "register <source-dir>",
		Short: "Copy a model directory into the registry as a new version",
		Long: `Copy a model directory into the registry as a new version.

The version id is derived from the current UTC time and the latest pointer
moves to it. Aliases are not touched.

Example:
  mlp registry register ./artifacts/model`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(rootOpts, cmd, func(reg *registry.Registry) (any, error) {
				v, err := reg.Register(args[0])
				return Registration{Version: v}, err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "promote <source-ref> <alias>",
		Short: "Point an alias at whatever a reference resolves to now",
		Long: `Point an alias at whatever a reference resolves to now.

Example:
  mlp registry promote latest stable
  mlp registry promote canary stable`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(rootOpts, cmd, func(reg *registry.Registry) (any, error) {
				v, err := reg.Promote(args[0], args[1])
				return AliasChange{Alias: args[1], Version: v}, err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-alias <alias> <ref>",
		Short: "Point an alias at a version, alias or latest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(rootOpts, cmd, func(reg *registry.Registry) (any, error) {
				v, err := reg.SetAlias(args[0], args[1])
				return AliasChange{Alias: args[0], Version: v}, err
			})
		},
	})

	var steps int
	rollback := &cobra.Command{
		Use:   "rollback <alias>",
		Short: "Re-point an alias at an earlier version from its history",
		Long: `Re-point an alias at the version it held --steps assignments ago.

The rollback is itself recorded in the alias history, so rolling back twice
returns to where you started.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(rootOpts, cmd, func(reg *registry.Registry) (any, error) {
				v, err := reg.Rollback(args[0], steps)
				return AliasChange{Alias: args[0], Version: v}, err
			})
		},
	}
	rollback.Flags().IntVar(&steps, "steps", 1, "number of assignments to go back")
	cmd.AddCommand(rollback)

	cmd.AddCommand(&cobra.Command{
		Use:   "history <alias>",
		Short: "Show an alias and its assignment history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(rootOpts, cmd, func(reg *registry.Registry) (any, error) {
				st, err := reg.Alias(args[0])
				if err != nil {
					return nil, err
				}
				if rootOpts.Format == "json" {
					return st, nil
				}
				return aliasHistory(st), nil
			})
		},
	})

	return cmd
}

// withRegistry runs fn against the configured registry and reports its
// result or error.
func withRegistry(opts *RootOptions, cmd *cobra.Command, fn func(*registry.Registry) (any, error)) error {
	f := opts.formatter(cmd)
	a, err := opts.open(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	out, err := fn(a.reg)
	if err != nil {
		return f.Fail(err)
	}
	return f.Success(out)
}
