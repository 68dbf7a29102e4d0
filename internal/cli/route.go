package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/modelops/internal/monitoring"
	"github.com/roach88/modelops/internal/predictor"
	"github.com/roach88/modelops/internal/router"
)

// RouteDecision is one routed request. Category and Confidence are set only
// when a record was scored.
type RouteDecision struct {
	RequestID    string   `json:"request_id"`
	ModelAlias   string   `json:"model_alias"`
	ModelVersion string   `json:"model_version"`
	CanaryUsed   bool     `json:"canary_used"`
	Category     string   `json:"category,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

func (d RouteDecision) String() string {
	target := "primary"
	if d.CanaryUsed {
		target = "canary"
	}
	s := fmt.Sprintf("%s -> %s %s (%s)", d.RequestID, d.ModelAlias, d.ModelVersion, target)
	if d.Confidence != nil {
		s += fmt.Sprintf(" %s %.2f", d.Category, *d.Confidence)
	}
	return s
}

// RouteListing is the output of route.
type RouteListing []RouteDecision

func (l RouteListing) String() string {
	lines := make([]string, len(l))
	for i, d := range l {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

type routeFlags struct {
	title       string
	description string
	brand       string
	price       float64
}

// NewRouteCommand creates the route command.
func NewRouteCommand(rootOpts *RootOptions) *cobra.Command {
	rf := &routeFlags{}

	cmd := &cobra.Command{
		Use:   "route [request-id...]",
		Short: "Show which model serves each request id, optionally scoring a record",
		Long: `Resolve the primary and canary handles from configuration and route each
request id between them. The same id always routes the same way.

With no ids a fresh UUIDv7 request id is minted. When any record flag is
given, the record is scored by the chosen model and the prediction is
appended to the inference event log.

Example:
  CANARY_ALIAS=canary CANARY_PERCENT=10 mlp route req-1 req-2
  mlp route --title "oak sofa" --price 899`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(rootOpts, rf, cmd, args)
		},
	}

	cmd.Flags().StringVar(&rf.title, "title", "", "product title")
	cmd.Flags().StringVar(&rf.description, "description", "", "product description")
	cmd.Flags().StringVar(&rf.brand, "brand", "", "product brand")
	cmd.Flags().Float64Var(&rf.price, "price", 0, "product price")

	return cmd
}

// record builds the record from the flags that were set, or nil when none was.
func (rf *routeFlags) record(cmd *cobra.Command) *predictor.Record {
	var rec predictor.Record
	set := false
	for name, dst := range map[string]**string{"title": &rec.Title, "description": &rec.Description, "brand": &rec.Brand} {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetString(name)
			*dst = &v
			set = true
		}
	}
	if cmd.Flags().Changed("price") {
		p := rf.price
		rec.Price = &p
		set = true
	}
	if !set {
		return nil
	}
	return &rec
}

func runRoute(opts *RootOptions, rf *routeFlags, cmd *cobra.Command, ids []string) error {
	f := opts.formatter(cmd)
	a, err := opts.open(cmd)
	if err != nil {
		return f.Fail(err)
	}
	defer a.Close()

	r, err := router.New(a.cfg, a.reg, nil)
	if err != nil {
		return f.Fail(err)
	}

	if len(ids) == 0 {
		gen := opts.RequestIDs
		if gen == nil {
			gen = router.UUIDv7Generator{}
		}
		ids = []string{gen.NewID()}
	}

	rec := rf.record(cmd)
	var events *monitoring.EventLog
	if rec != nil {
		if events, err = monitoring.OpenEventLog(a.cfg.LogsFile); err != nil {
			return f.Fail(err)
		}
		defer events.Close()
	}

	out := make(RouteListing, 0, len(ids))
	for _, id := range ids {
		if rec == nil {
			h, canary := r.ChooseHandle(id)
			out = append(out, RouteDecision{RequestID: id, ModelAlias: h.Alias, ModelVersion: h.Version, CanaryUsed: canary})
			continue
		}
		res, err := r.Predict(id, *rec)
		if err != nil {
			return f.Fail(err)
		}
		conf := res.Confidence
		out = append(out, RouteDecision{
			RequestID:    id,
			ModelAlias:   res.ModelAlias,
			ModelVersion: res.ModelVersion,
			CanaryUsed:   res.CanaryUsed,
			Category:     res.Category,
			Confidence:   &conf,
		})
		events.Logger().Info(monitoring.EventPredict,
			"request_id", id, "input", rec,
			"model_alias", res.ModelAlias, "model_version", res.ModelVersion,
			"category", res.Category, "confidence", res.Confidence, "canary_used", res.CanaryUsed)
	}
	return f.Success(out)
}
