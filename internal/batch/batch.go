// Package batch scores a JSONL file of product records offline.
package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/config"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/fsutil"
	"github.com/roach88/modelops/internal/monitoring"
	"github.com/roach88/modelops/internal/predictor"
	"github.com/roach88/modelops/internal/registry"
)

// LocalRef selects the unregistered working model in cfg.ModelDir.
const LocalRef = "local"

// IDGenerator mints per-record request ids.
type IDGenerator interface {
	NewID() string
}

type uuidV4 struct{}

func (uuidV4) NewID() string { return uuid.NewString() }

// Options selects the input, output and model for one run.
type Options struct {
	Input  string
	Output string

	// Reference is a registry reference, LocalRef, or empty for the
	// registry's preferred serving alias.
	Reference string
}

// Summary reports what a run did.
type Summary struct {
	OutputPath   string             `json:"output_path"`
	ModelAlias   string             `json:"model_alias"`
	ModelVersion string             `json:"model_version"`
	Processed    int                `json:"processed"`
	Succeeded    int                `json:"succeeded"`
	Failed       int                `json:"failed"`
	Drift        *monitoring.Report `json:"drift,omitempty"`
}

// Runner executes batch scoring runs.
type Runner struct {
	cfg    *config.Config
	reg    *registry.Registry
	load   func(dir string) (predictor.Predictor, error)
	ids    IDGenerator
	clock  clock.Clock
	events *slog.Logger
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithIDGenerator overrides request id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runner) { r.ids = g }
}

// WithClock overrides the clock used for drift report timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithEventLogger sends prediction events to l instead of cfg.LogsFile.
func WithEventLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.events = l }
}

// WithLogger sets the operator logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithLoader overrides how model directories are opened.
func WithLoader(load func(dir string) (predictor.Predictor, error)) Option {
	return func(r *Runner) { r.load = load }
}

// NewRunner creates a Runner.
func NewRunner(cfg *config.Config, reg *registry.Registry, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		reg:    reg,
		load:   predictor.Load,
		ids:    uuidV4{},
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type resultLine struct {
	RequestID    string          `json:"request_id"`
	Status       string          `json:"status"`
	Input        json.RawMessage `json:"input"`
	Output       *outputPayload  `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	ModelAlias   string          `json:"model_alias,omitempty"`
	ModelVersion string          `json:"model_version,omitempty"`
}

type outputPayload struct {
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	ModelAlias   string  `json:"model_alias"`
	ModelVersion string  `json:"model_version"`
}

// Run scores every record in opts.Input and writes one result line per
// record to opts.Output. A record that fails prediction is written as an
// error line and counted; it does not stop the run. When any record was
// processed, drift against the model's baseline is evaluated and reported.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	const op = "batch.run"

	dir, alias, version, err := r.resolve(opts.Reference)
	if err != nil {
		return Summary{}, err
	}
	p, err := r.load(dir)
	if err != nil {
		return Summary{}, err
	}

	inputs, err := readRecords(opts.Input)
	if err != nil {
		return Summary{}, err
	}

	events := r.events
	if events == nil {
		log, err := monitoring.OpenEventLog(r.cfg.LogsFile)
		if err != nil {
			return Summary{}, fmt.Errorf("%s: %w", op, err)
		}
		defer log.Close()
		events = log.Logger()
	}

	sum := Summary{OutputPath: opts.Output, ModelAlias: alias, ModelVersion: version}
	var (
		out     bytes.Buffer
		records []predictor.Record
	)
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return Summary{}, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, in.rec)
		id := r.ids.NewID()

		line := resultLine{RequestID: id, Input: in.raw}
		pred, err := p.PredictOne(in.rec)
		if err != nil {
			sum.Failed++
			line.Status = "error"
			line.Error = err.Error()
			line.ModelAlias = alias
			line.ModelVersion = version
			events.Error(monitoring.EventBatchPredictError,
				"request_id", id, "input", in.rec, "error", err.Error(),
				"model_alias", alias, "model_version", version)
		} else {
			sum.Succeeded++
			line.Status = "ok"
			line.Output = &outputPayload{
				Category:     pred.Category,
				Confidence:   pred.Confidence,
				ModelAlias:   alias,
				ModelVersion: version,
			}
			events.Info(monitoring.EventBatchPredict,
				"request_id", id, "input", in.rec,
				"model_alias", alias, "model_version", version,
				"category", pred.Category, "confidence", pred.Confidence)
		}
		if err := enc.Encode(line); err != nil {
			return Summary{}, fmt.Errorf("%s: encode result: %w", op, err)
		}
	}
	sum.Processed = sum.Succeeded + sum.Failed

	if err := os.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
		return Summary{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := fsutil.WriteFileAtomic(opts.Output, out.Bytes(), 0o644); err != nil {
		return Summary{}, fmt.Errorf("%s: write output: %w", op, err)
	}

	if len(records) > 0 {
		monitor := monitoring.NewDriftMonitor(p.Manifest().BaselineStats, r.cfg.DriftReport, r.clock)
		report, err := monitor.Evaluate(records)
		if err != nil {
			return Summary{}, fmt.Errorf("%s: %w", op, err)
		}
		sum.Drift = &report
	}

	r.logger.Info("batch complete",
		"output", opts.Output, "model_version", version,
		"processed", sum.Processed, "failed", sum.Failed)
	return sum, nil
}

// resolve maps a reference to a model directory, alias label and version.
func (r *Runner) resolve(ref string) (dir, alias, version string, err error) {
	if ref == LocalRef {
		return r.cfg.ModelDir, LocalRef, LocalRef, nil
	}
	if ref == "" || ref == registry.LatestRef {
		if ref, err = r.reg.PreferredServingAlias(); err != nil {
			return "", "", "", err
		}
	}
	if dir, err = r.reg.ResolvePath(ref); err != nil {
		return "", "", "", err
	}
	if version, err = r.reg.ResolveReference(ref); err != nil {
		return "", "", "", err
	}
	return dir, ref, version, nil
}

type input struct {
	raw json.RawMessage
	rec predictor.Record
}

// readRecords parses a JSONL file. Blank lines are skipped; a line that is
// not a JSON object fails the whole read with InvalidArgument.
func readRecords(path string) ([]input, error) {
	const op = "batch.read_input"

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.Newf(fault.NotFound, op, "batch input not found: %s", path).With("path", path)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	var out []input
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec predictor.Record
		if line[0] != '{' || json.Unmarshal(line, &rec) != nil {
			return nil, fault.Newf(fault.InvalidArgument, op, "line %d is not a JSON object", n).With("path", path)
		}
		out = append(out, input{raw: append(json.RawMessage(nil), line...), rec: rec})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ReadRecords parses a JSONL file of product records.
func ReadRecords(path string) ([]predictor.Record, error) {
	inputs, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	out := make([]predictor.Record, len(inputs))
	for i, in := range inputs {
		out[i] = in.rec
	}
	return out, nil
}
