// Package predictor loads servable models from registry artifact directories.
//
// The only backend this build can execute is the keyword rule set stored in
// rule_based.json. Directories that hold only a pickled pipeline (model.pkl)
// are reported as Unsupported rather than silently served by something else.
package predictor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/fsutil"
)

// Artifact file names inside a version directory.
const (
	RuleFile     = "rule_based.json"
	PipelineFile = "model.pkl"
	ManifestFile = "training_manifest.json"
	MetricsFile  = "metrics.json"
)

// Unregistered is the placeholder version some training runs write before a
// model is registered. It never names a real version.
const Unregistered = "unregistered"

// Record is one product to classify. Every field is optional.
type Record struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Brand       *string  `json:"brand,omitempty"`
}

// Field limits for Validate.
const (
	maxTitle       = 256
	maxDescription = 1024
	maxBrand       = 128
)

// Validate checks field lengths and a non-negative price.
func (r Record) Validate() error {
	const op = "predictor.validate"
	check := func(field string, v *string, limit int) error {
		if v != nil && utf8.RuneCountInString(*v) > limit {
			return fault.Newf(fault.InvalidArgument, op, "%s exceeds %d characters", field, limit)
		}
		return nil
	}
	if err := check("title", r.Title, maxTitle); err != nil {
		return err
	}
	if err := check("description", r.Description, maxDescription); err != nil {
		return err
	}
	if err := check("brand", r.Brand, maxBrand); err != nil {
		return err
	}
	if r.Price != nil && *r.Price < 0 {
		return fault.New(fault.InvalidArgument, op, "price must be >= 0")
	}
	return nil
}

// Prediction is a classifier output.
type Prediction struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// BaselineStats summarizes the training data for drift comparison.
type BaselineStats struct {
	PriceBins      []float64 `json:"price_bins,omitempty"`
	PriceHist      []float64 `json:"price_hist,omitempty"`
	TextLengthMean *float64  `json:"text_length_mean,omitempty"`
}

// Manifest is training_manifest.json. Every field may be absent.
type Manifest struct {
	ModelVersion  string             `json:"model_version,omitempty"`
	CreatedAt     string             `json:"created_at,omitempty"`
	DatasetPath   string             `json:"dataset_path,omitempty"`
	DatasetHash   string             `json:"dataset_hash,omitempty"`
	Hyperparams   map[string]any     `json:"hyperparams,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	BaselineStats BaselineStats      `json:"baseline_stats"`
}

// Predictor classifies records. Implementations are immutable after Load and
// safe for concurrent use.
type Predictor interface {
	PredictOne(rec Record) (Prediction, error)
	Manifest() Manifest
	Metrics() map[string]float64
	Version() string
}

// Load opens the model stored in dir.
//
// rule_based.json wins when present. A directory with only model.pkl fails
// Unsupported; one with neither fails ArtifactMissing.
func Load(dir string) (Predictor, error) {
	const op = "predictor.load"

	if !fsutil.IsDir(dir) {
		return nil, fault.Newf(fault.ArtifactMissing, op, "model directory missing: %s", dir).With("dir", dir)
	}

	var rules RuleSet
	switch err := fsutil.ReadJSON(filepath.Join(dir, RuleFile), &rules); {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		if _, statErr := os.Stat(filepath.Join(dir, PipelineFile)); statErr == nil {
			return nil, fault.Newf(fault.Unsupported, op, "%s requires a Python runtime; provide %s", PipelineFile, RuleFile).
				With("dir", dir)
		}
		return nil, fault.Newf(fault.ArtifactMissing, op, "missing model artifacts: provide %s", RuleFile).
			With("dir", dir)
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var manifest Manifest
	if err := readOptional(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics := map[string]float64{}
	if err := readOptional(filepath.Join(dir, MetricsFile), &metrics); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	version := manifest.ModelVersion
	if version == "" {
		version = rules.ModelVersion
	}
	if version == "" {
		version = filepath.Base(dir)
	}

	return &RuleBased{
		rules:    rules.normalized(),
		manifest: manifest,
		metrics:  metrics,
		version:  version,
	}, nil
}

func readOptional(path string, dst any) error {
	err := fsutil.ReadJSON(path, dst)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
