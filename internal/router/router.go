// Package router splits inference traffic between a primary model and an
// optional canary.
//
// Handles are resolved and loaded once in New and never change afterwards, so
// a Router is safe for unbounded concurrent use.
package router

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/modelops/internal/config"
	"github.com/roach88/modelops/internal/predictor"
	"github.com/roach88/modelops/internal/registry"
)

// PinnedAlias labels the primary handle when a version is pinned without
// an alias.
const PinnedAlias = "pinned"

// Handle binds an alias to a resolved version and its loaded predictor.
type Handle struct {
	Alias     string
	Version   string
	Predictor predictor.Predictor
}

// Loader opens the model stored in a version directory.
type Loader func(dir string) (predictor.Predictor, error)

// IDGenerator mints request ids for callers that arrive without one.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator mints time-ordered UUIDv7 request ids.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7 string.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Router chooses a handle per request.
type Router struct {
	primary Handle
	canary  *Handle
	percent int
}

// New resolves and loads the primary handle and, if cfg names a canary
// alias, the canary handle. A nil load uses predictor.Load.
//
// The primary reference is cfg.ModelVersion when set, else cfg.ModelAlias,
// else the registry's preferred serving alias. Resolution failures surface
// as NotFound or ArtifactMissing.
func New(cfg *config.Config, reg *registry.Registry, load Loader) (*Router, error) {
	if load == nil {
		load = predictor.Load
	}

	if _, err := reg.EnsureSeeded(cfg.SeedRegistryDir); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	var alias, ref string
	switch {
	case cfg.ModelVersion != "":
		ref = cfg.ModelVersion
		alias = cfg.ModelAlias
		if alias == "" {
			alias = PinnedAlias
		}
	case cfg.ModelAlias != "":
		alias, ref = cfg.ModelAlias, cfg.ModelAlias
	default:
		preferred, err := reg.PreferredServingAlias()
		if err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
		alias, ref = preferred, preferred
	}

	primary, err := loadHandle(reg, load, alias, ref)
	if err != nil {
		return nil, fmt.Errorf("router: primary: %w", err)
	}

	r := &Router{primary: primary, percent: cfg.CanaryPercent}
	if cfg.CanaryAlias != "" {
		canary, err := loadHandle(reg, load, cfg.CanaryAlias, cfg.CanaryAlias)
		if err != nil {
			return nil, fmt.Errorf("router: canary: %w", err)
		}
		r.canary = &canary
	}
	return r, nil
}

// loadHandle resolves ref and loads its predictor. The handle version is the
// predictor's own version unless that is empty or the unregistered
// placeholder, in which case the registry id is used.
func loadHandle(reg *registry.Registry, load Loader, alias, ref string) (Handle, error) {
	dir, err := reg.ResolvePath(ref)
	if err != nil {
		return Handle{}, err
	}
	version, err := reg.ResolveReference(ref)
	if err != nil {
		return Handle{}, err
	}
	p, err := load(dir)
	if err != nil {
		return Handle{}, err
	}
	if v := p.Version(); v != "" && v != predictor.Unregistered {
		version = v
	}
	return Handle{Alias: alias, Version: version, Predictor: p}, nil
}

// ShouldRouteCanary reports whether requestID falls in the canary share, so
// the answer depends only on its arguments.
func ShouldRouteCanary(requestID string, percent int) bool {
	if percent <= 0 {
		return false
	}
	return bucket(requestID) < percent
}

// bucket is the first 8 hex digits of SHA-256(requestID), read as a
// big-endian uint32, mod 100.
func bucket(requestID string) int {
	sum := sha256.Sum256([]byte(requestID))
	return int(binary.BigEndian.Uint32(sum[:4]) % 100)
}

// ChooseHandle returns the canary handle when one exists and requestID falls
// in its share, else the primary. The bool reports whether the canary was
// chosen.
func (r *Router) ChooseHandle(requestID string) (Handle, bool) {
	if r.canary != nil && ShouldRouteCanary(requestID, r.percent) {
		return *r.canary, true
	}
	return r.primary, false
}

// Primary returns the primary handle.
func (r *Router) Primary() Handle {
	return r.primary
}

// Result is one routed prediction.
type Result struct {
	RequestID    string  `json:"request_id"`
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
	ModelAlias   string  `json:"model_alias"`
	CanaryUsed   bool    `json:"canary_used"`
}

// Predict routes requestID and classifies rec with the chosen handle.
func (r *Router) Predict(requestID string, rec predictor.Record) (Result, error) {
	h, canary := r.ChooseHandle(requestID)
	pred, err := h.Predictor.PredictOne(rec)
	if err != nil {
		return Result{}, err
	}
	return Result{
		RequestID:    requestID,
		Category:     pred.Category,
		Confidence:   pred.Confidence,
		ModelVersion: h.Version,
		ModelAlias:   h.Alias,
		CanaryUsed:   canary,
	}, nil
}

// HandleInfo describes a handle without its predictor.
type HandleInfo struct {
	Alias   string `json:"alias"`
	Version string `json:"version"`
	Percent *int   `json:"percent,omitempty"`
}

// Metadata describes the serving configuration.
type Metadata struct {
	Primary HandleInfo  `json:"primary"`
	Canary  *HandleInfo `json:"canary"`
}

// Metadata returns the primary and canary bindings.
func (r *Router) Metadata() Metadata {
	md := Metadata{Primary: HandleInfo{Alias: r.primary.Alias, Version: r.primary.Version}}
	if r.canary != nil {
		percent := r.percent
		md.Canary = &HandleInfo{Alias: r.canary.Alias, Version: r.canary.Version, Percent: &percent}
	}
	return md
}
