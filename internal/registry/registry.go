// Package registry stores immutable model versions and the mutable aliases
// that point at them.
//
// Layout under the registry root:
//
//	v20261019083000123456/   one directory per version (artifact copy)
//	latest.txt               id of the most recently registered version
//	aliases/stable.json      {alias, current, history, updated_at}
//
// Versions are never mutated or deleted. Aliases are created on first
// assignment and every assignment, including a rollback, appends to the
// alias history.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/fsutil"
)

const (
	// LatestFile holds the id of the newest registered version.
	LatestFile = "latest.txt"

	// AliasesDir holds one document per alias.
	AliasesDir = "aliases"

	// LatestRef resolves to the newest registered version.
	LatestRef = "latest"

	// StableAlias is preferred for serving when it exists.
	StableAlias = "stable"

	versionPrefix = "v"
)

// Registry is a file-backed model registry.
//
// Safe for concurrent reads. Writes are unsynchronized read-modify-write per
// alias; callers that need strict ordering must serialize writes per alias.
type Registry struct {
	dir     string
	aliases AliasRepository
	clock   clock.Clock
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used to mint version ids and alias timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithAliasRepository substitutes the alias backing store.
func WithAliasRepository(repo AliasRepository) Option {
	return func(r *Registry) { r.aliases = repo }
}

// New opens the registry rooted at dir. The directory is created lazily on
// first registration.
func New(dir string, opts ...Option) *Registry {
	r := &Registry{
		dir:     dir,
		aliases: NewFileAliasRepository(dir),
		clock:   clock.System{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the registry root.
func (r *Registry) Dir() string {
	return r.dir
}

// Register copies sourceDir into a new version directory and moves the
// latest pointer to it.
//
// The id is derived from the current UTC time with microsecond precision.
// If a directory with that id already exists, Register fails AlreadyExists
// instead of overwriting it.
func (r *Registry) Register(sourceDir string) (string, error) {
	const op = "registry.register"

	if !fsutil.IsDir(sourceDir) {
		return "", fault.New(fault.NotFound, op, "source directory not found").With("source", sourceDir)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	version := versionPrefix + clock.Stamp(r.clock.Now())
	target := filepath.Join(r.dir, version)

	// Mkdir is the collision check: it fails if the id was already taken,
	// including by a concurrent registration.
	if err := os.Mkdir(target, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fault.New(fault.AlreadyExists, op, "registry version already exists").With("version", version)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := fsutil.CopyDir(sourceDir, target); err != nil {
		_ = os.RemoveAll(target)
		return "", fmt.Errorf("%s: copy artifacts: %w", op, err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(r.dir, LatestFile), []byte(version), 0o644); err != nil {
		return "", fmt.Errorf("%s: update latest pointer: %w", op, err)
	}

	r.logger.Info("registered model version", "version", version, "source", sourceDir)
	return version, nil
}

// ListVersions returns every version id in ascending (time) order.
func (r *Registry) ListVersions() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("registry.list_versions: %w", err)
	}
	versions := []string{}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), versionPrefix) {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// LatestVersion returns the version named by the latest pointer, or the
// newest version directory when the pointer file is absent.
func (r *Registry) LatestVersion() (string, error) {
	const op = "registry.latest"

	data, err := os.ReadFile(filepath.Join(r.dir, LatestFile))
	if err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	versions, err := r.ListVersions()
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fault.New(fault.NotFound, op, "no registered models found")
	}
	return versions[len(versions)-1], nil
}

// ResolveReference maps a reference to a version id:
//
//   - "" or "latest": the newest registered version
//   - a known alias: the alias's current version
//   - an explicit version id: itself, if its directory exists
//
// Anything else fails NotFound.
func (r *Registry) ResolveReference(ref string) (string, error) {
	const op = "registry.resolve"

	if ref == "" || ref == LatestRef {
		return r.LatestVersion()
	}

	if name, err := normalizeAlias(op, ref); err == nil {
		st, ok, err := r.aliases.Load(name)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if ok && st.Current != "" {
			return st.Current, nil
		}
	}

	if isVersionID(ref) && fsutil.IsDir(filepath.Join(r.dir, ref)) {
		return ref, nil
	}
	return "", fault.New(fault.NotFound, op, "model reference not found").With("ref", ref)
}

// isVersionID reports whether name has the shape of a version directory. It
// is the same filter ListVersions applies, so the alias store and dot entries
// never resolve as versions.
func isVersionID(name string) bool {
	return strings.HasPrefix(name, versionPrefix) && !strings.ContainsAny(name, `/\`)
}

// ResolvePath resolves ref and returns its artifact directory.
//
// A reference that resolves to a version whose directory has disappeared fails
// ArtifactMissing, which is distinct from NotFound: the registry knows the
// version but storage has lost it.
func (r *Registry) ResolvePath(ref string) (string, error) {
	version, err := r.ResolveReference(ref)
	if err != nil {
		return "", err
	}
	path := filepath.Join(r.dir, version)
	if !fsutil.IsDir(path) {
		return "", fault.New(fault.ArtifactMissing, "registry.resolve_path", "model version missing from registry storage").
			With("version", version).
			With("ref", ref)
	}
	return path, nil
}

// SetAlias points alias at the version ref resolves to and appends that
// version to the alias history. Duplicates are kept: history is a log.
func (r *Registry) SetAlias(alias, ref string) (string, error) {
	const op = "registry.set_alias"

	name, err := normalizeAlias(op, alias)
	if err != nil {
		return "", err
	}
	version, err := r.ResolveReference(ref)
	if err != nil {
		return "", err
	}

	st, _, err := r.aliases.Load(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	st.Alias = name
	st.Current = version
	st.History = append(st.History, version)
	st.UpdatedAt = clock.NewTimestamp(r.clock.Now())

	if err := r.aliases.Save(st); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	r.logger.Info("alias updated", "alias", name, "version", version, "history_len", len(st.History))
	return version, nil
}

// Promote points targetAlias at whatever sourceRef resolves to now.
func (r *Registry) Promote(sourceRef, targetAlias string) (string, error) {
	version, err := r.ResolveReference(sourceRef)
	if err != nil {
		return "", err
	}
	return r.SetAlias(targetAlias, version)
}

// Rollback re-points alias at the version it held steps assignments ago.
//
// The target is history[len-1-steps]. It is appended to the history like any
// other assignment, so the full audit trail is preserved and repeated
// rollbacks oscillate rather than walk further back.
func (r *Registry) Rollback(alias string, steps int) (string, error) {
	const op = "registry.rollback"

	if steps < 1 {
		return "", fault.New(fault.InvalidArgument, op, "steps must be >= 1").With("steps", strconv.Itoa(steps))
	}
	name, err := normalizeAlias(op, alias)
	if err != nil {
		return "", err
	}

	st, _, err := r.aliases.Load(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(st.History) <= steps {
		return "", fault.Newf(fault.InsufficientHistory, op, "alias does not have %d previous versions", steps).
			With("alias", name).
			With("history", strconv.Itoa(len(st.History)))
	}

	target := st.History[len(st.History)-(steps+1)]
	r.logger.Info("rolling back alias", "alias", name, "steps", steps, "target", target)
	return r.SetAlias(name, target)
}

// Alias returns the full document for one alias.
func (r *Registry) Alias(alias string) (AliasState, error) {
	const op = "registry.alias"

	name, err := normalizeAlias(op, alias)
	if err != nil {
		return AliasState{}, err
	}
	st, ok, err := r.aliases.Load(name)
	if err != nil {
		return AliasState{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return AliasState{}, fault.New(fault.NotFound, op, "alias not found").With("alias", name)
	}
	return st, nil
}

// ListAliases returns alias name → current version for every alias that
// points somewhere.
func (r *Registry) ListAliases() (map[string]string, error) {
	states, err := r.aliases.List()
	if err != nil {
		return nil, fmt.Errorf("registry.list_aliases: %w", err)
	}
	out := make(map[string]string, len(states))
	for _, st := range states {
		if st.Current != "" {
			out[st.Alias] = st.Current
		}
	}
	return out, nil
}

// PreferredServingAlias returns "stable" when that alias is defined and
// "latest" otherwise: an explicitly promoted release wins over the newest
// unvetted registration.
func (r *Registry) PreferredServingAlias() (string, error) {
	aliases, err := r.ListAliases()
	if err != nil {
		return "", err
	}
	if _, ok := aliases[StableAlias]; ok {
		return StableAlias, nil
	}
	return LatestRef, nil
}
