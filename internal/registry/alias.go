package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/modelops/internal/clock"
	"github.com/roach88/modelops/internal/fault"
	"github.com/roach88/modelops/internal/fsutil"
)

// AliasState is the persisted document for one alias.
//
// History is an append-only log of every version the alias has pointed to,
// including repeats; Current is always its last element.
type AliasState struct {
	Alias     string          `json:"alias"`
	Current   string          `json:"current"`
	History   []string        `json:"history"`
	UpdatedAt clock.Timestamp `json:"updated_at"`
}

// AliasRepository hides how alias documents are stored.
//
// Implementations perform whole-document reads and writes with no locking;
// concurrent writers to the same alias race and the last write wins.
type AliasRepository interface {
	// Load returns the alias document and whether it exists.
	Load(name string) (AliasState, bool, error)

	// Save replaces the alias document.
	Save(state AliasState) error

	// List returns every alias document ordered by name.
	List() ([]AliasState, error)
}

// FileAliasRepository stores one JSON document per alias under
// <registry>/aliases/<alias>.json.
type FileAliasRepository struct {
	dir string
}

// NewFileAliasRepository creates a repository rooted at registryDir.
func NewFileAliasRepository(registryDir string) *FileAliasRepository {
	return &FileAliasRepository{dir: filepath.Join(registryDir, AliasesDir)}
}

func (r *FileAliasRepository) path(name string) string {
	return filepath.Join(r.dir, name+".json")
}

// Load reads the alias document.
func (r *FileAliasRepository) Load(name string) (AliasState, bool, error) {
	var st AliasState
	if err := fsutil.ReadJSON(r.path(name), &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return AliasState{Alias: name, History: []string{}}, false, nil
		}
		return AliasState{}, false, fmt.Errorf("load alias %s: %w", name, err)
	}
	if st.History == nil {
		st.History = []string{}
	}
	return st, true, nil
}

// Save writes the alias document atomically.
func (r *FileAliasRepository) Save(st AliasState) error {
	if st.History == nil {
		st.History = []string{}
	}
	if err := fsutil.WriteJSON(r.path(st.Alias), st); err != nil {
		return fmt.Errorf("save alias %s: %w", st.Alias, err)
	}
	return nil
}

// List reads every alias document. The alias name is taken from the file
// name, matching how the documents are addressed.
func (r *FileAliasRepository) List() ([]AliasState, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list aliases: %w", err)
	}

	var out []AliasState
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		st, ok, err := r.Load(name)
		if err != nil {
			return nil, err
		}
		if ok {
			st.Alias = name
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

// normalizeAlias canonicalises an alias name so that visually identical
// names map to one file.
func normalizeAlias(op, name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	switch {
	case n == "":
		return "", fault.New(fault.InvalidArgument, op, "alias name is required")
	case n == LatestRef:
		return "", fault.Newf(fault.InvalidArgument, op, "%q is reserved for the newest registered version", LatestRef)
	case n == "." || n == ".." || strings.ContainsAny(n, `/\`):
		return "", fault.Newf(fault.InvalidArgument, op, "invalid alias name %q", name)
	}
	return n, nil
}
