package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/modelops/internal/fsutil"
)

// FileRepository stores one <job_id>.json document per job. Writes go through
// a temp file and rename so a crash never leaves a torn record.
type FileRepository struct {
	dir string
}

// NewFileRepository creates a repository rooted at dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{dir: dir}
}

func (r *FileRepository) path(jobID string) string {
	return filepath.Join(r.dir, jobID+".json")
}

// Create writes the record atomically, failing if the id is taken.
func (r *FileRepository) Create(_ context.Context, rec Record) error {
	err := fsutil.CreateJSON(r.path(rec.JobID), rec)
	if errors.Is(err, fs.ErrExist) {
		return AlreadyExists(rec.JobID)
	}
	if err != nil {
		return fmt.Errorf("create job %s: %w", rec.JobID, err)
	}
	return nil
}

// Save writes the record atomically.
func (r *FileRepository) Save(_ context.Context, rec Record) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("save job %s: %w", rec.JobID, err)
	}
	if err := fsutil.WriteJSON(r.path(rec.JobID), rec); err != nil {
		return fmt.Errorf("save job %s: %w", rec.JobID, err)
	}
	return nil
}

// Load reads the record for jobID.
func (r *FileRepository) Load(_ context.Context, jobID string) (Record, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) {
		return Record{}, notFound("jobs.load", jobID)
	}
	var rec Record
	if err := fsutil.ReadJSON(r.path(jobID), &rec); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, notFound("jobs.load", jobID)
		}
		return Record{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return rec, nil
}

// List orders by file name, which sorts by id. Filtering by DAG relies on the
// "<dag>-<stamp>" id shape.
func (r *FileRepository) List(ctx context.Context, dagName string, limit int) ([]Record, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		if dagName != "" && !ownedBy(id, dagName) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ownedBy reports whether id was minted for dagName. The suffix after the
// DAG name must be exactly one stamp, so "nightly" does not claim
// "nightly-extra-<stamp>".
func ownedBy(id, dagName string) bool {
	rest, ok := strings.CutPrefix(id, dagName+"-")
	return ok && !strings.Contains(rest, "-")
}
