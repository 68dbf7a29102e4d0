package monitoring

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/roach88/modelops/internal/predictor"
)

const maxLineBytes = 1 << 20

// RecentRequests returns up to limit of the most recent request payloads in
// the event log, oldest first. Only events carrying an "input" object count.
// Up to 3*limit trailing lines are scanned; malformed lines are skipped and a
// missing log yields no records.
func RecentRequests(path string, limit int) ([]predictor.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	lines, err := tail(path, limit*3)
	if err != nil {
		return nil, err
	}

	var out []predictor.Record
	for i := len(lines) - 1; i >= 0 && len(out) < limit; i-- {
		var ev struct {
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(lines[i], &ev); err != nil {
			continue
		}
		if len(ev.Input) == 0 || ev.Input[0] != '{' {
			continue
		}
		var rec predictor.Record
		if err := json.Unmarshal(ev.Input, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// tail returns the last n non-blank lines of path.
func tail(path string, n int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read event log: %w", err)
	}
	defer f.Close()

	ring := make([][]byte, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return ring, nil
}
