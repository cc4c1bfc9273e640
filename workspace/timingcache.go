package workspace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// TimingRecord is one completed-case observation appended to the timing
// cache. The cache is advisory (SPEC_FULL.md §12.6 / spec.md §9): its
// absence or corruption must never affect correctness. Nothing else in
// this module appends to it or reads estimates from it; the batcher sizes
// batches from each spec's own RuntimeSecs.
type TimingRecord struct {
	Family          string  `json:"family"`
	ParameterTuple  string  `json:"parameterTuple,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// TimingCache is an append-only JSONL file of TimingRecords, flushed with
// an atomic rename so a reader never observes a half-written batch, and
// read tolerant of a truncated final line (a crash mid-append).
type TimingCache struct {
	path string
	mu   sync.Mutex
}

// OpenTimingCache returns the cache rooted at ws's cache directory.
func OpenTimingCache(ws *Workspace) *TimingCache {
	return &TimingCache{path: filepath.Join(ws.CacheDir(), "timing.jsonl")}
}

// Append adds records to the cache by rewriting the whole file through a
// temp-file-plus-rename. This trades append() syscall efficiency for the
// atomicity spec.md §5 requires of cache writers; the cache is small
// (one line per family/parameter combination observed) so this is cheap.
func (c *TimingCache) Append(records ...TimingRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.readAllLocked()
	if err != nil {
		return err
	}
	existing = append(existing, records...)

	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating timing cache temp file")
	}
	w := bufio.NewWriter(f)
	for _, r := range existing {
		data, err := json.Marshal(r)
		if err != nil {
			f.Close()
			return errors.Wrap(err, "marshaling timing record")
		}
		if _, err := w.Write(data); err != nil {
			f.Close()
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "flushing timing cache")
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// ReadAll returns every record currently in the cache, skipping a
// truncated or malformed trailing line rather than failing outright.
func (c *TimingCache) ReadAll() ([]TimingRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readAllLocked()
}

func (c *TimingCache) readAllLocked() ([]TimingRecord, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "opening timing cache")
	}
	defer f.Close()

	var records []TimingRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r TimingRecord
		if err := json.Unmarshal(line, &r); err != nil {
			// Tolerant of a partial last record (spec.md §9).
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// EstimateFor returns the mean observed duration for family/parameterTuple,
// or ok=false if the cache has no matching record.
func (c *TimingCache) EstimateFor(family, parameterTuple string) (seconds float64, ok bool) {
	records, err := c.ReadAll()
	if err != nil {
		return 0, false
	}
	var total float64
	var count int
	for _, r := range records {
		if r.Family == family && r.ParameterTuple == parameterTuple {
			total += r.DurationSeconds
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return total / float64(count), true
}
