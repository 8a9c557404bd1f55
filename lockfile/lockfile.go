// Package lockfile implements tmxdedup.lock, a journal of processed inputs.
// Each entry records the MD5 checksum of the input bytes and a hash of the
// settings it was processed with, so an unchanged input with unchanged
// settings can be skipped. The journal also keeps a bounded run history.
//
// The lock file is stored alongside .tmxdedup.yaml as tmxdedup.lock.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/tmxdedup/merge"
)

// LockFileName is the default lock file name.
const LockFileName = "tmxdedup.lock"

// Version is the lock file format version.
const Version = 1

// MaxHistory bounds the number of runs kept in the history.
const MaxHistory = 50

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Entry describes one processing run of one input.
type Entry struct {
	Input    string `yaml:"input"`
	Output   string `yaml:"output,omitempty"`
	Checksum string `yaml:"checksum"`
	Settings string `yaml:"settings"`
	Encoding string `yaml:"encoding,omitempty"`

	OriginalCount     int `yaml:"original_count"`
	UniqueCount       int `yaml:"unique_count"`
	DuplicatesRemoved int `yaml:"duplicates_removed"`

	ProcessedAt time.Time `yaml:"processed_at"`
}

// Stats returns the entry's counts.
func (e Entry) Stats() merge.Stats {
	return merge.Stats{
		OriginalCount:     e.OriginalCount,
		UniqueCount:       e.UniqueCount,
		DuplicatesRemoved: e.DuplicatesRemoved,
	}
}

// SetStats copies counts into the entry.
func (e *Entry) SetStats(s merge.Stats) {
	e.OriginalCount = s.OriginalCount
	e.UniqueCount = s.UniqueCount
	e.DuplicatesRemoved = s.DuplicatesRemoved
}

// LockFile represents the tmxdedup.lock file structure.
type LockFile struct {
	Version int              `yaml:"version"`
	Files   map[string]Entry `yaml:"files"` // input key -> last run
	History []Entry          `yaml:"history,omitempty"`

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a lock file from the given directory.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version: Version,
		Files:   make(map[string]Entry),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path

	if lf.Files == nil {
		lf.Files = make(map[string]Entry)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksum operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return HashBytes([]byte(s))
}

// HashBytes computes the MD5 hex digest of raw bytes.
func HashBytes(b []byte) string {
	return fmt.Sprintf("%x", md5.Sum(b))
}

// InputKey builds the journal key for an input path: slash separated and,
// when possible, relative to root.
func InputKey(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && filepath.IsLocal(rel) {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

// IsChanged reports whether input must be processed again: it has no entry,
// or its content or the settings differ from the last run.
func (lf *LockFile) IsChanged(input string, data []byte, settings string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	e, ok := lf.Files[input]
	if !ok {
		return true
	}
	return e.Checksum != HashBytes(data) || e.Settings != Hash(settings)
}

// Lookup returns the last run recorded for input.
func (lf *LockFile) Lookup(input string) (Entry, bool) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	e, ok := lf.Files[input]
	return e, ok
}

// Record stores a finished run. Checksum and Settings are computed from data
// and settings; a zero ProcessedAt is set to now. It is safe to call from
// several goroutines.
func (lf *LockFile) Record(e Entry, data []byte, settings string) Entry {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	e.Checksum = HashBytes(data)
	e.Settings = Hash(settings)
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now().UTC().Truncate(time.Second)
	}
	lf.Files[e.Input] = e
	lf.History = append(lf.History, e)
	if n := len(lf.History) - MaxHistory; n > 0 {
		lf.History = append([]Entry(nil), lf.History[n:]...)
	}
	return e
}

// Remove deletes the entry for input. History is kept.
func (lf *LockFile) Remove(input string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.Files, input)
}

// Clean removes entries whose input no longer exists under root.
func (lf *LockFile) Clean(root string) int {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	removed := 0
	for key := range lf.Files {
		path := filepath.FromSlash(key)
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			delete(lf.Files, key)
			removed++
		}
	}
	return removed
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

// Recent returns up to n runs, newest first. n <= 0 returns all of them.
func (lf *LockFile) Recent(n int) []Entry {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	out := make([]Entry, len(lf.History))
	for i, e := range lf.History {
		out[len(out)-1-i] = e
	}
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Inputs returns the sorted list of journaled inputs.
func (lf *LockFile) Inputs() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	inputs := make([]string, 0, len(lf.Files))
	for k := range lf.Files {
		inputs = append(inputs, k)
	}
	sort.Strings(inputs)
	return inputs
}

// Totals sums the counts of the last run of every input.
func (lf *LockFile) Totals() merge.Stats {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	var s merge.Stats
	for _, e := range lf.Files {
		s.OriginalCount += e.OriginalCount
		s.UniqueCount += e.UniqueCount
		s.DuplicatesRemoved += e.DuplicatesRemoved
	}
	return s
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	inputs := lf.Inputs()
	if len(inputs) == 0 {
		return "empty"
	}
	t := lf.Totals()
	return fmt.Sprintf("%d files, %d units, %d duplicates removed", len(inputs), t.OriginalCount, t.DuplicatesRemoved)
}
