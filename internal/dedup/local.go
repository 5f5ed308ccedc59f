package dedup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// localTier is the durable JSON index on local disk. A single in-process
// mutex serializes every read-modify-write, which is the single-writer
// invariant the index file needs.
type localTier struct {
	mu   sync.Mutex
	path string
}

func newLocalTier(path string) *localTier {
	return &localTier{path: path}
}

// load reads and decodes the index file. A missing file is a fresh index,
// not an error.
func (t *localTier) load() (*Index, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked()
}

func (t *localTier) loadLocked() (*Index, error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return newIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local index %s: %w", t.path, err)
	}
	return decodeIndex(data)
}

// save writes the full index atomically (temp file + rename).
func (t *localTier) save(ix *Index, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked(ix, now)
}

func (t *localTier) saveLocked(ix *Index, now time.Time) error {
	data, err := ix.encode(now)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory %s: %w", dir, err)
		}
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write local index %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace local index %s: %w", t.path, err)
	}
	return nil
}

// mergeWrite folds new ids into the on-disk index under one lock hold. A
// corrupt existing file is rebuilt from scratch rather than blocking
// acceptance forever.
func (t *localTier) mergeWrite(dateKey string, ids map[string]struct{}, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ix, loadErr := t.loadLocked()
	if loadErr != nil {
		// a corrupt index must not block acceptance forever; rebuild it
		ix = newIndex()
	}
	if ix.merge(dateKey, ids) == 0 && loadErr == nil {
		return nil
	}
	return t.saveLocked(ix, now)
}

// prune drops dates older than cutoffKey from the on-disk index and
// reports which were removed.
func (t *localTier) prune(cutoffKey string, now time.Time) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ix, err := t.loadLocked()
	if err != nil {
		return nil, err
	}
	removed := ix.prune(cutoffKey)
	if len(removed) == 0 {
		return nil, nil
	}
	if err := t.saveLocked(ix, now); err != nil {
		return nil, err
	}
	return removed, nil
}
