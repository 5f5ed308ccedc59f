package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ladderwatch/internal/blobstore"
	"ladderwatch/internal/constants"
)

// remoteTier keeps a copy of the index in the remote backup store. Calls
// carry a bounded timeout; a timeout is just another tier failure to the
// caller. Writes are serialized so two accepts cannot interleave their
// read-merge-write against the same blob.
type remoteTier struct {
	mu    sync.Mutex
	blobs blobstore.Store
	name  string
}

func newRemoteTier(blobs blobstore.Store) *remoteTier {
	return &remoteTier{blobs: blobs, name: constants.DedupIndexBlob}
}

func (t *remoteTier) load(ctx context.Context) (*Index, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RemoteStoreTimeout)
	defer cancel()

	data, err := t.blobs.ReadFile(ctx, t.name)
	if blobstore.IsNotFound(err) {
		return newIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read remote index: %w", err)
	}
	return decodeIndex(data)
}

// mergeWrite folds new ids into the remote index. When the remote read
// fails with anything but not-found the write is skipped: overwriting the
// remote index with a partial view would destroy backup history.
func (t *remoteTier) mergeWrite(ctx context.Context, dateKey string, ids map[string]struct{}, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ix, err := t.load(ctx)
	if err != nil {
		return err
	}
	if ix.merge(dateKey, ids) == 0 {
		return nil
	}
	return t.save(ctx, ix, now)
}

func (t *remoteTier) save(ctx context.Context, ix *Index, now time.Time) error {
	data, err := ix.encode(now)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, constants.RemoteStoreTimeout)
	defer cancel()

	if err := t.blobs.WriteFile(ctx, t.name, data); err != nil {
		return fmt.Errorf("failed to write remote index: %w", err)
	}
	return nil
}

func (t *remoteTier) prune(ctx context.Context, cutoffKey string, now time.Time) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ix, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	removed := ix.prune(cutoffKey)
	if len(removed) == 0 {
		return nil, nil
	}
	if err := t.save(ctx, ix, now); err != nil {
		return nil, err
	}
	return removed, nil
}
