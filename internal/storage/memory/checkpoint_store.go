package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// CheckpointStore keeps the checkpoint log in memory for development/testing.
type CheckpointStore struct {
	mu   sync.RWMutex
	rows []crawler.Checkpoint
}

// NewCheckpointStore constructs a CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

// Last returns the most recently appended checkpoint.
func (s *CheckpointStore) Last(_ context.Context) (crawler.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rows) == 0 {
		return crawler.Checkpoint{}, crawler.ErrNotFound
	}
	return s.rows[len(s.rows)-1], nil
}

// Append assigns the next ID and stores the checkpoint.
func (s *CheckpointStore) Append(_ context.Context, cp crawler.Checkpoint) (crawler.Checkpoint, error) {
	if !cp.Outcome.Valid() {
		return crawler.Checkpoint{}, fmt.Errorf("invalid checkpoint outcome %q", cp.Outcome)
	}
	if cp.Page < 1 || cp.SequenceIndex < 0 {
		return crawler.Checkpoint{}, fmt.Errorf("invalid checkpoint position (%d, %d)", cp.SequenceIndex, cp.Page)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.ID = int64(len(s.rows) + 1)
	cp.Error = cp.Outcome.ErrorFlag()
	s.rows = append(s.rows, cp)
	return cp, nil
}

// History returns checkpoints newest first.
func (s *CheckpointStore) History(_ context.Context, limit, offset int) ([]crawler.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	out := make([]crawler.Checkpoint, 0, limit)
	for i := len(s.rows) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.rows[i])
	}
	return out, nil
}
