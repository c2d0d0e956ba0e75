package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const checkpointColumns = `id, sequence_index, page, error, outcome, reason, run_id, created_at`

// CheckpointStore persists the append-only checkpoint log.
type CheckpointStore struct {
	db    querier
	table string
}

// NewCheckpointStore wraps db. An empty table defaults to "checkpoints".
func NewCheckpointStore(db querier, table string) (*CheckpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, "checkpoints")
	if err != nil {
		return nil, err
	}
	return &CheckpointStore{db: db, table: name}, nil
}

// Last returns the checkpoint with the greatest id.
func (s *CheckpointStore) Last(ctx context.Context) (crawler.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC LIMIT 1`, checkpointColumns, s.table)
	cp, err := scanCheckpoint(s.db.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Checkpoint{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("select last checkpoint: %w", err)
	}
	return cp, nil
}

// Append inserts a checkpoint and returns it with its assigned id.
func (s *CheckpointStore) Append(ctx context.Context, cp crawler.Checkpoint) (crawler.Checkpoint, error) {
	if !cp.Outcome.Valid() {
		return crawler.Checkpoint{}, fmt.Errorf("invalid checkpoint outcome %q", cp.Outcome)
	}
	cp.Error = cp.Outcome.ErrorFlag()
	query := fmt.Sprintf(`
INSERT INTO %s (sequence_index, page, error, outcome, reason, run_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`, s.table)
	err := s.db.QueryRow(ctx, query,
		cp.SequenceIndex,
		cp.Page,
		cp.Error,
		string(cp.Outcome),
		cp.Reason,
		cp.RunID,
		cp.CreatedAt,
	).Scan(&cp.ID)
	if err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("insert checkpoint: %w", err)
	}
	return cp, nil
}

// History lists checkpoints newest first. A non-positive limit returns all rows.
func (s *CheckpointStore) History(ctx context.Context, limit, offset int) ([]crawler.Checkpoint, error) {
	if offset < 0 {
		offset = 0
	}
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC LIMIT $1 OFFSET $2`, checkpointColumns, s.table)
	rows, err := s.db.Query(ctx, query, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("select checkpoints: %w", err)
	}
	defer rows.Close()

	out := make([]crawler.Checkpoint, 0)
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

func scanCheckpoint(row pgx.Row) (crawler.Checkpoint, error) {
	var (
		cp      crawler.Checkpoint
		outcome string
	)
	if err := row.Scan(
		&cp.ID,
		&cp.SequenceIndex,
		&cp.Page,
		&cp.Error,
		&outcome,
		&cp.Reason,
		&cp.RunID,
		&cp.CreatedAt,
	); err != nil {
		return crawler.Checkpoint{}, err
	}
	cp.Outcome = crawler.Outcome(outcome)
	if !cp.Outcome.Valid() {
		// rows written before outcomes existed only carry the flag
		cp.Outcome = crawler.OutcomeFromFlag(cp.Error)
	}
	return cp, nil
}
