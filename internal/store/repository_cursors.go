package store

import (
	"context"
	"fmt"
	"math"
)

// GetCursor returns the last block recorded under name, or ErrNotFound.
func (s *Store) GetCursor(ctx context.Context, name string) (uint64, error) {
	var block int64
	err := s.db(ctx).QueryRow(ctx, `SELECT block_number FROM indexer_cursors WHERE name = $1`, name).Scan(&block)
	if err != nil {
		return 0, mapErr(err)
	}
	return uint64(block), nil
}

func (s *Store) SetCursor(ctx context.Context, name string, block uint64) error {
	if block > math.MaxInt64 {
		return fmt.Errorf("cursor %s: block %d out of range", name, block)
	}
	_, err := s.db(ctx).Exec(ctx, `
INSERT INTO indexer_cursors (name, block_number) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET block_number = EXCLUDED.block_number, updated_at = now()`,
		name, int64(block))
	return err
}
