package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	snap := NewSnapshot()

	rows, err := s.pool.Query(ctx,
		`SELECT lesson_id FROM lesson_completions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query lesson completions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Snapshot{}, fmt.Errorf("scan lesson completion: %w", err)
		}
		snap.CompletedLessons[id] = true
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate lesson completions: %w", err)
	}

	nodeRows, err := s.pool.Query(ctx,
		`SELECT node_id FROM node_completions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query node completions: %w", err)
	}
	defer nodeRows.Close()
	for nodeRows.Next() {
		var id string
		if err := nodeRows.Scan(&id); err != nil {
			return Snapshot{}, fmt.Errorf("scan node completion: %w", err)
		}
		snap.CompletedNodes[id] = true
	}
	if err := nodeRows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate node completions: %w", err)
	}

	return snap, nil
}

func (s *PostgresStore) RecordLessonCompletion(ctx context.Context, userID, lessonID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO lesson_completions (user_id, lesson_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, lesson_id) DO NOTHING`,
		userID, lessonID,
	)
	if err != nil {
		return false, fmt.Errorf("insert lesson completion: %w", err)
	}
	return cmd.RowsAffected() == 0, nil
}

func (s *PostgresStore) RecordNodeCompletion(ctx context.Context, userID, nodeID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO node_completions (user_id, node_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, node_id) DO NOTHING`,
		userID, nodeID,
	)
	if err != nil {
		return false, fmt.Errorf("insert node completion: %w", err)
	}
	return cmd.RowsAffected() == 0, nil
}
