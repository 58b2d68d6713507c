package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/funnet/funnet-server/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Completion transactions
// serialize on the user's profile row via SELECT ... FOR UPDATE, so
// concurrent completions for the same user cannot interleave.
type PostgresStore struct {
	pool      *pgxpool.Pool
	levelStep int
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(pool *pgxpool.Pool, levelStep int) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if levelStep <= 0 {
		levelStep = DefaultLevelStep
	}
	return &PostgresStore{pool: pool, levelStep: levelStep}, nil
}

func (s *PostgresStore) Profile(ctx context.Context, userID string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p Profile
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.ensureProfile(ctx, tx, userID); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`SELECT user_id, display_name, current_xp, current_level,
			        total_xp_earned, lessons_completed, nodes_completed
			 FROM user_profiles
			 WHERE user_id = $1`,
			userID,
		).Scan(&p.UserID, &p.DisplayName, &p.CurrentXP, &p.CurrentLevel,
			&p.TotalXPEarned, &p.LessonsCompleted, &p.NodesCompleted)
	})
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CompleteLesson(ctx context.Context, userID, lessonID string, award int) (LessonReward, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var reward LessonReward
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.ensureProfile(ctx, tx, userID); err != nil {
			return err
		}

		// Lock the profile row first so concurrent completions for this
		// user serialize.
		var xp, level, totalXP, lessonsDone int
		if err := tx.QueryRow(ctx,
			`SELECT current_xp, current_level, total_xp_earned, lessons_completed
			 FROM user_profiles
			 WHERE user_id = $1
			 FOR UPDATE`,
			userID,
		).Scan(&xp, &level, &totalXP, &lessonsDone); err != nil {
			return fmt.Errorf("lock profile: %w", err)
		}

		cmd, err := tx.Exec(ctx,
			`INSERT INTO lesson_completions (user_id, lesson_id)
			 VALUES ($1, $2)
			 ON CONFLICT (user_id, lesson_id) DO NOTHING`,
			userID, lessonID,
		)
		if err != nil {
			return fmt.Errorf("insert lesson completion: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return ErrAlreadyCompleted
		}

		newXP, newLevel := applyAward(xp, level, award, s.levelStep)
		if _, err := tx.Exec(ctx,
			`UPDATE user_profiles
			 SET current_xp = $2,
			     current_level = $3,
			     total_xp_earned = total_xp_earned + $4,
			     lessons_completed = lessons_completed + 1,
			     updated_at = NOW()
			 WHERE user_id = $1`,
			userID, newXP, newLevel, award,
		); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}

		reward = LessonReward{
			Awarded:   award,
			NewXP:     newXP,
			NewLevel:  newLevel,
			LeveledUp: newLevel > level,
		}
		return nil
	})
	if err != nil {
		return LessonReward{}, err
	}
	return reward, nil
}

func (s *PostgresStore) CompleteNode(ctx context.Context, userID, nodeID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	already := false
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.ensureProfile(ctx, tx, userID); err != nil {
			return err
		}

		cmd, err := tx.Exec(ctx,
			`INSERT INTO node_completions (user_id, node_id)
			 VALUES ($1, $2)
			 ON CONFLICT (user_id, node_id) DO NOTHING`,
			userID, nodeID,
		)
		if err != nil {
			return fmt.Errorf("insert node completion: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			already = true
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE user_profiles
			 SET nodes_completed = nodes_completed + 1,
			     updated_at = NOW()
			 WHERE user_id = $1`,
			userID,
		); err != nil {
			return fmt.Errorf("update node counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return already, nil
}

// ensureProfile lazily creates the profile row with defaults (level 1,
// zero XP).
func (s *PostgresStore) ensureProfile(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_profiles (user_id, display_name)
		 VALUES ($1, $1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}
