// Package leaderboard ranks users by earned XP on Redis sorted sets. Two
// boards run side by side: an all-time board and a weekly board keyed by
// ISO week, with old weekly sets expiring on their own.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/funnet/funnet-server/internal/ledger"
)

// Period selects which board to read.
type Period string

const (
	PeriodAllTime Period = "alltime"
	PeriodWeekly  Period = "weekly"
)

var (
	// ErrNotFound reports a user with no entry on the requested board.
	ErrNotFound = errors.New("user not on leaderboard")
	// ErrUnknownPeriod reports an unrecognized period name.
	ErrUnknownPeriod = errors.New("unknown leaderboard period")
)

// ParsePeriod maps a query value to a Period; empty means all-time.
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "", string(PeriodAllTime):
		return PeriodAllTime, nil
	case string(PeriodWeekly):
		return PeriodWeekly, nil
	default:
		return "", fmt.Errorf("period %q: %w", s, ErrUnknownPeriod)
	}
}

// Entry is one ranked row. XP is the score on the selected board, so a
// weekly entry shows the XP earned that week, not the lifetime total.
type Entry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
}

// ProfileReader resolves display names and levels for ranked users.
// ledger.Service satisfies it.
type ProfileReader interface {
	Profile(ctx context.Context, userID string) (ledger.Profile, error)
}

const (
	allTimeKey    = "funnet:leaderboard:alltime"
	weeklyKeyBase = "funnet:leaderboard:week:"

	// Weekly sets outlive their week by one more, so last week's final
	// standings stay readable, then expire.
	weeklyTTL = 14 * 24 * time.Hour
)

// Board is the Redis-backed leaderboard. It implements ledger.Listener so
// committed lesson rewards feed it directly.
type Board struct {
	client   *redis.Client
	profiles ProfileReader
	now      func() time.Time
}

// NewBoard creates a leaderboard over the given Redis client.
func NewBoard(client *redis.Client, profiles ProfileReader) *Board {
	return &Board{client: client, profiles: profiles, now: time.Now}
}

// weeklyKey returns the sorted-set key for the ISO week containing t,
// evaluated in UTC so week boundaries don't depend on server locale.
func weeklyKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%s%d-%02d", weeklyKeyBase, year, week)
}

func (b *Board) key(period Period) (string, error) {
	switch period {
	case PeriodAllTime:
		return allTimeKey, nil
	case PeriodWeekly:
		return weeklyKey(b.now()), nil
	default:
		return "", fmt.Errorf("period %q: %w", period, ErrUnknownPeriod)
	}
}

// AddXP credits earned XP to both boards.
func (b *Board) AddXP(ctx context.Context, userID string, xp int) error {
	if xp <= 0 {
		return nil
	}

	week := weeklyKey(b.now())
	pipe := b.client.TxPipeline()
	pipe.ZIncrBy(ctx, allTimeKey, float64(xp), userID)
	pipe.ZIncrBy(ctx, week, float64(xp), userID)
	pipe.Expire(ctx, week, weeklyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add leaderboard xp: %w", err)
	}
	return nil
}

// Top returns the highest-ranked n entries for the period.
func (b *Board) Top(ctx context.Context, period Period, n int) ([]Entry, error) {
	key, err := b.key(period)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 10
	}

	ranked, err := b.client.ZRevRangeWithScores(ctx, key, 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard %s: %w", key, err)
	}

	entries := make([]Entry, 0, len(ranked))
	for i, z := range ranked {
		userID, _ := z.Member.(string)
		entry := Entry{Rank: i + 1, UserID: userID, XP: int(z.Score)}
		b.fillProfile(ctx, &entry)
		entries = append(entries, entry)
	}
	return entries, nil
}

// RankOf returns the user's entry for the period; 1 is the top rank.
func (b *Board) RankOf(ctx context.Context, period Period, userID string) (Entry, error) {
	key, err := b.key(period)
	if err != nil {
		return Entry{}, err
	}

	rank, err := b.client.ZRevRank(ctx, key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, fmt.Errorf("user %s on %s board: %w", userID, period, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("rank of %s: %w", userID, err)
	}

	score, err := b.client.ZScore(ctx, key, userID).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("score of %s: %w", userID, err)
	}

	entry := Entry{Rank: int(rank) + 1, UserID: userID, XP: int(score)}
	b.fillProfile(ctx, &entry)
	return entry, nil
}

// fillProfile decorates an entry with display name and level. A missing or
// failing profile lookup degrades to the raw user id.
func (b *Board) fillProfile(ctx context.Context, entry *Entry) {
	entry.DisplayName = entry.UserID
	if b.profiles == nil {
		return
	}
	profile, err := b.profiles.Profile(ctx, entry.UserID)
	if err != nil {
		slog.Warn("leaderboard profile lookup failed", "user_id", entry.UserID, "error", err)
		return
	}
	if profile.DisplayName != "" {
		entry.DisplayName = profile.DisplayName
	}
	entry.Level = profile.CurrentLevel
}

// LessonCompleted feeds committed lesson XP to the boards. Part of
// ledger.Listener; failures are logged, the reward is already committed.
func (b *Board) LessonCompleted(ctx context.Context, userID, lessonID string, reward ledger.LessonReward) {
	if err := b.AddXP(ctx, userID, reward.Awarded); err != nil {
		slog.Error("leaderboard update failed", "user_id", userID, "lesson_id", lessonID, "error", err)
	}
}

// NodeCompleted is part of ledger.Listener. Node completions carry no XP.
func (b *Board) NodeCompleted(ctx context.Context, userID, nodeID string) {}
