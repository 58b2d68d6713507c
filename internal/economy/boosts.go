package economy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const boostKeyPrefix = "funnet:boost:"

// ActiveBoost is a running boost effect for a user.
type ActiveBoost struct {
	ItemID     string    `json:"itemId"`
	Multiplier float64   `json:"multiplier"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// BoostTracker records active boosts in Redis; expiry is handled by key
// TTLs, so an expired boost simply disappears.
type BoostTracker struct {
	client *redis.Client
}

// NewBoostTracker creates a Redis-backed boost tracker.
func NewBoostTracker(client *redis.Client) *BoostTracker {
	return &BoostTracker{client: client}
}

func boostKey(userID, itemID string) string {
	return boostKeyPrefix + userID + ":" + itemID
}

// Activate records the item's boost for its configured duration. Buying
// the same boost again restarts the clock.
func (t *BoostTracker) Activate(ctx context.Context, userID string, item ShopItem) error {
	if item.Boost == nil {
		return fmt.Errorf("item %s is not a boost", item.ID)
	}

	ttl := time.Duration(item.Boost.DurationMinutes) * time.Minute
	value := strconv.FormatFloat(item.Boost.Multiplier, 'f', -1, 64)
	if err := t.client.Set(ctx, boostKey(userID, item.ID), value, ttl).Err(); err != nil {
		return fmt.Errorf("record boost: %w", err)
	}
	return nil
}

// Active returns the user's currently running boosts.
func (t *BoostTracker) Active(ctx context.Context, userID string) ([]ActiveBoost, error) {
	prefix := boostKeyPrefix + userID + ":"

	var boosts []ActiveBoost
	iter := t.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		value, err := t.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("read boost %s: %w", key, err)
		}
		multiplier, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parse boost %s: %w", key, err)
		}

		ttl, err := t.client.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("boost ttl %s: %w", key, err)
		}

		boosts = append(boosts, ActiveBoost{
			ItemID:     strings.TrimPrefix(key, prefix),
			Multiplier: multiplier,
			ExpiresAt:  time.Now().Add(ttl),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan boosts: %w", err)
	}
	return boosts, nil
}
