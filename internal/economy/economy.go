// Package economy implements the gem currency: balances, the shop catalog,
// atomic purchases, inventory and time-boxed boosts.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrInsufficientFunds reports a purchase price above the balance.
	// Nothing is mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrItemNotFound reports an item id absent from the catalog.
	ErrItemNotFound = errors.New("shop item not found")
	// ErrInventoryFull reports a purchase that would exceed the item's
	// max inventory.
	ErrInventoryFull = errors.New("inventory full")
)

// Balance is a user's gem state. Invariant:
// Gems == TotalGemsEarned - TotalGemsSpent >= 0.
type Balance struct {
	UserID          string `json:"userId"`
	Gems            int    `json:"gems"`
	TotalGemsEarned int    `json:"totalGemsEarned"`
	TotalGemsSpent  int    `json:"totalGemsSpent"`
}

// BoostSpec is the effect metadata of a boost-type shop item.
type BoostSpec struct {
	Multiplier      float64 `yaml:"multiplier" json:"multiplier"`
	DurationMinutes int     `yaml:"duration_minutes" json:"durationMinutes"`
}

// ShopItem is a catalog entry. MaxInventory 0 means unlimited.
type ShopItem struct {
	ID           string     `yaml:"id" json:"id"`
	Name         string     `yaml:"name" json:"name"`
	Description  string     `yaml:"description" json:"description"`
	ItemType     string     `yaml:"item_type" json:"itemType"`
	PriceGems    int        `yaml:"price_gems" json:"priceGems"`
	MaxInventory int        `yaml:"max_inventory" json:"maxInventory"`
	Icon         string     `yaml:"icon" json:"icon"`
	SortOrder    int        `yaml:"sort_order" json:"sortOrder"`
	Boost        *BoostSpec `yaml:"boost,omitempty" json:"boost,omitempty"`
}

// InventoryItem is one owned item stack.
type InventoryItem struct {
	ItemID         string    `json:"itemId"`
	Quantity       int       `json:"quantity"`
	LastAcquiredAt time.Time `json:"lastAcquiredAt"`
}

// PurchaseResult is the outcome of a successful purchase.
type PurchaseResult struct {
	Item          ShopItem `json:"item"`
	NewGemBalance int      `json:"newGemBalance"`
	Quantity      int      `json:"quantity"`
}

// GemTransaction is one audit-trail entry. Amount is positive for credits
// and negative for debits.
type GemTransaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists balances, inventory and the transaction audit trail.
// Purchase is atomic: the debit, spend counter, inventory credit and audit
// row commit together or not at all, and the balance can never go negative.
type Store interface {
	Balance(ctx context.Context, userID string) (Balance, error)
	Credit(ctx context.Context, userID string, amount int, reason string) (Balance, error)
	Purchase(ctx context.Context, userID string, item ShopItem) (PurchaseResult, error)
	Inventory(ctx context.Context, userID string) ([]InventoryItem, error)
	Transactions(ctx context.Context, userID string) ([]GemTransaction, error)
}

// Service is the shop facade: catalog lookups, purchases, boost activation.
type Service struct {
	catalog *Catalog
	store   Store
	boosts  *BoostTracker // nil disables boost tracking
}

// NewService creates an economy service. boosts may be nil.
func NewService(catalog *Catalog, store Store, boosts *BoostTracker) *Service {
	return &Service{catalog: catalog, store: store, boosts: boosts}
}

// Items returns the catalog sorted by sort order.
func (s *Service) Items() []ShopItem {
	return s.catalog.Items()
}

// Balance returns the user's gem balance, creating it on first access.
func (s *Service) Balance(ctx context.Context, userID string) (Balance, error) {
	return s.store.Balance(ctx, userID)
}

// Credit adds gems to the user's balance (checkpoint rewards).
func (s *Service) Credit(ctx context.Context, userID string, amount int, reason string) (Balance, error) {
	if amount <= 0 {
		return Balance{}, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	bal, err := s.store.Credit(ctx, userID, amount, reason)
	if err != nil {
		return Balance{}, err
	}
	slog.Info("gems credited", "user_id", userID, "amount", amount, "reason", reason)
	return bal, nil
}

// Transactions returns the user's gem audit trail, newest first.
func (s *Service) Transactions(ctx context.Context, userID string) ([]GemTransaction, error) {
	return s.store.Transactions(ctx, userID)
}

// Purchase buys one unit of the item for the user. Unknown items return
// ErrItemNotFound; a price above the balance returns ErrInsufficientFunds
// with nothing mutated. Boost items get an active-boost record after the
// purchase commits; a tracking failure is logged, never surfaced, since
// the purchase itself already committed.
func (s *Service) Purchase(ctx context.Context, userID, itemID string) (PurchaseResult, error) {
	item, ok := s.catalog.Item(itemID)
	if !ok {
		return PurchaseResult{}, fmt.Errorf("item %s: %w", itemID, ErrItemNotFound)
	}

	res, err := s.store.Purchase(ctx, userID, item)
	if err != nil {
		return PurchaseResult{}, err
	}

	slog.Info("item purchased",
		"user_id", userID,
		"item_id", item.ID,
		"price", item.PriceGems,
		"new_balance", res.NewGemBalance,
	)

	if item.Boost != nil && s.boosts != nil {
		if err := s.boosts.Activate(ctx, userID, item); err != nil {
			slog.Error("failed to activate boost", "user_id", userID, "item_id", item.ID, "error", err)
		}
	}
	return res, nil
}

// Inventory returns the user's owned items.
func (s *Service) Inventory(ctx context.Context, userID string) ([]InventoryItem, error) {
	return s.store.Inventory(ctx, userID)
}

// ActiveBoosts returns the user's currently running boosts, or nil when
// boost tracking is disabled.
func (s *Service) ActiveBoosts(ctx context.Context, userID string) ([]ActiveBoost, error) {
	if s.boosts == nil {
		return nil, nil
	}
	return s.boosts.Active(ctx, userID)
}
