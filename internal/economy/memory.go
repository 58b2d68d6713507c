package economy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for tests and local
// runs.
type MemoryStore struct {
	mu           sync.Mutex
	balances     map[string]*Balance
	inventory    map[string]map[string]*InventoryItem // userID -> itemID
	transactions map[string][]GemTransaction          // newest first
}

// NewMemoryStore creates a new in-memory economy store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:     make(map[string]*Balance),
		inventory:    make(map[string]map[string]*InventoryItem),
		transactions: make(map[string][]GemTransaction),
	}
}

func (s *MemoryStore) Balance(ctx context.Context, userID string) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.balanceLocked(userID), nil
}

func (s *MemoryStore) balanceLocked(userID string) *Balance {
	b, ok := s.balances[userID]
	if !ok {
		b = &Balance{UserID: userID}
		s.balances[userID] = b
	}
	return b
}

func (s *MemoryStore) Credit(ctx context.Context, userID string, amount int, reason string) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(userID)
	b.Gems += amount
	b.TotalGemsEarned += amount
	s.recordLocked(userID, amount, reason)
	return *b, nil
}

func (s *MemoryStore) recordLocked(userID string, amount int, reason string) {
	tx := GemTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	s.transactions[userID] = append([]GemTransaction{tx}, s.transactions[userID]...)
}

func (s *MemoryStore) Purchase(ctx context.Context, userID string, item ShopItem) (PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(userID)
	if b.Gems < item.PriceGems {
		return PurchaseResult{}, fmt.Errorf("item %s costs %d, balance %d: %w",
			item.ID, item.PriceGems, b.Gems, ErrInsufficientFunds)
	}

	if s.inventory[userID] == nil {
		s.inventory[userID] = make(map[string]*InventoryItem)
	}
	inv, ok := s.inventory[userID][item.ID]
	if !ok {
		inv = &InventoryItem{ItemID: item.ID}
		s.inventory[userID][item.ID] = inv
	}
	if item.MaxInventory > 0 && inv.Quantity >= item.MaxInventory {
		return PurchaseResult{}, fmt.Errorf("item %s: %w", item.ID, ErrInventoryFull)
	}

	b.Gems -= item.PriceGems
	b.TotalGemsSpent += item.PriceGems
	inv.Quantity++
	inv.LastAcquiredAt = time.Now()
	s.recordLocked(userID, -item.PriceGems, "purchase:"+item.ID)

	return PurchaseResult{Item: item, NewGemBalance: b.Gems, Quantity: inv.Quantity}, nil
}

func (s *MemoryStore) Transactions(ctx context.Context, userID string) ([]GemTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]GemTransaction(nil), s.transactions[userID]...), nil
}

func (s *MemoryStore) Inventory(ctx context.Context, userID string) ([]InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []InventoryItem
	for _, inv := range s.inventory[userID] {
		items = append(items, *inv)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}
