package economy_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/funnet/funnet-server/internal/economy"
)

const catalogYAML = `
items:
  - id: streak-freeze
    name: Streak Freeze
    description: Protects your streak for one missed day.
    item_type: consumable
    price_gems: 30
    max_inventory: 2
    icon: "🧊"
    sort_order: 1
  - id: xp-boost-2x
    name: Double XP
    description: Doubles lesson XP for 30 minutes.
    item_type: boost
    price_gems: 50
    icon: "⚡"
    sort_order: 2
    boost:
      multiplier: 2.0
      duration_minutes: 30
`

func newShop(t *testing.T) (*economy.Service, *economy.MemoryStore) {
	t.Helper()
	catalog, err := economy.ParseCatalog([]byte(catalogYAML))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}
	store := economy.NewMemoryStore()
	return economy.NewService(catalog, store, nil), store
}

func TestParseCatalog_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty-id", "items:\n  - name: X\n    price_gems: 5\n"},
		{"zero-price", "items:\n  - id: a\n    price_gems: 0\n"},
		{"duplicate-id", "items:\n  - id: a\n    price_gems: 5\n  - id: a\n    price_gems: 5\n"},
		{"boost-multiplier-one", "items:\n  - id: a\n    price_gems: 5\n    boost: {multiplier: 1.0, duration_minutes: 10}\n"},
		{"boost-no-duration", "items:\n  - id: a\n    price_gems: 5\n    boost: {multiplier: 2.0}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := economy.ParseCatalog([]byte(tt.in)); err == nil {
				t.Error("ParseCatalog() should reject invalid catalog")
			}
		})
	}
}

func TestItems_SortedBySortOrder(t *testing.T) {
	shop, _ := newShop(t)

	items := shop.Items()
	if len(items) != 2 {
		t.Fatalf("Items() returned %d items, want 2", len(items))
	}
	if items[0].ID != "streak-freeze" || items[1].ID != "xp-boost-2x" {
		t.Errorf("order = [%s %s], want [streak-freeze xp-boost-2x]", items[0].ID, items[1].ID)
	}
}

func TestBalance_LazyCreation(t *testing.T) {
	shop, _ := newShop(t)

	bal, err := shop.Balance(t.Context(), "u1")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if bal.Gems != 0 || bal.TotalGemsEarned != 0 || bal.TotalGemsSpent != 0 {
		t.Errorf("fresh balance = %+v, want zeros", bal)
	}
}

func TestPurchase_DebitsAndCreditsInventory(t *testing.T) {
	shop, _ := newShop(t)
	ctx := t.Context()

	if _, err := shop.Credit(ctx, "u1", 100, "test"); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}

	res, err := shop.Purchase(ctx, "u1", "streak-freeze")
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if res.NewGemBalance != 70 {
		t.Errorf("NewGemBalance = %d, want 70", res.NewGemBalance)
	}
	if res.Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", res.Quantity)
	}

	inv, err := shop.Inventory(ctx, "u1")
	if err != nil {
		t.Fatalf("Inventory() error = %v", err)
	}
	if len(inv) != 1 || inv[0].ItemID != "streak-freeze" || inv[0].Quantity != 1 {
		t.Errorf("inventory = %+v, want one streak-freeze", inv)
	}
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	// A purchase above the balance mutates nothing.
	shop, _ := newShop(t)
	ctx := t.Context()

	if _, err := shop.Credit(ctx, "u1", 20, "test"); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}

	_, err := shop.Purchase(ctx, "u1", "streak-freeze")
	if !errors.Is(err, economy.ErrInsufficientFunds) {
		t.Fatalf("Purchase() error = %v, want ErrInsufficientFunds", err)
	}

	bal, _ := shop.Balance(ctx, "u1")
	if bal.Gems != 20 || bal.TotalGemsSpent != 0 {
		t.Errorf("balance after failed purchase = %+v, want unchanged", bal)
	}
	inv, _ := shop.Inventory(ctx, "u1")
	if len(inv) != 0 {
		t.Errorf("inventory after failed purchase = %+v, want empty", inv)
	}
}

func TestPurchase_UnknownItem(t *testing.T) {
	shop, _ := newShop(t)

	_, err := shop.Purchase(t.Context(), "u1", "golden-ticket")
	if !errors.Is(err, economy.ErrItemNotFound) {
		t.Errorf("Purchase(unknown) error = %v, want ErrItemNotFound", err)
	}
}

func TestPurchase_InventoryCapRollsBackDebit(t *testing.T) {
	shop, _ := newShop(t)
	ctx := t.Context()

	if _, err := shop.Credit(ctx, "u1", 200, "test"); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}

	// streak-freeze caps at 2.
	for i := 0; i < 2; i++ {
		if _, err := shop.Purchase(ctx, "u1", "streak-freeze"); err != nil {
			t.Fatalf("Purchase() #%d error = %v", i+1, err)
		}
	}

	_, err := shop.Purchase(ctx, "u1", "streak-freeze")
	if !errors.Is(err, economy.ErrInventoryFull) {
		t.Fatalf("Purchase() over cap error = %v, want ErrInventoryFull", err)
	}

	bal, _ := shop.Balance(ctx, "u1")
	if bal.Gems != 140 {
		t.Errorf("Gems = %d, want 140 (no debit for the rejected purchase)", bal.Gems)
	}
}

func TestCurrencyInvariant_UnderMixedTransactions(t *testing.T) {
	// Invariant: gems == totalGemsEarned - totalGemsSpent >= 0 throughout.
	shop, _ := newShop(t)
	ctx := t.Context()

	check := func(t *testing.T) {
		t.Helper()
		bal, _ := shop.Balance(ctx, "u1")
		if bal.Gems != bal.TotalGemsEarned-bal.TotalGemsSpent {
			t.Fatalf("invariant broken: gems %d != earned %d - spent %d",
				bal.Gems, bal.TotalGemsEarned, bal.TotalGemsSpent)
		}
		if bal.Gems < 0 {
			t.Fatalf("negative balance: %d", bal.Gems)
		}
	}

	shop.Credit(ctx, "u1", 60, "test")
	check(t)
	shop.Purchase(ctx, "u1", "streak-freeze") // -30
	check(t)
	shop.Purchase(ctx, "u1", "xp-boost-2x") // 50 > 30, rejected
	check(t)
	shop.Credit(ctx, "u1", 40, "test")
	check(t)
	shop.Purchase(ctx, "u1", "xp-boost-2x") // -50
	check(t)

	bal, _ := shop.Balance(ctx, "u1")
	if bal.Gems != 20 || bal.TotalGemsEarned != 100 || bal.TotalGemsSpent != 80 {
		t.Errorf("final balance = %+v, want {20 100 80}", bal)
	}

	// Four applied transactions (the rejected purchase records nothing),
	// and their amounts sum to the balance.
	txs, err := shop.Transactions(ctx, "u1")
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(txs) != 4 {
		t.Fatalf("got %d transactions, want 4", len(txs))
	}
	sum := 0
	for _, tx := range txs {
		sum += tx.Amount
	}
	if sum != bal.Gems {
		t.Errorf("transaction sum = %d, want %d", sum, bal.Gems)
	}
}

func TestPurchase_ConcurrentNeverOverspends(t *testing.T) {
	shop, _ := newShop(t)
	ctx := t.Context()

	// 100 gems buys at most two 50-gem boosts no matter how many racers.
	if _, err := shop.Credit(ctx, "u1", 100, "test"); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shop.Purchase(ctx, "u1", "xp-boost-2x")
		}()
	}
	wg.Wait()

	bal, _ := shop.Balance(ctx, "u1")
	if bal.Gems < 0 {
		t.Fatalf("balance went negative: %d", bal.Gems)
	}
	if bal.TotalGemsSpent != 100 {
		t.Errorf("TotalGemsSpent = %d, want 100 (exactly two purchases)", bal.TotalGemsSpent)
	}
}
