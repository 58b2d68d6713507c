package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/funnet/funnet-server/internal/platform/database"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. The debit is a single
// guarded UPDATE, so two concurrent purchases can never drive a balance
// negative; inventory limits roll the debit back via the enclosing
// transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed economy store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Balance(ctx context.Context, userID string) (Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var b Balance
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := ensureBalance(ctx, tx, userID); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`SELECT user_id, gems, total_gems_earned, total_gems_spent
			 FROM user_currency
			 WHERE user_id = $1`,
			userID,
		).Scan(&b.UserID, &b.Gems, &b.TotalGemsEarned, &b.TotalGemsSpent)
	})
	if err != nil {
		return Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Credit(ctx context.Context, userID string, amount int, reason string) (Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var b Balance
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := ensureBalance(ctx, tx, userID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`UPDATE user_currency
			 SET gems = gems + $2,
			     total_gems_earned = total_gems_earned + $2,
			     updated_at = NOW()
			 WHERE user_id = $1
			 RETURNING user_id, gems, total_gems_earned, total_gems_spent`,
			userID, amount,
		).Scan(&b.UserID, &b.Gems, &b.TotalGemsEarned, &b.TotalGemsSpent); err != nil {
			return err
		}
		return recordTransaction(ctx, tx, userID, amount, reason)
	})
	if err != nil {
		return Balance{}, fmt.Errorf("credit gems: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Purchase(ctx context.Context, userID string, item ShopItem) (PurchaseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var res PurchaseResult
	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := ensureBalance(ctx, tx, userID); err != nil {
			return err
		}

		// Check-and-debit in one statement: zero rows means the balance
		// was below the price.
		var newGems int
		err := tx.QueryRow(ctx,
			`UPDATE user_currency
			 SET gems = gems - $2,
			     total_gems_spent = total_gems_spent + $2,
			     updated_at = NOW()
			 WHERE user_id = $1 AND gems >= $2
			 RETURNING gems`,
			userID, item.PriceGems,
		).Scan(&newGems)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("item %s costs %d: %w", item.ID, item.PriceGems, ErrInsufficientFunds)
		}
		if err != nil {
			return fmt.Errorf("debit gems: %w", err)
		}

		if item.MaxInventory > 0 {
			var qty int
			err := tx.QueryRow(ctx,
				`SELECT quantity FROM user_inventory
				 WHERE user_id = $1 AND item_id = $2
				 FOR UPDATE`,
				userID, item.ID,
			).Scan(&qty)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("check inventory: %w", err)
			}
			if qty >= item.MaxInventory {
				// Returning an error rolls the debit back with the rest
				// of the transaction.
				return fmt.Errorf("item %s: %w", item.ID, ErrInventoryFull)
			}
		}

		var quantity int
		if err := tx.QueryRow(ctx,
			`INSERT INTO user_inventory (user_id, item_id, quantity, last_acquired_at)
			 VALUES ($1, $2, 1, NOW())
			 ON CONFLICT (user_id, item_id)
			 DO UPDATE SET quantity = user_inventory.quantity + 1, last_acquired_at = NOW()
			 RETURNING quantity`,
			userID, item.ID,
		).Scan(&quantity); err != nil {
			return fmt.Errorf("upsert inventory: %w", err)
		}

		if err := recordTransaction(ctx, tx, userID, -item.PriceGems, "purchase:"+item.ID); err != nil {
			return err
		}

		res = PurchaseResult{Item: item, NewGemBalance: newGems, Quantity: quantity}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	return res, nil
}

func (s *PostgresStore) Inventory(ctx context.Context, userID string) ([]InventoryItem, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT item_id, quantity, last_acquired_at
		 FROM user_inventory
		 WHERE user_id = $1 AND quantity > 0
		 ORDER BY item_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		var item InventoryItem
		if err := rows.Scan(&item.ItemID, &item.Quantity, &item.LastAcquiredAt); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Transactions(ctx context.Context, userID string) ([]GemTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, amount, reason, created_at
		 FROM gem_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query gem transactions: %w", err)
	}
	defer rows.Close()

	var txs []GemTransaction
	for rows.Next() {
		var t GemTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gem transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gem transactions: %w", err)
	}
	return txs, nil
}

func recordTransaction(ctx context.Context, tx pgx.Tx, userID string, amount int, reason string) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO gem_transactions (id, user_id, amount, reason)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), userID, amount, reason,
	); err != nil {
		return fmt.Errorf("record gem transaction: %w", err)
	}
	return nil
}

func ensureBalance(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_currency (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return fmt.Errorf("ensure balance: %w", err)
	}
	return nil
}
