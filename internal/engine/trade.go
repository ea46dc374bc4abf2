// Package engine implements the trading core: purchases, sales, and
// deposits against the ledger, plus login/logout session support. Every
// operation runs its whole check-then-mutate sequence inside one ledger
// transaction, so concurrent commands touching the same user or lot are
// linearizable.
package engine

import (
	"context"
	"fmt"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/store"
)

// DefaultUnitPrice is the flat per-card price in cents ($50.00). Every
// card trades at the same unit price regardless of type or rarity.
const DefaultUnitPrice int64 = 5000

// PurchaseSummary reports the result of a completed purchase.
type PurchaseSummary struct {
	Name        string
	Quantity    int64
	TotalCost   int64 // cents
	NewBalance  int64 // cents
	MarketStock int64 // remaining market stock after the purchase
}

// SaleSummary reports the result of a completed sale.
type SaleSummary struct {
	Name           string
	Quantity       int64
	Proceeds       int64 // cents
	NewBalance     int64 // cents
	RemainingOwned int64
}

// TradeEngine executes trades against a Ledger at a flat unit price.
type TradeEngine struct {
	ledger    store.Ledger
	unitPrice int64
}

// NewTradeEngine creates a TradeEngine. A non-positive unitPrice falls
// back to DefaultUnitPrice.
func NewTradeEngine(ledger store.Ledger, unitPrice int64) *TradeEngine {
	if unitPrice <= 0 {
		unitPrice = DefaultUnitPrice
	}
	return &TradeEngine{ledger: ledger, unitPrice: unitPrice}
}

// UnitPrice returns the flat per-card price in cents.
func (e *TradeEngine) UnitPrice() int64 {
	return e.unitPrice
}

// Buy purchases qty cards from the market lot for the given user.
// Stock is checked before funds; both checks and both mutations happen
// in one transaction, so two concurrent buyers can never both draw down
// stock that only covers one of them.
func (e *TradeEngine) Buy(ctx context.Context, userID int64, name string, qty int64) (*PurchaseSummary, error) {
	if qty <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	var summary *PurchaseSummary
	err := e.ledger.WithTx(ctx, func(tx store.Tx) error {
		stock, err := tx.MarketStock(name)
		if err != nil {
			return err
		}
		if stock < qty {
			return domain.ErrInsufficientStock
		}

		acct, err := tx.AccountByID(userID)
		if err != nil {
			return err
		}
		cost := qty * e.unitPrice
		if acct.Balance < cost {
			return domain.ErrInsufficientFunds
		}

		if err := tx.TransferStock(name, qty, nil, &userID); err != nil {
			return err
		}
		if err := tx.AdjustBalance(userID, -cost); err != nil {
			return err
		}

		summary = &PurchaseSummary{
			Name:        name,
			Quantity:    qty,
			TotalCost:   cost,
			NewBalance:  acct.Balance - cost,
			MarketStock: stock - qty,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Sell sells qty cards from the user's owned lot back to the market lot
// and credits the proceeds. The sold quantity returns to circulation,
// so total stock per card name is conserved across a sale.
func (e *TradeEngine) Sell(ctx context.Context, userID int64, name string, qty int64) (*SaleSummary, error) {
	if qty <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	var summary *SaleSummary
	err := e.ledger.WithTx(ctx, func(tx store.Tx) error {
		owned, err := tx.OwnedStock(userID, name)
		if err != nil {
			return err
		}
		if owned < qty {
			return domain.ErrInsufficientStock
		}

		acct, err := tx.AccountByID(userID)
		if err != nil {
			return err
		}

		if err := tx.TransferStock(name, qty, &userID, nil); err != nil {
			return err
		}
		proceeds := qty * e.unitPrice
		if err := tx.AdjustBalance(userID, proceeds); err != nil {
			return err
		}

		summary = &SaleSummary{
			Name:           name,
			Quantity:       qty,
			Proceeds:       proceeds,
			NewBalance:     acct.Balance + proceeds,
			RemainingOwned: owned - qty,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Deposit credits the user's balance by amount cents. Non-positive
// amounts are rejected: a deposit can never be used to drain a balance.
func (e *TradeEngine) Deposit(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, &domain.ValidationError{Message: fmt.Sprintf("deposit amount must be positive, got %s", domain.FormatCents(amount))}
	}

	var newBalance int64
	err := e.ledger.WithTx(ctx, func(tx store.Tx) error {
		acct, err := tx.AccountByID(userID)
		if err != nil {
			return err
		}
		if err := tx.AdjustBalance(userID, amount); err != nil {
			return err
		}
		newBalance = acct.Balance + amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Balance returns the user's balance in cents.
func (e *TradeEngine) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := e.ledger.WithTx(ctx, func(tx store.Tx) error {
		acct, err := tx.AccountByID(userID)
		if err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ListMarket returns all market lots in name order.
func (e *TradeEngine) ListMarket(ctx context.Context) ([]domain.Lot, error) {
	var lots []domain.Lot
	err := e.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		lots, err = tx.ListMarket()
		return err
	})
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// Lookup finds the named card's market lot, falling back to the
// caller's own lot when userID is non-nil and no market lot exists.
func (e *TradeEngine) Lookup(ctx context.Context, name string, userID *int64) (*domain.Lot, error) {
	var lot *domain.Lot
	err := e.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		lot, err = tx.Lookup(name, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}
