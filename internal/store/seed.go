package store

import (
	"context"

	"github.com/chsco430/cardstore/internal/domain"
)

// SeedDemo provisions a small demo dataset (a root account, two
// traders, and a handful of market lots) when the ledger holds no
// accounts yet. It stands in for out-of-band provisioning in local
// runs and is a no-op on a populated store.
func SeedDemo(ctx context.Context, ledger Ledger) error {
	return ledger.WithTx(ctx, func(tx Tx) error {
		count, err := tx.AccountCount()
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		accounts := []domain.Account{
			{Username: "admin", Password: "admin", Balance: 0, Root: true},
			{Username: "alice", Password: "alice123", Balance: 100000},
			{Username: "bob", Password: "bob123", Balance: 100000},
		}
		for i := range accounts {
			if err := tx.CreateAccount(&accounts[i]); err != nil {
				return err
			}
		}

		lots := []domain.Lot{
			{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: 10},
			{Name: "Charizard", Type: "Fire", Rarity: "Rare", Count: 3},
			{Name: "Bulbasaur", Type: "Grass", Rarity: "Common", Count: 7},
			{Name: "Mewtwo", Type: "Psychic", Rarity: "Legendary", Count: 1},
		}
		for i := range lots {
			if err := tx.CreateLot(&lots[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
