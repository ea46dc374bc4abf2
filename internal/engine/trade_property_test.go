package engine

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/store"
)

// Property: for any sequence of BUY/SELL/DEPOSIT commands against a
// fixed starting stock, no balance and no lot count ever goes negative,
// and total stock per card name is conserved.

func TestProperty_TradeSequencesPreserveInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		ledger := store.NewMemory()
		e := NewTradeEngine(ledger, DefaultUnitPrice)

		startBalance := rapid.Int64Range(0, 200000).Draw(t, "startBalance")
		startStock := rapid.Int64Range(0, 30).Draw(t, "startStock")

		acct := domain.Account{Username: "alice", Password: "pw", Balance: startBalance}
		if err := ledger.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.CreateAccount(&acct); err != nil {
				return err
			}
			return tx.CreateLot(&domain.Lot{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: startStock})
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}

		numOps := rapid.IntRange(1, 40).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			op := rapid.SampledFrom([]string{"buy", "sell", "deposit"}).Draw(t, "op")
			qty := rapid.Int64Range(1, 10).Draw(t, "qty")

			var err error
			switch op {
			case "buy":
				_, err = e.Buy(ctx, acct.ID, "Pikachu", qty)
			case "sell":
				_, err = e.Sell(ctx, acct.ID, "Pikachu", qty)
			case "deposit":
				_, err = e.Deposit(ctx, acct.ID, qty*100)
			}
			// Rejections are expected along the way; only the
			// invariants below matter.
			_ = err

			balance, berr := e.Balance(ctx, acct.ID)
			if berr != nil {
				t.Fatalf("balance read: %v", berr)
			}
			if balance < 0 {
				t.Fatalf("balance went negative after %s %d: %d", op, qty, balance)
			}
		}

		var total int64
		if err := ledger.WithTx(ctx, func(tx store.Tx) error {
			if count, err := tx.MarketStock("Pikachu"); err == nil {
				if count < 0 {
					t.Fatalf("market count negative: %d", count)
				}
				total += count
			}
			if count, err := tx.OwnedStock(acct.ID, "Pikachu"); err == nil {
				if count < 0 {
					t.Fatalf("owned count negative: %d", count)
				}
				total += count
			}
			return nil
		}); err != nil {
			t.Fatalf("read counts: %v", err)
		}

		if total != startStock {
			t.Fatalf("stock not conserved: started %d, ended %d", startStock, total)
		}
	})
}
