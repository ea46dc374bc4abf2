package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/store"
)

// backends runs each test against every Ledger implementation so the
// memory, sqlite (and, by the shared contract, postgres) backends stay
// interchangeable.
func backends(t *testing.T) map[string]store.Ledger {
	t.Helper()

	sqlite, err := store.OpenSQLite(store.SQLiteConfig{
		Path:     filepath.Join(t.TempDir(), "ledger.db"),
		PoolSize: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]store.Ledger{
		"memory": store.NewMemory(),
		"sqlite": sqlite,
	}
}

func seedAccount(t *testing.T, ledger store.Ledger, a domain.Account) domain.Account {
	t.Helper()
	err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateAccount(&a)
	})
	require.NoError(t, err)
	return a
}

func seedLot(t *testing.T, ledger store.Ledger, l domain.Lot) domain.Lot {
	t.Helper()
	err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateLot(&l)
	})
	require.NoError(t, err)
	return l
}

func TestAccountByCredentials_ExactMatch(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "alice", Password: "secret", Balance: 1000})

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				got, err := tx.AccountByCredentials("alice", "secret")
				require.NoError(t, err)
				require.Equal(t, acct.ID, got.ID)
				require.Equal(t, int64(1000), got.Balance)

				_, err = tx.AccountByCredentials("alice", "Secret")
				require.ErrorIs(t, err, domain.ErrInvalidCredentials)

				_, err = tx.AccountByCredentials("nobody", "secret")
				require.ErrorIs(t, err, domain.ErrInvalidCredentials)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestAdjustBalanceAndLoginFlag(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "bob", Password: "pw", Balance: 500})

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				require.NoError(t, tx.AdjustBalance(acct.ID, -200))
				require.NoError(t, tx.SetLoggedIn(acct.ID, true))
				return nil
			})
			require.NoError(t, err)

			err = ledger.WithTx(context.Background(), func(tx store.Tx) error {
				got, err := tx.AccountByID(acct.ID)
				require.NoError(t, err)
				require.Equal(t, int64(300), got.Balance)
				require.True(t, got.LoggedIn)

				names, err := tx.LoggedInUsernames()
				require.NoError(t, err)
				require.Equal(t, []string{"bob"}, names)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestAdjustBalance_UnknownAccount(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				return tx.AdjustBalance(999, 100)
			})
			require.ErrorIs(t, err, domain.ErrAccountNotFound)
		})
	}
}

func TestTransferStock_MarketToUser(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "alice", Password: "pw"})
			seedLot(t, ledger, domain.Lot{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: 10})

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				return tx.TransferStock("Pikachu", 4, nil, &acct.ID)
			})
			require.NoError(t, err)

			err = ledger.WithTx(context.Background(), func(tx store.Tx) error {
				market, err := tx.MarketStock("Pikachu")
				require.NoError(t, err)
				require.Equal(t, int64(6), market)

				owned, err := tx.OwnedStock(acct.ID, "Pikachu")
				require.NoError(t, err)
				require.Equal(t, int64(4), owned)

				// The created lot copies type and rarity from the source.
				lot, err := tx.Lookup("Pikachu", &acct.ID)
				require.NoError(t, err)
				require.Equal(t, "Electric", lot.Type)
				require.Equal(t, "Common", lot.Rarity)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestTransferStock_IncrementsExistingLot(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "alice", Password: "pw"})
			seedLot(t, ledger, domain.Lot{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: 10})

			for range 2 {
				err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
					return tx.TransferStock("Pikachu", 3, nil, &acct.ID)
				})
				require.NoError(t, err)
			}

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				owned, err := tx.OwnedStock(acct.ID, "Pikachu")
				require.NoError(t, err)
				require.Equal(t, int64(6), owned)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestTransferStock_Failures(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "alice", Password: "pw"})
			seedLot(t, ledger, domain.Lot{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: 2})

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				return tx.TransferStock("Missingno", 1, nil, &acct.ID)
			})
			require.ErrorIs(t, err, domain.ErrCardNotFound)

			err = ledger.WithTx(context.Background(), func(tx store.Tx) error {
				return tx.TransferStock("Pikachu", 3, nil, &acct.ID)
			})
			require.ErrorIs(t, err, domain.ErrInsufficientStock)

			// Failed transfers leave the market untouched.
			err = ledger.WithTx(context.Background(), func(tx store.Tx) error {
				market, err := tx.MarketStock("Pikachu")
				require.NoError(t, err)
				require.Equal(t, int64(2), market)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "alice", Password: "pw", Balance: 100})
			seedLot(t, ledger, domain.Lot{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: 10})

			boom := domain.ErrInsufficientFunds
			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				require.NoError(t, tx.TransferStock("Pikachu", 5, nil, &acct.ID))
				require.NoError(t, tx.AdjustBalance(acct.ID, -50))
				return boom
			})
			require.ErrorIs(t, err, boom)

			err = ledger.WithTx(context.Background(), func(tx store.Tx) error {
				market, err := tx.MarketStock("Pikachu")
				require.NoError(t, err)
				require.Equal(t, int64(10), market)

				got, err := tx.AccountByID(acct.ID)
				require.NoError(t, err)
				require.Equal(t, int64(100), got.Balance)

				_, err = tx.OwnedStock(acct.ID, "Pikachu")
				require.ErrorIs(t, err, domain.ErrCardNotFound)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestLookup_MarketTakesPrecedence(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "alice", Password: "pw"})
			seedLot(t, ledger, domain.Lot{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: 10})
			seedLot(t, ledger, domain.Lot{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: 2, OwnerID: &acct.ID})
			seedLot(t, ledger, domain.Lot{Name: "Eevee", Type: "Normal", Rarity: "Common", Count: 1, OwnerID: &acct.ID})

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				// Market and owned lot share a name: market wins.
				lot, err := tx.Lookup("Pikachu", &acct.ID)
				require.NoError(t, err)
				require.False(t, lot.Owned())
				require.Equal(t, int64(10), lot.Count)

				// Only an owned lot exists: visible to its owner...
				lot, err = tx.Lookup("Eevee", &acct.ID)
				require.NoError(t, err)
				require.True(t, lot.Owned())

				// ...but not to an anonymous caller.
				_, err = tx.Lookup("Eevee", nil)
				require.ErrorIs(t, err, domain.ErrCardNotFound)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestLookup_ExhaustedMarketFallsBackToOwned(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "alice", Password: "pw"})
			seedLot(t, ledger, domain.Lot{Name: "Mewtwo", Type: "Psychic", Rarity: "Legendary", Count: 1})

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				return tx.TransferStock("Mewtwo", 1, nil, &acct.ID)
			})
			require.NoError(t, err)

			err = ledger.WithTx(context.Background(), func(tx store.Tx) error {
				// The drained market lot no longer answers; the owner's
				// lot does.
				lot, err := tx.Lookup("Mewtwo", &acct.ID)
				require.NoError(t, err)
				require.True(t, lot.Owned())
				require.Equal(t, int64(1), lot.Count)

				_, err = tx.Lookup("Mewtwo", nil)
				require.ErrorIs(t, err, domain.ErrCardNotFound)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestListMarket_OrderedByName(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := seedAccount(t, ledger, domain.Account{Username: "alice", Password: "pw"})
			seedLot(t, ledger, domain.Lot{Name: "Pikachu", Type: "Electric", Rarity: "Common", Count: 10})
			seedLot(t, ledger, domain.Lot{Name: "Bulbasaur", Type: "Grass", Rarity: "Common", Count: 7})
			seedLot(t, ledger, domain.Lot{Name: "Charizard", Type: "Fire", Rarity: "Rare", Count: 3, OwnerID: &acct.ID})

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				lots, err := tx.ListMarket()
				require.NoError(t, err)
				require.Len(t, lots, 2)
				require.Equal(t, "Bulbasaur", lots[0].Name)
				require.Equal(t, "Pikachu", lots[1].Name)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestSeedDemo_Idempotent(t *testing.T) {
	for name, ledger := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SeedDemo(context.Background(), ledger))
			require.NoError(t, store.SeedDemo(context.Background(), ledger))

			err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
				count, err := tx.AccountCount()
				require.NoError(t, err)
				require.Equal(t, int64(3), count)

				lots, err := tx.ListMarket()
				require.NoError(t, err)
				require.Len(t, lots, 4)
				return nil
			})
			require.NoError(t, err)
		})
	}
}
