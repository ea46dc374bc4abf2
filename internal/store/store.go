// Package store implements the ledger: the durable combination of
// account balances and card lots. Three backends share one interface:
// SQLite (default), Postgres, and an in-memory store for tests and
// throwaway runs.
package store

import (
	"context"

	"github.com/chsco430/cardstore/internal/domain"
)

// Tx is the set of ledger operations available inside a transaction.
// Every command the engine executes runs against a single Tx, so the
// whole check-then-mutate sequence of a BUY or SELL is one atomic unit
// with respect to all other connections.
//
// Balance pre-validation is the caller's job: AdjustBalance applies any
// delta without checking the result. TransferStock, by contrast, must
// inspect the source lot to copy its type and rarity, so it also
// refuses to drive a count negative.
type Tx interface {
	// AccountByID returns the account with the given ID, or
	// domain.ErrAccountNotFound.
	AccountByID(id int64) (*domain.Account, error)

	// AccountByCredentials returns the account whose username and
	// password both match exactly, or domain.ErrInvalidCredentials.
	AccountByCredentials(username, password string) (*domain.Account, error)

	// SetLoggedIn updates the account's login flag.
	SetLoggedIn(id int64, loggedIn bool) error

	// AdjustBalance adds delta (positive or negative) to the account's
	// balance in cents.
	AdjustBalance(id int64, delta int64) error

	// MarketStock returns the count of the market (unowned) lot for the
	// named card, or domain.ErrCardNotFound when no such lot exists.
	MarketStock(name string) (int64, error)

	// OwnedStock returns the count of the named card's lot owned by the
	// given user, or domain.ErrCardNotFound.
	OwnedStock(userID int64, name string) (int64, error)

	// TransferStock moves qty of the named card from one owner's lot to
	// another's as a single step. A nil owner means the market. The
	// destination lot is created if absent, copying type and rarity
	// from the source lot. Returns domain.ErrCardNotFound when the
	// source lot does not exist and domain.ErrInsufficientStock when it
	// holds fewer than qty.
	TransferStock(name string, qty int64, from, to *int64) error

	// ListMarket returns all market lots ordered by card name.
	ListMarket() ([]domain.Lot, error)

	// Lookup returns the market lot for the named card when one exists
	// with stock remaining. When it does not and userID is non-nil, the
	// caller's own lot is returned instead. Otherwise
	// domain.ErrCardNotFound.
	Lookup(name string, userID *int64) (*domain.Lot, error)

	// LoggedInUsernames returns the usernames of all accounts whose
	// login flag is set, in ascending username order.
	LoggedInUsernames() ([]string, error)

	// AccountCount returns the number of provisioned accounts.
	AccountCount() (int64, error)

	// CreateAccount provisions a new account and fills in its ID.
	CreateAccount(a *domain.Account) error

	// CreateLot creates a new lot and fills in its ID.
	CreateLot(l *domain.Lot) error
}

// Ledger is a transactional ledger backend. WithTx runs fn inside one
// transaction: if fn returns an error the transaction's mutations are
// discarded, otherwise they commit atomically. Concurrent WithTx calls
// are linearizable: no caller ever observes another caller's
// partially-applied mutations.
type Ledger interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	Close() error
}
