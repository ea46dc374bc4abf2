package engine

import (
	"context"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/store"
)

// AuthService handles credential checks and the persistent login flag.
// The per-connection session state itself lives with the connection;
// this service only touches the ledger.
type AuthService struct {
	ledger store.Ledger
}

// NewAuthService creates an AuthService backed by the given ledger.
func NewAuthService(ledger store.Ledger) *AuthService {
	return &AuthService{ledger: ledger}
}

// Login verifies the credentials by exact match, marks the account
// logged in, and returns it. Returns domain.ErrInvalidCredentials when
// no account matches.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Account, error) {
	var acct *domain.Account
	err := s.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		acct, err = tx.AccountByCredentials(username, password)
		if err != nil {
			return err
		}
		return tx.SetLoggedIn(acct.ID, true)
	})
	if err != nil {
		return nil, err
	}
	acct.LoggedIn = true
	return acct, nil
}

// Account returns the account with the given ID.
func (s *AuthService) Account(ctx context.Context, userID int64) (*domain.Account, error) {
	var acct *domain.Account
	err := s.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		acct, err = tx.AccountByID(userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Logout clears the account's login flag.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	return s.ledger.WithTx(ctx, func(tx store.Tx) error {
		return tx.SetLoggedIn(userID, false)
	})
}

// Who returns the usernames of all currently logged-in accounts.
func (s *AuthService) Who(ctx context.Context) ([]string, error) {
	var names []string
	err := s.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		names, err = tx.LoggedInUsernames()
		return err
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
