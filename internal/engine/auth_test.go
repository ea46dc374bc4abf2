package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/store"
)

func newTestAuth(t *testing.T) (*AuthService, store.Ledger, domain.Account) {
	t.Helper()
	ledger := store.NewMemory()
	acct := domain.Account{Username: "alice", Password: "secret", Balance: 1000}
	err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateAccount(&acct)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return NewAuthService(ledger), ledger, acct
}

func TestLogin_SetsLoginFlag(t *testing.T) {
	auth, ledger, acct := newTestAuth(t)

	got, err := auth.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != acct.ID {
		t.Errorf("ID = %d, want %d", got.ID, acct.ID)
	}

	err = ledger.WithTx(context.Background(), func(tx store.Tx) error {
		stored, err := tx.AccountByID(acct.ID)
		if err != nil {
			return err
		}
		if !stored.LoggedIn {
			t.Error("login flag not set")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestLogin_WrongCredentials(t *testing.T) {
	auth, ledger, acct := newTestAuth(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "alice", "wrong"},
		{"wrong case", "alice", "Secret"},
		{"unknown user", "mallory", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Login(context.Background(), tt.username, tt.password)
			if !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}

	// Failed logins leave the login flag alone.
	err := ledger.WithTx(context.Background(), func(tx store.Tx) error {
		stored, err := tx.AccountByID(acct.ID)
		if err != nil {
			return err
		}
		if stored.LoggedIn {
			t.Error("login flag set by failed login")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestLogoutClearsFlagAndWho(t *testing.T) {
	auth, _, acct := newTestAuth(t)

	if _, err := auth.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	names, err := auth.Who(context.Background())
	if err != nil {
		t.Fatalf("Who: %v", err)
	}
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("Who = %v, want [alice]", names)
	}

	if err := auth.Logout(context.Background(), acct.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	names, err = auth.Who(context.Background())
	if err != nil {
		t.Fatalf("Who: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("Who after logout = %v, want empty", names)
	}
}
