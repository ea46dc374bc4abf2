package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/sqlitepool"
)

// schema is created per connection on first use. CREATE IF NOT EXISTS
// makes schema bootstrap idempotent across restarts and pool members.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL,
	balance_cents INTEGER NOT NULL DEFAULT 0,
	logged_in INTEGER NOT NULL DEFAULT 0,
	is_root INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cards (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	rarity TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
	owner_id INTEGER REFERENCES users(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS cards_name_owner ON cards (name, owner_id) WHERE owner_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS cards_name_market ON cards (name) WHERE owner_id IS NULL;
CREATE INDEX IF NOT EXISTS cards_name ON cards (name);
`

// SQLite is the default Ledger backend: a pooled SQLite database with
// one IMMEDIATE transaction per command. IMMEDIATE takes the write lock
// up front, so concurrent commands serialize at the store exactly once
// instead of deadlocking on lock upgrades mid-command.
type SQLite struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// SQLiteConfig holds the parameters for opening the SQLite ledger.
type SQLiteConfig struct {
	// Path is the database file, created if absent. Tests use a file
	// under t.TempDir for a throwaway ledger.
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// OpenSQLite opens (and if necessary creates) the SQLite ledger.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	return &SQLite{pool: pool, logger: logger}, nil
}

// WithTx borrows a connection and runs fn inside an IMMEDIATE
// transaction. An error from fn rolls the transaction back.
func (s *SQLite) WithTx(ctx context.Context, fn func(Tx) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer s.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("ledger: begin transaction: %w", err)
	}
	defer endTx(&err)

	return fn(&sqliteTx{conn: conn})
}

// Close closes the underlying connection pool exactly once.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

type sqliteTx struct {
	conn *sqlite.Conn
}

func scanAccount(stmt *sqlite.Stmt) *domain.Account {
	return &domain.Account{
		ID:       stmt.ColumnInt64(0),
		Username: stmt.ColumnText(1),
		Password: stmt.ColumnText(2),
		Balance:  stmt.ColumnInt64(3),
		LoggedIn: stmt.ColumnInt64(4) != 0,
		Root:     stmt.ColumnInt64(5) != 0,
	}
}

const accountColumns = "id, username, password, balance_cents, logged_in, is_root"

func (t *sqliteTx) AccountByID(id int64) (*domain.Account, error) {
	var acct *domain.Account
	err := sqlitex.Execute(t.conn,
		"SELECT "+accountColumns+" FROM users WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				acct = scanAccount(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ledger: account by id: %w", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound
	}
	return acct, nil
}

func (t *sqliteTx) AccountByCredentials(username, password string) (*domain.Account, error) {
	var acct *domain.Account
	err := sqlitex.Execute(t.conn,
		"SELECT "+accountColumns+" FROM users WHERE username = ? AND password = ?",
		&sqlitex.ExecOptions{
			Args: []any{username, password},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				acct = scanAccount(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ledger: account by credentials: %w", err)
	}
	if acct == nil {
		return nil, domain.ErrInvalidCredentials
	}
	return acct, nil
}

func (t *sqliteTx) SetLoggedIn(id int64, loggedIn bool) error {
	v := 0
	if loggedIn {
		v = 1
	}
	err := sqlitex.Execute(t.conn,
		"UPDATE users SET logged_in = ? WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{v, id}})
	if err != nil {
		return fmt.Errorf("ledger: set logged_in: %w", err)
	}
	if t.conn.Changes() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (t *sqliteTx) AdjustBalance(id int64, delta int64) error {
	err := sqlitex.Execute(t.conn,
		"UPDATE users SET balance_cents = balance_cents + ? WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{delta, id}})
	if err != nil {
		return fmt.Errorf("ledger: adjust balance: %w", err)
	}
	if t.conn.Changes() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// lotByOwner fetches the (name, owner) lot. A nil owner selects the
// market lot.
func (t *sqliteTx) lotByOwner(name string, owner *int64) (*domain.Lot, error) {
	query := "SELECT id, name, type, rarity, count, owner_id FROM cards WHERE name = ? AND owner_id IS NULL"
	args := []any{name}
	if owner != nil {
		query = "SELECT id, name, type, rarity, count, owner_id FROM cards WHERE name = ? AND owner_id = ?"
		args = append(args, *owner)
	}

	var lot *domain.Lot
	err := sqlitex.Execute(t.conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			l := domain.Lot{
				ID:     stmt.ColumnInt64(0),
				Name:   stmt.ColumnText(1),
				Type:   stmt.ColumnText(2),
				Rarity: stmt.ColumnText(3),
				Count:  stmt.ColumnInt64(4),
			}
			if stmt.ColumnType(5) != sqlite.TypeNull {
				ownerID := stmt.ColumnInt64(5)
				l.OwnerID = &ownerID
			}
			lot = &l
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: lot lookup: %w", err)
	}
	if lot == nil {
		return nil, domain.ErrCardNotFound
	}
	return lot, nil
}

func (t *sqliteTx) MarketStock(name string) (int64, error) {
	lot, err := t.lotByOwner(name, nil)
	if err != nil {
		return 0, err
	}
	return lot.Count, nil
}

func (t *sqliteTx) OwnedStock(userID int64, name string) (int64, error) {
	lot, err := t.lotByOwner(name, &userID)
	if err != nil {
		return 0, err
	}
	return lot.Count, nil
}

func (t *sqliteTx) TransferStock(name string, qty int64, from, to *int64) error {
	src, err := t.lotByOwner(name, from)
	if err != nil {
		return err
	}
	if src.Count < qty {
		return domain.ErrInsufficientStock
	}

	err = sqlitex.Execute(t.conn,
		"UPDATE cards SET count = count - ? WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{qty, src.ID}})
	if err != nil {
		return fmt.Errorf("ledger: transfer debit: %w", err)
	}

	dst, err := t.lotByOwner(name, to)
	switch {
	case err == nil:
		err = sqlitex.Execute(t.conn,
			"UPDATE cards SET count = count + ? WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{qty, dst.ID}})
		if err != nil {
			return fmt.Errorf("ledger: transfer credit: %w", err)
		}
	case err == domain.ErrCardNotFound:
		var ownerArg any
		if to != nil {
			ownerArg = *to
		}
		err = sqlitex.Execute(t.conn,
			"INSERT INTO cards (name, type, rarity, count, owner_id) VALUES (?, ?, ?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{name, src.Type, src.Rarity, qty, ownerArg}})
		if err != nil {
			return fmt.Errorf("ledger: transfer create lot: %w", err)
		}
	default:
		return err
	}
	return nil
}

func (t *sqliteTx) ListMarket() ([]domain.Lot, error) {
	lots := []domain.Lot{}
	err := sqlitex.Execute(t.conn,
		"SELECT id, name, type, rarity, count FROM cards WHERE owner_id IS NULL ORDER BY name",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				lots = append(lots, domain.Lot{
					ID:     stmt.ColumnInt64(0),
					Name:   stmt.ColumnText(1),
					Type:   stmt.ColumnText(2),
					Rarity: stmt.ColumnText(3),
					Count:  stmt.ColumnInt64(4),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ledger: list market: %w", err)
	}
	return lots, nil
}

// Lookup prefers the market lot; an exhausted market lot behaves as
// absent, so the caller's own lot (if any) answers instead.
func (t *sqliteTx) Lookup(name string, userID *int64) (*domain.Lot, error) {
	lot, err := t.lotByOwner(name, nil)
	switch {
	case err == nil && lot.Count > 0:
		return lot, nil
	case err != nil && err != domain.ErrCardNotFound:
		return nil, err
	}
	if userID != nil {
		return t.lotByOwner(name, userID)
	}
	return nil, domain.ErrCardNotFound
}

func (t *sqliteTx) LoggedInUsernames() ([]string, error) {
	names := []string{}
	err := sqlitex.Execute(t.conn,
		"SELECT username FROM users WHERE logged_in = 1 ORDER BY username",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				names = append(names, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ledger: logged-in usernames: %w", err)
	}
	return names, nil
}

func (t *sqliteTx) AccountCount() (int64, error) {
	var count int64
	err := sqlitex.Execute(t.conn, "SELECT COUNT(*) FROM users", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: account count: %w", err)
	}
	return count, nil
}

func (t *sqliteTx) CreateAccount(a *domain.Account) error {
	loggedIn, isRoot := 0, 0
	if a.LoggedIn {
		loggedIn = 1
	}
	if a.Root {
		isRoot = 1
	}
	err := sqlitex.Execute(t.conn,
		"INSERT INTO users (username, password, balance_cents, logged_in, is_root) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{a.Username, a.Password, a.Balance, loggedIn, isRoot}})
	if err != nil {
		return fmt.Errorf("ledger: create account: %w", err)
	}
	a.ID = t.conn.LastInsertRowID()
	return nil
}

func (t *sqliteTx) CreateLot(l *domain.Lot) error {
	var ownerArg any
	if l.OwnerID != nil {
		ownerArg = *l.OwnerID
	}
	err := sqlitex.Execute(t.conn,
		"INSERT INTO cards (name, type, rarity, count, owner_id) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{l.Name, l.Type, l.Rarity, l.Count, ownerArg}})
	if err != nil {
		return fmt.Errorf("ledger: create lot: %w", err)
	}
	l.ID = t.conn.LastInsertRowID()
	return nil
}
