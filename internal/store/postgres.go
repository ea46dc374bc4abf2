package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/chsco430/cardstore/internal/domain"
)

// Postgres is the Ledger backend for shared deployments. Schema lives
// in migrations/ and is applied with cmd/migrator. Rows read for
// mutation are locked with SELECT ... FOR UPDATE, so two commands
// touching the same user or lot serialize at the database.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgres connects to the database and verifies the connection.
func OpenPostgres(dbURL string, logger *slog.Logger) (*Postgres, error) {
	const op = "store.postgres.Open"

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Postgres{db: db, logger: logger}, nil
}

// WithTx runs fn inside a database transaction, rolling back when fn
// returns an error.
func (p *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	const op = "store.postgres.WithTx"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close closes the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

const pgAccountColumns = "id, username, password, balance_cents, logged_in, is_root"

func (t *pgTx) scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Username, &a.Password, &a.Balance, &a.LoggedIn, &a.Root)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) AccountByID(id int64) (*domain.Account, error) {
	const op = "store.postgres.AccountByID"

	row := t.tx.QueryRowContext(t.ctx,
		"SELECT "+pgAccountColumns+" FROM users WHERE id = $1 FOR UPDATE", id)
	a, err := t.scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (t *pgTx) AccountByCredentials(username, password string) (*domain.Account, error) {
	const op = "store.postgres.AccountByCredentials"

	row := t.tx.QueryRowContext(t.ctx,
		"SELECT "+pgAccountColumns+" FROM users WHERE username = $1 AND password = $2 FOR UPDATE",
		username, password)
	a, err := t.scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (t *pgTx) SetLoggedIn(id int64, loggedIn bool) error {
	const op = "store.postgres.SetLoggedIn"

	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE users SET logged_in = $1 WHERE id = $2", loggedIn, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRows(res, domain.ErrAccountNotFound)
}

func (t *pgTx) AdjustBalance(id int64, delta int64) error {
	const op = "store.postgres.AdjustBalance"

	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE users SET balance_cents = balance_cents + $1 WHERE id = $2", delta, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRows(res, domain.ErrAccountNotFound)
}

func requireRows(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func (t *pgTx) lotByOwner(name string, owner *int64) (*domain.Lot, error) {
	const op = "store.postgres.lotByOwner"

	query := "SELECT id, name, type, rarity, count, owner_id FROM cards WHERE name = $1 AND owner_id IS NULL FOR UPDATE"
	args := []any{name}
	if owner != nil {
		query = "SELECT id, name, type, rarity, count, owner_id FROM cards WHERE name = $1 AND owner_id = $2 FOR UPDATE"
		args = append(args, *owner)
	}

	var l domain.Lot
	var ownerID sql.NullInt64
	err := t.tx.QueryRowContext(t.ctx, query, args...).
		Scan(&l.ID, &l.Name, &l.Type, &l.Rarity, &l.Count, &ownerID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ownerID.Valid {
		l.OwnerID = &ownerID.Int64
	}
	return &l, nil
}

func (t *pgTx) MarketStock(name string) (int64, error) {
	lot, err := t.lotByOwner(name, nil)
	if err != nil {
		return 0, err
	}
	return lot.Count, nil
}

func (t *pgTx) OwnedStock(userID int64, name string) (int64, error) {
	lot, err := t.lotByOwner(name, &userID)
	if err != nil {
		return 0, err
	}
	return lot.Count, nil
}

func (t *pgTx) TransferStock(name string, qty int64, from, to *int64) error {
	const op = "store.postgres.TransferStock"

	src, err := t.lotByOwner(name, from)
	if err != nil {
		return err
	}
	if src.Count < qty {
		return domain.ErrInsufficientStock
	}

	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE cards SET count = count - $1 WHERE id = $2", qty, src.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dst, err := t.lotByOwner(name, to)
	switch {
	case err == nil:
		if _, err := t.tx.ExecContext(t.ctx,
			"UPDATE cards SET count = count + $1 WHERE id = $2", qty, dst.ID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	case err == domain.ErrCardNotFound:
		var ownerArg sql.NullInt64
		if to != nil {
			ownerArg = sql.NullInt64{Int64: *to, Valid: true}
		}
		if _, err := t.tx.ExecContext(t.ctx,
			"INSERT INTO cards (name, type, rarity, count, owner_id) VALUES ($1, $2, $3, $4, $5)",
			name, src.Type, src.Rarity, qty, ownerArg); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	default:
		return err
	}
	return nil
}

func (t *pgTx) ListMarket() ([]domain.Lot, error) {
	const op = "store.postgres.ListMarket"

	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT id, name, type, rarity, count FROM cards WHERE owner_id IS NULL ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	lots := []domain.Lot{}
	for rows.Next() {
		var l domain.Lot
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &l.Rarity, &l.Count); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return lots, nil
}

// Lookup prefers the market lot; an exhausted market lot behaves as
// absent, so the caller's own lot (if any) answers instead.
func (t *pgTx) Lookup(name string, userID *int64) (*domain.Lot, error) {
	lot, err := t.lotByOwner(name, nil)
	switch {
	case err == nil && lot.Count > 0:
		return lot, nil
	case err != nil && !errors.Is(err, domain.ErrCardNotFound):
		return nil, err
	}
	if userID != nil {
		return t.lotByOwner(name, userID)
	}
	return nil, domain.ErrCardNotFound
}

func (t *pgTx) LoggedInUsernames() ([]string, error) {
	const op = "store.postgres.LoggedInUsernames"

	rows, err := t.tx.QueryContext(t.ctx,
		"SELECT username FROM users WHERE logged_in ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return names, nil
}

func (t *pgTx) AccountCount() (int64, error) {
	const op = "store.postgres.AccountCount"

	var count int64
	if err := t.tx.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

func (t *pgTx) CreateAccount(a *domain.Account) error {
	const op = "store.postgres.CreateAccount"

	err := t.tx.QueryRowContext(t.ctx,
		"INSERT INTO users (username, password, balance_cents, logged_in, is_root) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		a.Username, a.Password, a.Balance, a.LoggedIn, a.Root).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (t *pgTx) CreateLot(l *domain.Lot) error {
	const op = "store.postgres.CreateLot"

	var ownerArg sql.NullInt64
	if l.OwnerID != nil {
		ownerArg = sql.NullInt64{Int64: *l.OwnerID, Valid: true}
	}
	err := t.tx.QueryRowContext(t.ctx,
		"INSERT INTO cards (name, type, rarity, count, owner_id) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		l.Name, l.Type, l.Rarity, l.Count, ownerArg).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
