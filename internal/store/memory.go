package store

import (
	"context"
	"sort"

	"github.com/google/btree"

	"github.com/chsco430/cardstore/internal/domain"
)

// lotEntry wraps a lot for B-tree ordering: name ascending, with the
// market lot sorting before owned lots of the same name, then owner ID
// ascending. One entry per (name, owner) pair.
type lotEntry struct {
	lot domain.Lot
}

func lotLess(a, b lotEntry) bool {
	if a.lot.Name != b.lot.Name {
		return a.lot.Name < b.lot.Name
	}
	ao, bo := a.lot.OwnerID, b.lot.OwnerID
	if (ao == nil) != (bo == nil) {
		return ao == nil
	}
	if ao == nil {
		return false
	}
	return *ao < *bo
}

// Memory is an in-memory Ledger. A single mutex serializes
// transactions; each transaction works on a lazy clone of the lot tree
// and a copy of the accounts map, so a failed transaction discards its
// mutations and a committed one swaps in atomically.
type Memory struct {
	mu       chan struct{} // capacity 1; held for the whole transaction
	accounts map[int64]domain.Account
	byName   map[string]int64 // username → account ID
	lots     *btree.BTreeG[lotEntry]
	nextAcct int64
	nextLot  int64
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	m := &Memory{
		mu:       make(chan struct{}, 1),
		accounts: make(map[int64]domain.Account),
		byName:   make(map[string]int64),
		lots:     btree.NewG[lotEntry](8, lotLess),
		nextAcct: 1,
		nextLot:  1,
	}
	return m
}

// WithTx runs fn under the store mutex against a transactional view.
// Acquisition respects ctx so a closed connection abandons its command
// instead of queueing forever.
func (m *Memory) WithTx(ctx context.Context, fn func(Tx) error) error {
	select {
	case m.mu <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.mu }()

	tx := &memTx{
		accounts: make(map[int64]domain.Account, len(m.accounts)),
		byName:   make(map[string]int64, len(m.byName)),
		lots:     m.lots.Clone(),
		nextAcct: m.nextAcct,
		nextLot:  m.nextLot,
	}
	for id, a := range m.accounts {
		tx.accounts[id] = a
	}
	for name, id := range m.byName {
		tx.byName[name] = id
	}

	if err := fn(tx); err != nil {
		return err
	}

	m.accounts = tx.accounts
	m.byName = tx.byName
	m.lots = tx.lots
	m.nextAcct = tx.nextAcct
	m.nextLot = tx.nextLot
	return nil
}

// Close is a no-op for the in-memory ledger.
func (m *Memory) Close() error {
	return nil
}

type memTx struct {
	accounts map[int64]domain.Account
	byName   map[string]int64
	lots     *btree.BTreeG[lotEntry]
	nextAcct int64
	nextLot  int64
}

func (t *memTx) AccountByID(id int64) (*domain.Account, error) {
	a, ok := t.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &a, nil
}

func (t *memTx) AccountByCredentials(username, password string) (*domain.Account, error) {
	id, ok := t.byName[username]
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	a := t.accounts[id]
	if a.Password != password {
		return nil, domain.ErrInvalidCredentials
	}
	return &a, nil
}

func (t *memTx) SetLoggedIn(id int64, loggedIn bool) error {
	a, ok := t.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.LoggedIn = loggedIn
	t.accounts[id] = a
	return nil
}

func (t *memTx) AdjustBalance(id int64, delta int64) error {
	a, ok := t.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Balance += delta
	t.accounts[id] = a
	return nil
}

func (t *memTx) getLot(name string, owner *int64) (domain.Lot, bool) {
	probe := lotEntry{lot: domain.Lot{Name: name, OwnerID: owner}}
	entry, ok := t.lots.Get(probe)
	if !ok {
		return domain.Lot{}, false
	}
	return entry.lot, true
}

func (t *memTx) putLot(l domain.Lot) {
	t.lots.ReplaceOrInsert(lotEntry{lot: l})
}

func (t *memTx) MarketStock(name string) (int64, error) {
	l, ok := t.getLot(name, nil)
	if !ok {
		return 0, domain.ErrCardNotFound
	}
	return l.Count, nil
}

func (t *memTx) OwnedStock(userID int64, name string) (int64, error) {
	l, ok := t.getLot(name, &userID)
	if !ok {
		return 0, domain.ErrCardNotFound
	}
	return l.Count, nil
}

func (t *memTx) TransferStock(name string, qty int64, from, to *int64) error {
	src, ok := t.getLot(name, from)
	if !ok {
		return domain.ErrCardNotFound
	}
	if src.Count < qty {
		return domain.ErrInsufficientStock
	}
	src.Count -= qty
	t.putLot(src)

	dst, ok := t.getLot(name, to)
	if !ok {
		dst = domain.Lot{
			ID:      t.nextLot,
			Name:    name,
			Type:    src.Type,
			Rarity:  src.Rarity,
			Count:   0,
			OwnerID: to,
		}
		t.nextLot++
	}
	dst.Count += qty
	t.putLot(dst)
	return nil
}

func (t *memTx) ListMarket() ([]domain.Lot, error) {
	lots := []domain.Lot{}
	t.lots.Ascend(func(entry lotEntry) bool {
		if !entry.lot.Owned() {
			lots = append(lots, entry.lot)
		}
		return true
	})
	return lots, nil
}

// Lookup prefers the market lot; an exhausted market lot behaves as
// absent, so the caller's own lot (if any) answers instead.
func (t *memTx) Lookup(name string, userID *int64) (*domain.Lot, error) {
	if l, ok := t.getLot(name, nil); ok && l.Count > 0 {
		return &l, nil
	}
	if userID != nil {
		if l, ok := t.getLot(name, userID); ok {
			return &l, nil
		}
	}
	return nil, domain.ErrCardNotFound
}

func (t *memTx) LoggedInUsernames() ([]string, error) {
	names := []string{}
	for _, a := range t.accounts {
		if a.LoggedIn {
			names = append(names, a.Username)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (t *memTx) AccountCount() (int64, error) {
	return int64(len(t.accounts)), nil
}

func (t *memTx) CreateAccount(a *domain.Account) error {
	if _, exists := t.byName[a.Username]; exists {
		return &domain.ValidationError{Message: "username already taken"}
	}
	a.ID = t.nextAcct
	t.nextAcct++
	t.accounts[a.ID] = *a
	t.byName[a.Username] = a.ID
	return nil
}

func (t *memTx) CreateLot(l *domain.Lot) error {
	l.ID = t.nextLot
	t.nextLot++
	t.putLot(*l)
	return nil
}
