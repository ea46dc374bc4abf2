package domain

// Lot is a named, typed, rarity-tagged quantity of a tradeable card.
// OwnerID is nil for market (unowned) stock and set to a user ID for a
// lot a user has accumulated. Several lots may share a name: one market
// lot plus one owned lot per buyer.
//
// Invariant: Count >= 0 at all times. The sum of counts across all lots
// with the same name is conserved by a purchase (stock moves from the
// market lot to the buyer's lot) and by a sale (stock moves back to the
// market lot).
type Lot struct {
	ID      int64
	Name    string
	Type    string
	Rarity  string
	Count   int64
	OwnerID *int64 // nil = market
}

// Owned reports whether the lot belongs to a user rather than the market.
func (l *Lot) Owned() bool {
	return l.OwnerID != nil
}
