package domain

// Account represents a provisioned user of the card store. Accounts are
// created by an out-of-band provisioning path (migrations, seeding) and
// are never deleted by the server.
type Account struct {
	ID       int64
	Username string
	Password string // exact-match credential; stored as provisioned
	Balance  int64  // cents
	LoggedIn bool
	Root     bool // may issue SHUTDOWN
}
