package domain

// Session is the per-connection authentication state. The zero value is
// anonymous. A Session is owned exclusively by its connection's
// goroutine and is passed by pointer through the command-handling call
// chain; it is never shared across connections and never persisted.
type Session struct {
	userID        int64
	authenticated bool
}

// Authenticate transitions the session to the authenticated state bound
// to the given user ID.
func (s *Session) Authenticate(userID int64) {
	s.userID = userID
	s.authenticated = true
}

// Clear returns the session to the anonymous state.
func (s *Session) Clear() {
	s.userID = 0
	s.authenticated = false
}

// UserID returns the bound user ID and true when authenticated, or
// (0, false) for an anonymous session. Callers must check the boolean:
// there is no sentinel user ID to fall back on.
func (s *Session) UserID() (int64, bool) {
	if !s.authenticated {
		return 0, false
	}
	return s.userID, true
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s.authenticated
}
