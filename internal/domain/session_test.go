package domain

import "testing"

func TestSession_ZeroValueIsAnonymous(t *testing.T) {
	var s Session
	if s.Authenticated() {
		t.Fatal("zero-value session must be anonymous")
	}
	if id, ok := s.UserID(); ok || id != 0 {
		t.Fatalf("anonymous session returned UserID (%d, %v), want (0, false)", id, ok)
	}
}

func TestSession_AuthenticateBindsUser(t *testing.T) {
	var s Session
	s.Authenticate(42)

	if !s.Authenticated() {
		t.Fatal("session must be authenticated after Authenticate")
	}
	id, ok := s.UserID()
	if !ok || id != 42 {
		t.Fatalf("UserID() = (%d, %v), want (42, true)", id, ok)
	}
}

func TestSession_ClearReturnsToAnonymous(t *testing.T) {
	var s Session
	s.Authenticate(42)
	s.Clear()

	if s.Authenticated() {
		t.Fatal("session must be anonymous after Clear")
	}
	if id, ok := s.UserID(); ok || id != 0 {
		t.Fatalf("cleared session returned UserID (%d, %v), want (0, false)", id, ok)
	}
}

func TestSession_ReauthenticateRebinds(t *testing.T) {
	var s Session
	s.Authenticate(1)
	s.Authenticate(2)

	id, ok := s.UserID()
	if !ok || id != 2 {
		t.Fatalf("UserID() = (%d, %v), want (2, true)", id, ok)
	}
}
