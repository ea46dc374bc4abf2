package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The server layer maps these to wire status codes.
var (
	ErrAccountNotFound    = errors.New("account_not_found")
	ErrCardNotFound       = errors.New("card_not_found")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrNotLoggedIn        = errors.New("not_logged_in")
	ErrNotPermitted       = errors.New("not_permitted")
	ErrInsufficientFunds  = errors.New("insufficient_funds")
	ErrInsufficientStock  = errors.New("insufficient_stock")
)

// ValidationError represents a malformed command: wrong arity, a
// non-numeric quantity, a non-positive amount, and the like.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
