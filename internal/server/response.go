package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/chsco430/cardstore/internal/domain"
)

// Response is one reply to one command: an explicit status code plus
// message text, rendered as "<code> <reason> - <text>" with optional
// payload lines after it. Clients match on the leading code, never on
// the prose.
type Response struct {
	Code  int
	Text  string
	Lines []string
}

// reasonPhrase returns the fixed phrase for each status code in use.
func reasonPhrase(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	default:
		return "Internal Server Error"
	}
}

// Render produces the wire form of the response, newline-terminated.
func (r Response) Render() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.Code))
	b.WriteString(" ")
	b.WriteString(reasonPhrase(r.Code))
	b.WriteString(" - ")
	b.WriteString(r.Text)
	b.WriteString("\n")
	for _, line := range r.Lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// OK builds a 200 response with optional payload lines.
func OK(text string, lines ...string) Response {
	return Response{Code: 200, Text: text, Lines: lines}
}

// FromError maps a domain error to its wire response. Unrecognized
// errors (store failures, cancelled contexts) become 500s so a backend
// hiccup never leaks internals to the client.
func FromError(err error) Response {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return Response{Code: 400, Text: verr.Message}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return Response{Code: 401, Text: "Invalid credentials"}
	case errors.Is(err, domain.ErrNotLoggedIn):
		return Response{Code: 401, Text: "Not logged in"}
	case errors.Is(err, domain.ErrNotPermitted):
		return Response{Code: 403, Text: "Root privilege required"}
	case errors.Is(err, domain.ErrAccountNotFound):
		return Response{Code: 404, Text: "User not found"}
	case errors.Is(err, domain.ErrCardNotFound):
		return Response{Code: 404, Text: "Card not found"}
	case errors.Is(err, domain.ErrInsufficientFunds):
		return Response{Code: 400, Text: "Insufficient funds"}
	case errors.Is(err, domain.ErrInsufficientStock):
		return Response{Code: 400, Text: "Not enough stock"}
	default:
		return Response{Code: 500, Text: "Store unavailable"}
	}
}
