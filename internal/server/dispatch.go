package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/engine"
)

// Dispatcher parses one command line into a verb and arguments, applies
// the session's authentication gate, and routes to the trade engine or
// the auth service. It holds no per-connection state: the session
// travels with the call.
type Dispatcher struct {
	trade        *engine.TradeEngine
	auth         *engine.AuthService
	shutdown     func()
	shutdownOnce sync.Once
}

// NewDispatcher creates a Dispatcher. shutdown is invoked at most once,
// when a root user issues SHUTDOWN; nil disables the verb.
func NewDispatcher(trade *engine.TradeEngine, auth *engine.AuthService, shutdown func()) *Dispatcher {
	return &Dispatcher{trade: trade, auth: auth, shutdown: shutdown}
}

// Result is the outcome of dispatching one line.
type Result struct {
	Verb     string
	Response Response
	Quit     bool // close this connection after writing the response
}

// Dispatch handles a single command line for the given session.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *domain.Session, line string) Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Result{Verb: "", Response: Response{Code: 400, Text: "Empty command"}}
	}

	verb := strings.ToUpper(fields[0])
	args := fields[1:]
	res := Result{Verb: verb}

	switch verb {
	case "LOGIN":
		res.Response = d.login(ctx, sess, args)
	case "BALANCE":
		res.Response = d.balance(ctx, sess, args)
	case "DEPOSIT":
		res.Response = d.deposit(ctx, sess, args)
	case "LIST":
		res.Response = d.list(ctx, args)
	case "LOOKUP":
		res.Response = d.lookup(ctx, sess, args)
	case "BUY":
		res.Response = d.buy(ctx, sess, args)
	case "SELL":
		res.Response = d.sell(ctx, sess, args)
	case "WHO":
		res.Response = d.who(ctx, args)
	case "LOGOUT":
		res.Response = d.logout(ctx, sess, args)
	case "QUIT":
		res.Response = OK("Quitting")
		res.Quit = true
	case "SHUTDOWN":
		res.Response, res.Quit = d.shutdownCmd(ctx, sess, args)
	default:
		res.Response = Response{Code: 400, Text: "Unknown command"}
	}
	return res
}

func arity(args []string, want int, usage string) error {
	if len(args) != want {
		return &domain.ValidationError{Message: "Usage: " + usage}
	}
	return nil
}

// requireUser returns the authenticated user ID or ErrNotLoggedIn.
// There is no sentinel fallback: user-scoped verbs on an anonymous
// session are rejected outright.
func requireUser(sess *domain.Session) (int64, error) {
	userID, ok := sess.UserID()
	if !ok {
		return 0, domain.ErrNotLoggedIn
	}
	return userID, nil
}

func (d *Dispatcher) login(ctx context.Context, sess *domain.Session, args []string) Response {
	if err := arity(args, 2, "LOGIN <username> <password>"); err != nil {
		return FromError(err)
	}

	acct, err := d.auth.Login(ctx, args[0], args[1])
	if err != nil {
		return FromError(err)
	}

	// Re-login on an already-bound session releases the previous user.
	if prev, ok := sess.UserID(); ok && prev != acct.ID {
		_ = d.auth.Logout(ctx, prev)
	}
	sess.Authenticate(acct.ID)
	return OK("Login successful")
}

func (d *Dispatcher) balance(ctx context.Context, sess *domain.Session, args []string) Response {
	if err := arity(args, 0, "BALANCE"); err != nil {
		return FromError(err)
	}
	userID, err := requireUser(sess)
	if err != nil {
		return FromError(err)
	}

	balance, err := d.trade.Balance(ctx, userID)
	if err != nil {
		return FromError(err)
	}
	return OK("Your balance is " + domain.FormatCents(balance))
}

func (d *Dispatcher) deposit(ctx context.Context, sess *domain.Session, args []string) Response {
	if err := arity(args, 1, "DEPOSIT <amount>"); err != nil {
		return FromError(err)
	}
	userID, err := requireUser(sess)
	if err != nil {
		return FromError(err)
	}

	dollars, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return FromError(&domain.ValidationError{Message: "Amount must be a decimal number"})
	}
	cents, err := domain.DollarsToCents(dollars)
	if err != nil {
		return FromError(&domain.ValidationError{Message: err.Error()})
	}

	newBalance, err := d.trade.Deposit(ctx, userID, cents)
	if err != nil {
		return FromError(err)
	}
	return OK("Deposit successful, balance " + domain.FormatCents(newBalance))
}

func (d *Dispatcher) list(ctx context.Context, args []string) Response {
	if err := arity(args, 0, "LIST"); err != nil {
		return FromError(err)
	}

	lots, err := d.trade.ListMarket(ctx)
	if err != nil {
		return FromError(err)
	}

	lines := make([]string, len(lots))
	for i, lot := range lots {
		lines[i] = fmt.Sprintf("%s | Type: %s | Rarity: %s | Count: %d", lot.Name, lot.Type, lot.Rarity, lot.Count)
	}
	return OK("Available cards:", lines...)
}

func (d *Dispatcher) lookup(ctx context.Context, sess *domain.Session, args []string) Response {
	if err := arity(args, 1, "LOOKUP <card>"); err != nil {
		return FromError(err)
	}

	// Anonymous callers see market lots only; authenticated callers
	// also see their own.
	var userID *int64
	if id, ok := sess.UserID(); ok {
		userID = &id
	}

	lot, err := d.trade.Lookup(ctx, args[0], userID)
	if err != nil {
		return FromError(err)
	}
	return OK("Card details:",
		"Name: "+lot.Name,
		"Type: "+lot.Type,
		"Rarity: "+lot.Rarity,
		fmt.Sprintf("Count: %d", lot.Count),
	)
}

func parseQuantity(s string) (int64, error) {
	qty, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &domain.ValidationError{Message: "Quantity must be an integer"}
	}
	return qty, nil
}

func (d *Dispatcher) buy(ctx context.Context, sess *domain.Session, args []string) Response {
	if err := arity(args, 2, "BUY <card> <quantity>"); err != nil {
		return FromError(err)
	}
	userID, err := requireUser(sess)
	if err != nil {
		return FromError(err)
	}
	qty, err := parseQuantity(args[1])
	if err != nil {
		return FromError(err)
	}

	summary, err := d.trade.Buy(ctx, userID, args[0], qty)
	if err != nil {
		return FromError(err)
	}
	return OK("Purchase successful, balance " + domain.FormatCents(summary.NewBalance))
}

func (d *Dispatcher) sell(ctx context.Context, sess *domain.Session, args []string) Response {
	if err := arity(args, 2, "SELL <card> <quantity>"); err != nil {
		return FromError(err)
	}
	userID, err := requireUser(sess)
	if err != nil {
		return FromError(err)
	}
	qty, err := parseQuantity(args[1])
	if err != nil {
		return FromError(err)
	}

	summary, err := d.trade.Sell(ctx, userID, args[0], qty)
	if err != nil {
		return FromError(err)
	}
	return OK("Sell successful, balance " + domain.FormatCents(summary.NewBalance))
}

func (d *Dispatcher) who(ctx context.Context, args []string) Response {
	if err := arity(args, 0, "WHO"); err != nil {
		return FromError(err)
	}

	names, err := d.auth.Who(ctx)
	if err != nil {
		return FromError(err)
	}
	return OK("Logged-in users:", names...)
}

func (d *Dispatcher) logout(ctx context.Context, sess *domain.Session, args []string) Response {
	if err := arity(args, 0, "LOGOUT"); err != nil {
		return FromError(err)
	}
	userID, err := requireUser(sess)
	if err != nil {
		return FromError(err)
	}

	if err := d.auth.Logout(ctx, userID); err != nil {
		return FromError(err)
	}
	sess.Clear()
	return OK("Logged out")
}

// shutdownCmd terminates the whole server. Only a logged-in root user
// may issue it; the shutdown callback fires at most once no matter how
// many connections race the command.
func (d *Dispatcher) shutdownCmd(ctx context.Context, sess *domain.Session, args []string) (Response, bool) {
	if err := arity(args, 0, "SHUTDOWN"); err != nil {
		return FromError(err), false
	}
	userID, err := requireUser(sess)
	if err != nil {
		return FromError(err), false
	}

	acct, err := d.auth.Account(ctx, userID)
	if err != nil {
		return FromError(err), false
	}
	if !acct.Root {
		return FromError(domain.ErrNotPermitted), false
	}
	if d.shutdown == nil {
		return FromError(domain.ErrNotPermitted), false
	}

	d.shutdownOnce.Do(d.shutdown)
	return OK("Server shutting down"), true
}
