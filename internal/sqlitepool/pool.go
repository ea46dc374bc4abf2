// Package sqlitepool provides a fixed-size pool of SQLite connections
// with production defaults: WAL journal mode, NORMAL synchronous, and a
// busy timeout so concurrent writers queue instead of failing. It wraps
// zombiezen.com/go/sqlite and exposes the underlying types directly:
// callers write SQL, use sqlitex.Execute, and manage transactions with
// sqlitex.ImmediateTransaction. Connections are not safe for concurrent
// use; each goroutine must Take its own and Put it back when done.
package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the filesystem path to the database file, created if it
	// does not exist. Tests point this at a throwaway file under
	// t.TempDir.
	Path string

	// PoolSize is the number of connections. If zero or negative it
	// defaults to max(runtime.NumCPU(), 4). SQLite serializes writes
	// regardless of pool size; extra connections serve concurrent reads.
	PoolSize int

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger

	// OnConnect runs once per connection after the standard pragmas,
	// for schema creation and other per-connection setup. An error
	// discards the connection and surfaces from Take.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections. Safe for concurrent
// use; individual connections are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool and applies the standard pragmas to every
// connection. Connections are initialized lazily on first Take. The
// caller must Close the pool when done.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
	)

	return &Pool{
		inner:  inner,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// Take borrows a connection, blocking until one is available or ctx is
// cancelled. The caller must Put it back, typically via defer.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	if conn == nil {
		return
	}
	p.inner.Put(conn)
}

// Close closes all connections, blocking until borrowed connections are
// returned. After Close, Take returns an error.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	// WAL: concurrent readers, single writer, readers never block.
	// busy_timeout queues concurrent writers for up to 5s instead of
	// returning SQLITE_BUSY. foreign_keys enforces lot ownership
	// references.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}

	return nil
}
