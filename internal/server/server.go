// Package server carries the wire surfaces: the line-oriented TCP
// protocol the traders speak and a small read-only HTTP surface for
// health checks and market browsing.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chsco430/cardstore/internal/domain"
	"github.com/chsco430/cardstore/internal/engine"
)

// maxLineBytes bounds a single command line. Anything longer is a
// protocol violation and closes the connection.
const maxLineBytes = 1024

// Server accepts TCP connections and runs one goroutine per client.
// Each connection owns its session; all shared state lives behind the
// ledger, so a failing connection can never corrupt another's view.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	auth       *engine.AuthService
	logger     *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool

	wg sync.WaitGroup
}

// New creates a Server listening on addr once started.
func New(addr string, dispatcher *Dispatcher, auth *engine.AuthService, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:       addr,
		dispatcher: dispatcher,
		auth:       auth,
		logger:     logger,
		baseCtx:    ctx,
		cancel:     cancel,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start listens and serves until Stop is called. It blocks; run it in
// a goroutine and treat a nil return as a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener and every live connection, then waits for
// connection goroutines to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("server: stop: %w", ctx.Err())
	}
}

// handleConn reads commands line by line and writes one response block
// per command, in order. The session lives and dies with the
// connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()[:8]
	logger := s.logger.With(
		slog.String("conn", connID),
		slog.String("remote", conn.RemoteAddr().String()),
	)
	logger.Info("client connected")

	var sess domain.Session
	defer func() {
		s.releaseSession(&sess, logger)
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		logger.Info("client disconnected")
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)

	for scanner.Scan() {
		start := time.Now()
		res := s.dispatcher.Dispatch(s.baseCtx, &sess, scanner.Text())

		if _, err := conn.Write([]byte(res.Response.Render())); err != nil {
			logger.Debug("write failed", slog.String("error", err.Error()))
			return
		}

		logger.Info("command",
			slog.String("verb", res.Verb),
			slog.Int("status", res.Response.Code),
			slog.Duration("duration", time.Since(start)),
		)

		if res.Quit {
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("read failed", slog.String("error", err.Error()))
	}
}

// releaseSession clears the login flag of a session that is still
// authenticated when its connection goes away, so WHO does not keep
// listing users whose connections dropped. Uses a short independent
// context: the base context is already cancelled during shutdown.
func (s *Server) releaseSession(sess *domain.Session, logger *slog.Logger) {
	userID, ok := sess.UserID()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.auth.Logout(ctx, userID); err != nil {
		logger.Debug("release session", slog.String("error", err.Error()))
	}
	sess.Clear()
}
