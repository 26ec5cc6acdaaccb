// Package protocol serves an executor over the PostgreSQL wire protocol.
//
// Only the simple query protocol is supported. Clients such as pgx must run
// in simple protocol mode (default_query_exec_mode=simple_protocol).
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrianmcphee/smartermodel"
	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/jackc/pgproto3/v2"
)

// ServerVersion is reported to clients in the startup parameters.
const ServerVersion = "14.0 (smartermodel)"

// Metric names
const (
	MetricStatements  = "smartermodel.sql.statements"
	MetricErrors      = "smartermodel.sql.errors"
	MetricDuration    = "smartermodel.sql.duration"
	MetricConnections = "smartermodel.sql.connections"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("protocol: server closed")

// Server handles PostgreSQL wire protocol connections
type Server struct {
	executor *executor.Executor
	logger   smartermodel.Logger
	metrics  smartermodel.Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	nextPID  atomic.Uint32
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l smartermodel.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m smartermodel.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server executing statements with exec.
func NewServer(exec *executor.Executor, opts ...Option) *Server {
	s := &Server{
		executor: exec,
		logger:   &smartermodel.NoOpLogger{},
		metrics:  &smartermodel.NoOpMetrics{},
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx is done or Close is
// called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. It returns ErrServerClosed once the
// server is closed, including through ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.logger.Info("listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept error", "error", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go s.handleConnection(conn)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, closes open connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.metrics.Gauge(MetricConnections, float64(len(s.conns)))
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	s.metrics.Gauge(MetricConnections, float64(len(s.conns)))
	s.wg.Done()
}

// handleConnection processes a single client connection
func (s *Server) handleConnection(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("connection opened", "remote", remote)

	backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)
	if err := s.startup(conn, backend); err != nil {
		if !errors.Is(err, io.EOF) && !s.closed.Load() {
			s.logger.Warn("startup failed", "remote", remote, "error", err)
		}
		return
	}

	// After an error in an extended-protocol message, everything up to the
	// next Sync is discarded.
	skipToSync := false

	for {
		msg, err := backend.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				s.logger.Warn("receive error", "remote", remote, "error", err)
			}
			s.logger.Debug("connection closed", "remote", remote)
			return
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			err = s.handleQuery(backend, m.String)
		case *pgproto3.Terminate:
			s.logger.Debug("client terminated connection", "remote", remote)
			return
		case *pgproto3.Sync:
			skipToSync = false
			err = backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
		case *pgproto3.Parse, *pgproto3.Bind, *pgproto3.Describe, *pgproto3.Execute, *pgproto3.Close:
			if skipToSync {
				continue
			}
			skipToSync = true
			err = backend.Send(&pgproto3.ErrorResponse{
				Severity: "ERROR",
				Code:     "0A000",
				Message:  "extended query protocol is not supported; use the simple query protocol",
			})
		case *pgproto3.Flush:
		default:
			s.logger.Debug("unhandled message", "remote", remote, "type", fmt.Sprintf("%T", msg))
		}
		if err != nil {
			s.logger.Warn("send error", "remote", remote, "error", err)
			return
		}
	}
}

// startup declines SSL, accepts any credentials and
// announces the server parameters.
func (s *Server) startup(conn net.Conn, backend *pgproto3.Backend) error {
	for {
		msg, err := backend.ReceiveStartupMessage()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *pgproto3.SSLRequest:
			if _, err := conn.Write([]byte{'N'}); err != nil {
				return fmt.Errorf("write SSL response: %w", err)
			}
			continue
		case *pgproto3.CancelRequest:
			return io.EOF
		case *pgproto3.StartupMessage:
			s.logger.Debug("startup",
				"database", m.Parameters["database"],
				"user", m.Parameters["user"],
				"protocol", fmt.Sprintf("%d.%d", m.ProtocolVersion>>16, m.ProtocolVersion&0xFFFF),
			)
		default:
			return fmt.Errorf("unexpected startup message %T", msg)
		}
		break
	}

	msgs := []pgproto3.BackendMessage{&pgproto3.AuthenticationOk{}}
	for _, p := range [][2]string{
		{"server_version", ServerVersion},
		{"client_encoding", "UTF8"},
		{"server_encoding", "UTF8"},
		{"DateStyle", "ISO, MDY"},
		{"TimeZone", "UTC"},
		{"integer_datetimes", "on"},
		{"standard_conforming_strings", "on"},
	} {
		msgs = append(msgs, &pgproto3.ParameterStatus{Name: p[0], Value: p[1]})
	}
	msgs = append(msgs,
		&pgproto3.BackendKeyData{ProcessID: s.nextPID.Add(1), SecretKey: uint32(time.Now().UnixNano())},
		&pgproto3.ReadyForQuery{TxStatus: 'I'},
	)
	return sendAll(backend, msgs)
}

// handleQuery runs each statement of a simple query and ends with
// ReadyForQuery. Execution stops at the first failing statement.
func (s *Server) handleQuery(backend *pgproto3.Backend, sql string) error {
	statements := splitStatements(sql)
	if len(statements) == 0 {
		return sendAll(backend, []pgproto3.BackendMessage{
			&pgproto3.EmptyQueryResponse{},
			&pgproto3.ReadyForQuery{TxStatus: 'I'},
		})
	}

	for _, stmt := range statements {
		start := time.Now()
		result, err := s.executor.Execute(stmt)
		command := commandOf(stmt)
		s.metrics.Timing(MetricDuration, time.Since(start), "command", command)

		if err != nil {
			s.metrics.Increment(MetricErrors, "command", command)
			s.logger.Debug("statement failed", "sql", stmt, "error", err)
			return sendAll(backend, []pgproto3.BackendMessage{
				errorResponse(err),
				&pgproto3.ReadyForQuery{TxStatus: 'I'},
			})
		}
		s.metrics.Increment(MetricStatements, "command", command)

		if err := sendAll(backend, resultMessages(result)); err != nil {
			return err
		}
	}
	return backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
}

func sendAll(backend *pgproto3.Backend, msgs []pgproto3.BackendMessage) error {
	for _, msg := range msgs {
		if err := backend.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// commandOf returns the upper-cased first keyword of a statement.
func commandOf(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// splitStatements splits on semicolons outside string literals and quoted
// identifiers, dropping empty statements.
func splitStatements(sql string) []string {
	var (
		out   []string
		quote rune
		start int
	)
	for i, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			if stmt := strings.TrimSpace(sql[start:i]); stmt != "" {
				out = append(out, stmt)
			}
			start = i + 1
		}
	}
	if stmt := strings.TrimSpace(sql[start:]); stmt != "" {
		out = append(out, stmt)
	}
	return out
}
