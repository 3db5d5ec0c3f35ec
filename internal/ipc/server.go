package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/highbeam/agentdeck/internal/logger"
	"github.com/highbeam/agentdeck/internal/metrics"
	"github.com/highbeam/agentdeck/internal/model"
	"github.com/highbeam/agentdeck/internal/notify"
	"github.com/highbeam/agentdeck/internal/usage"
)

// DaemonQuerier is the interface the IPC server uses to reach the daemon.
// This avoids importing the daemon package (which would be circular).
type DaemonQuerier interface {
	Uptime() time.Duration
	Stop()
	Resync(sessionID string) error
}

// SessionReader provides the query surface the server exposes.
type SessionReader interface {
	ListSessions() ([]model.Session, error)
	ReadSession(id string) (*model.Session, error)
	ReadMessages(sessionID string) ([]model.Message, error)
	SessionCount() (int64, error)
	MessageCount() (int64, error)
	DBSizeBytes() (int64, error)
}

// Server is a Unix domain socket server for CLI-to-daemon communication.
type Server struct {
	daemon   DaemonQuerier
	store    SessionReader
	notifier *notify.Notifier
	fetcher  usage.Fetcher
	roots    []string
	log      zerolog.Logger

	listener net.Listener
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopped  bool
}

// NewServer creates a new IPC server. The store arrives later via
// SetStore, once the daemon has opened it.
func NewServer(notifier *notify.Notifier, fetcher usage.Fetcher, roots []string) *Server {
	return &Server{
		notifier: notifier,
		fetcher:  fetcher,
		roots:    roots,
		log:      logger.For("ipc"),
	}
}

// SetDaemon sets the daemon reference. Called after daemon creation to
// break the circular construction dependency.
func (s *Server) SetDaemon(d DaemonQuerier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daemon = d
}

// SetStore accepts the opened store. It takes interface{} to satisfy the
// daemon's StoreAware hook without a circular import; the value must
// implement SessionReader.
func (s *Server) SetStore(st interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := st.(SessionReader); ok {
		s.store = sr
	}
}

// reader snapshots the store reference, which may still be nil before
// the daemon finishes starting.
func (s *Server) reader() SessionReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Listen starts accepting connections on the given Unix socket path.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Listen(ctx context.Context, socketPath string) error {
	// Remove stale socket file if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}

	// Owner-only: transcripts may contain anything the user typed.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.stopped = false
	s.mu.Unlock()

	s.log.Info().Str("socket", socketPath).Msg("listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Stop stops accepting connections and waits for in-flight connections
// to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("drain timeout: connections still open after 5s")
	}
}

// handleConn reads a single JSON request, dispatches it, and writes the
// response. Subscribe connections stay open and stream.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		writeError(conn, "empty request")
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		writeError(conn, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	switch req.Command {
	case "ping":
		writeResponse(conn, Response{OK: true, Data: "pong"})

	case "status":
		s.handleStatus(conn)

	case "sessions":
		s.handleSessions(conn, req.Args)

	case "projects":
		s.handleProjects(conn)

	case "session":
		s.handleSession(conn, req.Args)

	case "messages":
		s.handleMessages(conn, req.Args)

	case "usage":
		s.handleUsage(ctx, conn)

	case "resync":
		s.handleResync(conn, req.Args)

	case "subscribe":
		s.handleSubscribe(ctx, conn)

	case "stop":
		writeResponse(conn, Response{OK: true, Data: "shutting down"})
		s.mu.Lock()
		d := s.daemon
		s.mu.Unlock()
		if d != nil {
			d.Stop()
		}

	default:
		writeError(conn, fmt.Sprintf("unknown command: %q", req.Command))
	}
}

func (s *Server) handleStatus(conn net.Conn) {
	data := StatusData{
		WatchedRoots: s.roots,
	}

	s.mu.Lock()
	d := s.daemon
	s.mu.Unlock()
	if d != nil {
		data.Uptime = d.Uptime().Truncate(time.Second).String()
	}

	if store := s.reader(); store != nil {
		if v, err := store.DBSizeBytes(); err == nil {
			data.DBSizeBytes = v
		}
		if v, err := store.SessionCount(); err == nil {
			data.SessionCount = v
		}
		if v, err := store.MessageCount(); err == nil {
			data.MessageCount = v
		}
	}

	writeResponse(conn, Response{OK: true, Data: data})
}

func (s *Server) handleSessions(conn net.Conn, args map[string]string) {
	store := s.reader()
	if store == nil {
		writeError(conn, "store not ready")
		return
	}
	sessions, err := store.ListSessions()
	if err != nil {
		writeError(conn, fmt.Sprintf("list sessions: %v", err))
		return
	}

	sessions = filterSessions(sessions, args)
	writeResponse(conn, Response{OK: true, Data: SessionsData{Sessions: sessions}})
}

// filterSessions applies optional args: status=<work status>,
// attention=true, format=<claude|codex>, project=<path>.
func filterSessions(sessions []model.Session, args map[string]string) []model.Session {
	if len(args) == 0 {
		return sessions
	}
	// The reader may hand back a slice it retains; never filter in place.
	out := make([]model.Session, 0, len(sessions))
	for _, sess := range sessions {
		if v, ok := args["status"]; ok && string(sess.WorkStatus) != v {
			continue
		}
		if v, ok := args["format"]; ok && string(sess.Format) != v {
			continue
		}
		if v, ok := args["project"]; ok && sess.ProjectPath != v {
			continue
		}
		if v, ok := args["attention"]; ok {
			wants := v == "true"
			has := sess.AttentionReason != model.AttentionNone
			if wants != has {
				continue
			}
		}
		out = append(out, sess)
	}
	return out
}

func (s *Server) handleProjects(conn net.Conn) {
	store := s.reader()
	if store == nil {
		writeError(conn, "store not ready")
		return
	}
	sessions, err := store.ListSessions()
	if err != nil {
		writeError(conn, fmt.Sprintf("list sessions: %v", err))
		return
	}
	writeResponse(conn, Response{OK: true, Data: metrics.Aggregate(sessions)})
}

func (s *Server) handleSession(conn net.Conn, args map[string]string) {
	id := args["id"]
	if id == "" {
		writeError(conn, "missing session id")
		return
	}
	store := s.reader()
	if store == nil {
		writeError(conn, "store not ready")
		return
	}
	sess, err := store.ReadSession(id)
	if err != nil {
		writeError(conn, fmt.Sprintf("read session %s: %v", id, err))
		return
	}
	writeResponse(conn, Response{OK: true, Data: sess})
}

func (s *Server) handleMessages(conn net.Conn, args map[string]string) {
	id := args["id"]
	if id == "" {
		writeError(conn, "missing session id")
		return
	}
	store := s.reader()
	if store == nil {
		writeError(conn, "store not ready")
		return
	}
	msgs, err := store.ReadMessages(id)
	if err != nil {
		writeError(conn, fmt.Sprintf("read messages %s: %v", id, err))
		return
	}
	if v, ok := args["limit"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < len(msgs) {
			msgs = msgs[len(msgs)-n:]
		}
	}
	writeResponse(conn, Response{OK: true, Data: MessagesData{SessionID: id, Messages: msgs}})
}

func (s *Server) handleUsage(ctx context.Context, conn net.Conn) {
	if s.fetcher == nil {
		writeError(conn, "usage fetcher not configured")
		return
	}
	snap, err := s.fetcher.Fetch(ctx)
	if err != nil && snap == nil {
		writeError(conn, fmt.Sprintf("fetch usage: %v", err))
		return
	}
	// Stale snapshot on error still serves.
	writeResponse(conn, Response{OK: true, Data: snap})
}

func (s *Server) handleResync(conn net.Conn, args map[string]string) {
	id := args["id"]
	if id == "" {
		writeError(conn, "missing session id")
		return
	}
	s.mu.Lock()
	d := s.daemon
	s.mu.Unlock()
	if d == nil {
		writeError(conn, "daemon not available")
		return
	}
	if err := d.Resync(id); err != nil {
		writeError(conn, fmt.Sprintf("resync %s: %v", id, err))
		return
	}
	writeResponse(conn, Response{OK: true, Data: "resynced"})
}

// handleSubscribe streams one Response per debounced change until the
// client disconnects or the server shuts down.
func (s *Server) handleSubscribe(ctx context.Context, conn net.Conn) {
	if s.notifier == nil {
		writeError(conn, "subscriptions not available")
		return
	}

	// Streaming connection, no deadline.
	_ = conn.SetDeadline(time.Time{})

	ch, cancel := s.notifier.Subscribe()
	defer cancel()

	writeResponse(conn, Response{OK: true, Data: "subscribed"})

	// Detect client disconnect by reading; the client sends nothing
	// more, so Read returns only on close or error.
	closed := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
		close(closed)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			resp := Response{OK: true, Data: ChangeData{SessionID: change.SessionID}}
			data, _ := json.Marshal(resp)
			data = append(data, '\n')
			if _, err := conn.Write(data); err != nil {
				return
			}
		}
	}
}

func writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func writeError(conn net.Conn, msg string) {
	writeResponse(conn, Response{OK: false, Error: msg})
}
