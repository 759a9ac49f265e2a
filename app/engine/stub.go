package engine

import (
	"io"
	"strings"
	"sync"
	"time"

	"example/portfolio-api/app/board"
)

// Stub is an in-process Conn that speaks just enough UCI for local runs and
// tests. By default it answers every search with the first legal move.
type Stub struct {
	mu        sync.Mutex
	lines     chan string
	errs      chan string
	closed    bool
	sent      []string
	fen       string
	handshake bool
	silent    bool
	delay     time.Duration
	search    func(fen string) string
	stderr    string
	timer     *time.Timer
	reply     string
}

type StubOption func(*Stub)

// StubSilent never answers searches.
func StubSilent() StubOption { return func(s *Stub) { s.silent = true } }

// StubNoHandshake never acknowledges uci or isready.
func StubNoHandshake() StubOption { return func(s *Stub) { s.handshake = false } }

// StubDelay holds each bestmove back for d unless a stop arrives first.
func StubDelay(d time.Duration) StubOption { return func(s *Stub) { s.delay = d } }

// StubSearch replaces the move chooser. Returning "" answers "(none)".
func StubSearch(f func(fen string) string) StubOption { return func(s *Stub) { s.search = f } }

// StubStderr writes line to stderr when the first search starts.
func StubStderr(line string) StubOption { return func(s *Stub) { s.stderr = line } }

func NewStub(opts ...StubOption) *Stub {
	s := &Stub{
		lines:     make(chan string, 64),
		errs:      make(chan string, 4),
		handshake: true,
		search:    firstLegalMove,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func firstLegalMove(fen string) string {
	moves, err := board.LegalMoves(board.Position(fen))
	if err != nil || len(moves) == 0 {
		return ""
	}
	return moves[0].String()
}

func (s *Stub) Lines() <-chan string  { return s.lines }
func (s *Stub) Stderr() <-chan string { return s.errs }

// Sent returns a copy of every line written to the stub.
func (s *Stub) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *Stub) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.sent = append(s.sent, line)

	switch {
	case line == "uci":
		if s.handshake {
			s.emit("id name portfolio-stub")
			s.emit("uciok")
		}
	case line == "isready":
		if s.handshake {
			s.emit("readyok")
		}
	case strings.HasPrefix(line, "position fen "):
		s.fen = strings.TrimPrefix(line, "position fen ")
	case strings.HasPrefix(line, "go"):
		s.startSearch()
	case line == "stop":
		if s.timer != nil && s.timer.Stop() {
			s.timer = nil
			s.emit("bestmove " + s.reply)
		}
	}
	return nil
}

// startSearch runs with s.mu held.
func (s *Stub) startSearch() {
	if s.stderr != "" {
		s.errs <- s.stderr
		s.stderr = ""
		return
	}
	if s.silent {
		return
	}
	move := s.search(s.fen)
	if move == "" {
		move = "(none)"
	}
	if s.delay <= 0 {
		s.emit("bestmove " + move)
		return
	}
	s.reply = move
	var t *time.Timer
	t = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if s.timer == t {
			s.timer = nil
		}
		s.emit("bestmove " + move)
	})
	s.timer = t
}

// emit runs with s.mu held.
func (s *Stub) emit(line string) {
	select {
	case s.lines <- line:
	default:
	}
}

func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.lines)
	close(s.errs)
	return nil
}
