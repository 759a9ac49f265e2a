package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"example/portfolio-api/app/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultDepth   = 5
)

var (
	// ErrEngineUnavailable is permanent for the session that reports it.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrEngineTimeout affects only the request that hit it.
	ErrEngineTimeout = errors.New("engine search timed out")
	ErrNoBestMove    = errors.New("engine returned no move")
	ErrNotReady      = errors.New("engine handshake not complete")
)

// Request is one search. Exactly one of OnResult and OnError is invoked,
// from whichever goroutine settles the request; callbacks must not block.
type Request struct {
	ID       string
	Position string
	Settings models.EngineSettings
	OnResult func(move string)
	OnError  func(err error)
}

type request struct {
	Request
	timer      *time.Timer
	settled    chan struct{}
	dispatched bool
}

// Session owns one engine connection. The protocol carries no request ids,
// so searches are sent one at a time and bestmove lines are matched to them
// in send order; lines for requests that already timed out are dropped.
type Session struct {
	conn    Conn
	log     zerolog.Logger
	timeout time.Duration
	newID   func() string

	slot    chan struct{} // held while a search is running in the engine
	readyCh chan struct{}
	doneCh  chan struct{}

	mu       sync.Mutex
	uciOK    bool
	readyOK  bool
	ready    bool
	closed   bool
	failure  error
	pending  map[string]*request
	inflight []string
}

type Option func(*Session)

func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithIDs replaces the correlation id generator.
func WithIDs(f func() string) Option {
	return func(s *Session) { s.newID = f }
}

func newSession(conn Conn, opts []Option) *Session {
	s := &Session{
		conn:    conn,
		log:     zerolog.Nop(),
		timeout: DefaultTimeout,
		newID:   uuid.NewString,
		slot:    make(chan struct{}, 1),
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
		pending: make(map[string]*request),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSession starts reading from conn and sends the uci/isready handshake.
// The session becomes ready once both uciok and readyok have been seen.
func NewSession(conn Conn, opts ...Option) *Session {
	s := newSession(conn, opts)
	go s.readLoop(conn.Lines(), conn.Stderr())
	err := conn.Send("uci")
	if err == nil {
		err = conn.Send("isready")
	}
	if err != nil {
		s.fail(fmt.Errorf("%w: handshake: %v", ErrEngineUnavailable, err))
	}
	return s
}

// Unavailable returns a session that routes every request to its error path.
func Unavailable(cause error, opts ...Option) *Session {
	if !errors.Is(cause, ErrEngineUnavailable) {
		cause = fmt.Errorf("%w: %v", ErrEngineUnavailable, cause)
	}
	s := newSession(nil, opts)
	s.failure = cause
	close(s.doneCh)
	return s
}

// Ready reports whether the handshake finished and the session has not failed.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && s.failure == nil
}

// Err returns the reason the session became unavailable, if it has.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// WaitReady blocks until the handshake completes, the session fails or ctx ends.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		if err := s.Err(); err != nil {
			return err
		}
		return nil
	case <-s.doneCh:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues a search and returns its correlation id without waiting for
// the engine.
func (s *Session) Submit(r Request) string {
	if r.ID == "" {
		r.ID = s.newID()
	}
	req := &request{Request: r, settled: make(chan struct{})}

	s.mu.Lock()
	var early error
	switch {
	case s.failure != nil:
		early = s.failure
	case !s.ready:
		early = ErrNotReady
	default:
		if _, dup := s.pending[r.ID]; dup {
			early = fmt.Errorf("duplicate request id %s", r.ID)
		}
	}
	if early != nil {
		s.mu.Unlock()
		s.settle(req, "", early)
		return r.ID
	}
	s.pending[r.ID] = req
	req.timer = time.AfterFunc(s.timeout, func() { s.expire(r.ID, ErrEngineTimeout) })
	s.mu.Unlock()

	go s.dispatch(req)
	return r.ID
}

// BestMove is the blocking form of Submit.
func (s *Session) BestMove(ctx context.Context, fen string, settings models.EngineSettings) (string, error) {
	type outcome struct {
		move string
		err  error
	}
	ch := make(chan outcome, 1)
	id := s.Submit(Request{
		Position: fen,
		Settings: settings,
		OnResult: func(move string) { ch <- outcome{move: move} },
		OnError:  func(err error) { ch <- outcome{err: err} },
	})
	select {
	case o := <-ch:
		return o.move, o.err
	case <-ctx.Done():
		s.expire(id, ctx.Err())
		o := <-ch
		return o.move, o.err
	}
}

// Close fails anything pending, asks the engine to quit and releases the
// connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.fail(fmt.Errorf("%w: session closed", ErrEngineUnavailable))
	if s.conn == nil {
		return nil
	}
	_ = s.conn.Send("quit")
	return s.conn.Close()
}

func (s *Session) dispatch(req *request) {
	select {
	case s.slot <- struct{}{}:
	case <-req.settled:
		return
	}

	s.mu.Lock()
	if _, ok := s.pending[req.ID]; !ok || s.failure != nil {
		s.mu.Unlock()
		s.release()
		return
	}
	req.dispatched = true
	s.inflight = append(s.inflight, req.ID)
	s.mu.Unlock()

	err := s.conn.Send("position fen " + req.Position)
	if err == nil {
		err = s.conn.Send(goCommand(req.Settings))
	}
	if err != nil {
		s.fail(fmt.Errorf("%w: write: %v", ErrEngineUnavailable, err))
		return
	}
	s.log.Debug().Str("id", req.ID).Str("fen", req.Position).Msg("engine search started")
}

func (s *Session) release() {
	select {
	case <-s.slot:
	default:
	}
}

// expire settles a request that is still pending. Its id stays in the
// inflight queue so the engine's eventual reply is recognised and dropped.
func (s *Session) expire(id string, cause error) {
	s.mu.Lock()
	req, ok := s.pending[id]
	dispatched := ok && req.dispatched
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if dispatched {
		_ = s.conn.Send("stop")
	}
	s.log.Warn().Str("id", id).Err(cause).Msg("engine request abandoned")
	s.settle(req, "", cause)
}

// settle must only be called by the goroutine that removed req from pending
// (or that never added it).
func (s *Session) settle(req *request, move string, err error) {
	if req.timer != nil {
		req.timer.Stop()
	}
	close(req.settled)
	if err != nil {
		if req.OnError != nil {
			req.OnError(err)
		}
		return
	}
	if req.OnResult != nil {
		req.OnResult(move)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.failure != nil {
		s.mu.Unlock()
		return
	}
	s.failure = err
	s.ready = false
	reqs := make([]*request, 0, len(s.pending))
	for _, r := range s.pending {
		reqs = append(reqs, r)
	}
	s.pending = make(map[string]*request)
	s.inflight = nil
	close(s.doneCh)
	closing := s.closed
	s.mu.Unlock()

	if !closing {
		s.log.Error().Err(err).Int("pending", len(reqs)).Msg("engine marked unavailable")
	}
	for _, r := range reqs {
		s.settle(r, "", err)
	}
}

func (s *Session) readLoop(lines, errs <-chan string) {
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				s.fail(fmt.Errorf("%w: engine output closed", ErrEngineUnavailable))
				continue
			}
			s.handleLine(line)
		case line, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.fail(fmt.Errorf("%w: stderr: %s", ErrEngineUnavailable, line))
		}
	}
	if errs != nil {
		go func() {
			for range errs {
			}
		}()
	}
}

func (s *Session) handleLine(line string) {
	switch {
	case line == "uciok":
		s.ack(func() { s.uciOK = true })
	case line == "readyok":
		s.ack(func() { s.readyOK = true })
	case strings.HasPrefix(line, "bestmove"):
		s.onBestMove(line)
	default:
		s.log.Trace().Str("line", line).Msg("engine output")
	}
}

func (s *Session) ack(set func()) {
	s.mu.Lock()
	set()
	becameReady := s.uciOK && s.readyOK && !s.ready && s.failure == nil
	if becameReady {
		s.ready = true
		close(s.readyCh)
	}
	s.mu.Unlock()
	if becameReady {
		s.log.Info().Msg("engine ready")
	}
}

func (s *Session) onBestMove(line string) {
	token := parseBestMove(line)

	s.mu.Lock()
	if len(s.inflight) == 0 {
		s.mu.Unlock()
		s.log.Debug().Str("line", line).Msg("unsolicited bestmove dropped")
		return
	}
	id := s.inflight[0]
	s.inflight = s.inflight[1:]
	req := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	s.release()

	if req == nil {
		s.log.Debug().Str("id", id).Str("move", token).Msg("late bestmove dropped")
		return
	}
	if token == "" || token == "(none)" {
		s.settle(req, "", ErrNoBestMove)
		return
	}
	s.settle(req, token, nil)
}

func parseBestMove(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func goCommand(st models.EngineSettings) string {
	if st.UseDepth || st.MoveTimeMS <= 0 {
		depth := st.Depth
		if depth <= 0 {
			depth = DefaultDepth
		}
		return fmt.Sprintf("go depth %d", depth)
	}
	return fmt.Sprintf("go movetime %d", st.MoveTimeMS)
}
