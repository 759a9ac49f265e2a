// Package engine talks UCI to an external chess engine over a line-oriented
// connection. A Session owns one connection, correlates bestmove replies with
// outstanding requests and degrades to "unavailable" instead of retrying.
package engine

import (
	"bufio"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const closeGrace = 2 * time.Second

// Conn is a line-oriented link to a UCI engine. Lines and Stderr are closed
// when the corresponding stream ends; Stderr may be nil.
type Conn interface {
	Send(line string) error
	Lines() <-chan string
	Stderr() <-chan string
	Close() error
}

type streamConn struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closed bool
	lines  chan string
	errs   chan string
	closer func() error
	once   sync.Once
	err    error
}

// NewStreamConn builds a Conn over arbitrary streams, e.g. io.Pipe halves.
// stderr may be nil.
func NewStreamConn(stdout io.Reader, stdin io.Writer, stderr io.Reader) Conn {
	var closer func() error
	if c, ok := stdin.(io.Closer); ok {
		closer = c.Close
	}
	return newStreamConn(stdout, stdin, stderr, closer)
}

func newStreamConn(stdout io.Reader, stdin io.Writer, stderr io.Reader, closer func() error) *streamConn {
	c := &streamConn{
		w:      bufio.NewWriter(stdin),
		lines:  make(chan string, 64),
		closer: closer,
	}
	go pump(stdout, c.lines)
	if stderr != nil {
		c.errs = make(chan string, 16)
		go pump(stderr, c.errs)
	}
	return c
}

func pump(r io.Reader, out chan<- string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- strings.TrimRight(sc.Text(), "\r")
	}
	close(out)
}

func (c *streamConn) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	if _, err := c.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *streamConn) Lines() <-chan string { return c.lines }

func (c *streamConn) Stderr() <-chan string {
	if c.errs == nil {
		return nil
	}
	return c.errs
}

func (c *streamConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.closer != nil {
			c.err = c.closer()
		}
	})
	return c.err
}

// StartProcess launches an engine binary and connects to its stdio.
func StartProcess(path string, args ...string) (Conn, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	closer := func() error {
		_ = stdin.Close()
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case err := <-done:
			return err
		case <-time.After(closeGrace):
			_ = cmd.Process.Kill()
			<-done
			return nil
		}
	}
	return newStreamConn(stdout, stdin, stderr, closer), nil
}
