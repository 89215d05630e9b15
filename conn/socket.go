package conn

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"httpwire/wire"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// Socket is a leased byte channel to one [Endpoint]. It must be acquired
// before anything is written to or read from it; releasing it makes it
// available to other transactions without closing the underlying connection.
// Socket and connection are used interchangeably.
type Socket struct {
	endpoint Endpoint
	conn     net.Conn
	br       *bufio.Reader
	bw       *bufio.Writer
	clock    clock.Clock

	mu            sync.Mutex // guards the lease state below
	inUse         bool
	closed        bool
	readingChunks bool
	openedAt      time.Time
	lastUsedAt    time.Time
}

// Dial opens a connection to the endpoint. When the endpoint carries the TLS
// flag the handshake happens before any application bytes; minimum version
// TLS 1.2, platform default trust store.
func Dial(ep Endpoint, clk clock.Clock) (*Socket, error) {
	if clk == nil {
		clk = clock.New()
	}

	c, err := net.Dial("tcp", ep.Key())
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", ep)
	}

	if ep.TLS() {
		tlsConn := tls.Client(c, &tls.Config{
			ServerName: ep.Host(),
			MinVersion: tls.VersionTLS12,
		})
		if err := tlsConn.Handshake(); err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "tls handshake with %s", ep)
		}
		c = tlsConn
	}

	return newSocket(c, ep, clk), nil
}

// newSocket wraps an established connection. Split from Dial so tests can
// feed in pipes.
func newSocket(c net.Conn, ep Endpoint, clk clock.Clock) *Socket {
	now := clk.Now()
	return &Socket{
		endpoint:   ep,
		conn:       c,
		br:         bufio.NewReader(c),
		bw:         bufio.NewWriter(c),
		clock:      clk,
		openedAt:   now,
		lastUsedAt: now,
	}
}

func (s *Socket) Endpoint() Endpoint { return s.endpoint }

// AcquireIfIdle acquires this connection if it is idle and not closed and
// returns true; otherwise returns false. Checking idleness separately would
// be inherently racy, so this is the only way in.
func (s *Socket) AcquireIfIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inUse || s.closed {
		return false
	}
	s.inUse = true
	return true
}

// Release makes the socket available for other transactions. Whatever the
// previous exchange left unread is drained, waiting at most about a
// millisecond for stragglers. Releasing does
// not close the underlying connection.
func (s *Socket) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.drain()
	}
	s.inUse = false
	s.lastUsedAt = s.clock.Now()
}

// drain discards residual readable bytes, waiting at most about a millisecond
// for more to show up.
func (s *Socket) drain() {
	if s.br.Buffered() > 0 {
		_, _ = s.br.Discard(s.br.Buffered())
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return
	}
	buf := make([]byte, 512)
	for {
		n, err := s.conn.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	_ = s.conn.SetReadDeadline(time.Time{})
}

// InUse reports whether the socket is currently leased.
func (s *Socket) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

func (s *Socket) ensureAcquired() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inUse {
		return errors.New("socket is not acquired")
	}
	return nil
}

func (s *Socket) touch() {
	s.mu.Lock()
	s.lastUsedAt = s.clock.Now()
	s.mu.Unlock()
}

// Print buffers text to be sent to the server. The bytes are not guaranteed
// to leave before [Socket.Flush].
func (s *Socket) Print(text string) error {
	if err := s.ensureAcquired(); err != nil {
		return err
	}
	if _, err := s.bw.WriteString(text); err != nil {
		return errors.Wrap(err, "writing data to socket")
	}
	s.touch()
	return nil
}

// Write sends raw bytes to the server and flushes the connection.
func (s *Socket) Write(p []byte) (int, error) {
	if err := s.ensureAcquired(); err != nil {
		return 0, err
	}
	if _, err := s.bw.Write(p); err != nil {
		return 0, errors.Wrap(err, "writing bytes to socket")
	}
	if err := s.bw.Flush(); err != nil {
		return 0, errors.Wrap(err, "flushing socket")
	}
	s.touch()
	return len(p), nil
}

// Flush sends any buffered bytes to the server.
func (s *Socket) Flush() error {
	if err := s.ensureAcquired(); err != nil {
		return err
	}
	if err := s.bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing the connection")
	}
	s.touch()
	return nil
}

// Read reads up to len(p) bytes from the server, blocking until data arrives
// or the connection closes. While a chunked read is in progress it returns
// io.EOF.
func (s *Socket) Read(p []byte) (int, error) {
	if err := s.ensureAcquired(); err != nil {
		return 0, err
	}
	if s.chunkGuard() {
		return 0, io.EOF
	}
	n, err := s.br.Read(p)
	s.touch()
	return n, err
}

// ReadLine reads a line from the server, accepting either CRLF or a bare LF
// as the terminator (tolerant of servers that violate RFC 9112). The
// terminator is not included. This blocks until a full line or EOF; it should
// not be used for reading response bodies.
func (s *Socket) ReadLine() (string, error) {
	if err := s.ensureAcquired(); err != nil {
		return "", err
	}
	if s.chunkGuard() {
		return "", io.EOF
	}
	return s.rawReadLine()
}

func (s *Socket) rawReadLine() (string, error) {
	line, err := s.br.ReadString('\n')
	if err != nil {
		if len(line) > 0 && errors.Is(err, io.EOF) {
			// A final unterminated line still counts.
			return line, nil
		}
		return "", err
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	s.touch()
	return line, nil
}

func (s *Socket) chunkGuard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readingChunks || s.closed
}

// InputReady reports whether there's more input waiting to be read and no
// chunked read is in progress. Input not being ready does not imply there
// won't be more data on this socket later.
func (s *Socket) InputReady() (bool, error) {
	if err := s.ensureAcquired(); err != nil {
		return false, err
	}
	if s.chunkGuard() {
		return false, nil
	}
	if s.br.Buffered() > 0 {
		return true, nil
	}

	// Peek with a deadline a millisecond away so the check blocks at most that
	// long. A deadline already in the past fails the read before it looks at
	// what the kernel has buffered.
	if err := s.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return false, errors.Wrap(err, "setting read deadline")
	}
	_, err := s.br.Peek(1)
	_ = s.conn.SetReadDeadline(time.Time{})

	return err == nil, nil
}

// IsClosed reports whether the socket has been closed. Closed sockets cannot
// be written to, read from, or reacquired.
func (s *Socket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the connection down. Terminal: the socket cannot be reacquired.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.inUse = false
	s.lastUsedAt = s.clock.Now()

	if err := s.conn.Close(); err != nil {
		return errors.Wrap(err, "closing connection")
	}
	return nil
}

// IdlingTime is the duration since the socket was last released. A socket
// that is in use idles for 0.
func (s *Socket) IdlingTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse {
		return 0
	}
	return s.clock.Since(s.lastUsedAt)
}

// Age is the duration since the socket was opened.
func (s *Socket) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Since(s.openedAt)
}

func (s *Socket) setReadingChunks(v bool) {
	s.mu.Lock()
	s.readingChunks = v
	s.mu.Unlock()
}

// chunkSource exposes the raw buffered stream to the chunk codec, bypassing
// the readingChunks guard on the public read methods.
type chunkSource struct{ s *Socket }

func (c chunkSource) ReadLine() (string, error)  { return c.s.rawReadLine() }
func (c chunkSource) Read(p []byte) (int, error) { return c.s.br.Read(p) }

// ReadAllChunks assumes a chunked response and reads every chunk at once,
// stalling until the terminal chunk arrives. Trailer field lines are returned
// alongside the body for the caller to append to the response headers.
func (s *Socket) ReadAllChunks() (body []byte, trailers []string, err error) {
	if err := s.ensureAcquired(); err != nil {
		return nil, nil, err
	}

	s.setReadingChunks(true)
	defer s.setReadingChunks(false)

	cr := wire.NewChunkedReader(chunkSource{s})
	for {
		chunk, err := cr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, err
		}
		body = append(body, chunk...)
	}

	s.touch()
	return body, cr.Trailers(), nil
}

// Executor runs callbacks somewhere of the caller's choosing. A nil Executor
// runs them on the background goroutine doing the reading.
type Executor func(task func())

func (e Executor) run(task func()) {
	if e == nil {
		task()
		return
	}
	e(task)
}

// ChunkCallbacks inform the caller about chunk reading progress.
type ChunkCallbacks interface {
	// OnChunk is called every time a whole chunk is received.
	OnChunk(chunk []byte)
	// OnEnd is called after the last chunk, with any trailer field lines.
	OnEnd(trailers []string)
	// OnError is called if reading fails; no further callbacks follow.
	OnError(err error)
}

// ReadChunks reads chunks in the background and reports progress through the
// callbacks, executed on the given executor.
func (s *Socket) ReadChunks(callbacks ChunkCallbacks, executor Executor) error {
	if err := s.ensureAcquired(); err != nil {
		return err
	}

	s.setReadingChunks(true)

	go func() {
		defer s.setReadingChunks(false)

		cr := wire.NewChunkedReader(chunkSource{s})
		for {
			chunk, err := cr.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					s.touch()
					executor.run(func() { callbacks.OnEnd(cr.Trailers()) })
					return
				}
				executor.run(func() { callbacks.OnError(err) })
				return
			}
			executor.run(func() { callbacks.OnChunk(chunk) })
		}
	}()

	return nil
}
