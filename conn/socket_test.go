package conn

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// tcpPair returns both ends of a real TCP connection so socket reads and
// writes go through kernel buffering like they do in production.
func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	type accepted struct {
		c   net.Conn
		err error
	}
	ch := make(chan accepted, 1)
	go func() {
		c, err := ln.Accept()
		ch <- accepted{c, err}
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	a := <-ch
	require.NoError(t, a.err)

	t.Cleanup(func() {
		client.Close()
		a.c.Close()
	})

	return client, a.c
}

func testEndpoint() Endpoint {
	return Endpoint{host: "test", addr: "127.0.0.1", port: 80}
}

type SocketTestSuite struct {
	suite.Suite

	socket *Socket
	peer   net.Conn
	clock  *clock.Mock
}

func TestSocketTestSuite(t *testing.T) {
	suite.Run(t, new(SocketTestSuite))
}

func (s *SocketTestSuite) SetupTest() {
	client, server := tcpPair(s.T())
	s.clock = clock.NewMock()
	s.socket = newSocket(client, testEndpoint(), s.clock)
	s.peer = server
}

func (s *SocketTestSuite) TestAcquireIfIdle() {
	s.True(s.socket.AcquireIfIdle())
	s.False(s.socket.AcquireIfIdle(), "no two leases may coexist")

	s.socket.Release()
	s.True(s.socket.AcquireIfIdle())
}

func (s *SocketTestSuite) TestAcquireClosed() {
	s.Require().NoError(s.socket.Close())
	s.True(s.socket.IsClosed())
	s.False(s.socket.AcquireIfIdle(), "closed sockets cannot be reacquired")
}

func (s *SocketTestSuite) TestRequiresAcquired() {
	s.Error(s.socket.Print("x"))
	s.Error(s.socket.Flush())
	_, err := s.socket.Read(make([]byte, 1))
	s.Error(err)
	_, err = s.socket.ReadLine()
	s.Error(err)
	_, err = s.socket.Write([]byte("x"))
	s.Error(err)
}

func (s *SocketTestSuite) TestPrintIsBuffered() {
	s.Require().True(s.socket.AcquireIfIdle())

	s.Require().NoError(s.socket.Print("GET / HTTP/1.1\r\n"))
	s.Require().NoError(s.socket.Flush())

	buf := make([]byte, 64)
	n, err := s.peer.Read(buf)
	s.Require().NoError(err)
	s.Equal("GET / HTTP/1.1\r\n", string(buf[:n]))
}

func (s *SocketTestSuite) TestWriteFlushes() {
	s.Require().True(s.socket.AcquireIfIdle())

	n, err := s.socket.Write([]byte("body"))
	s.Require().NoError(err)
	s.Equal(4, n)

	buf := make([]byte, 16)
	read, err := s.peer.Read(buf)
	s.Require().NoError(err)
	s.Equal("body", string(buf[:read]))
}

func (s *SocketTestSuite) TestReadLineTerminators() {
	s.Require().True(s.socket.AcquireIfIdle())

	_, err := s.peer.Write([]byte("crlf line\r\nlf line\nrest"))
	s.Require().NoError(err)

	line, err := s.socket.ReadLine()
	s.Require().NoError(err)
	s.Equal("crlf line", line)

	line, err = s.socket.ReadLine()
	s.Require().NoError(err)
	s.Equal("lf line", line)
}

func (s *SocketTestSuite) TestReadLineEOF() {
	s.Require().True(s.socket.AcquireIfIdle())

	_, err := s.peer.Write([]byte("unterminated"))
	s.Require().NoError(err)
	s.Require().NoError(s.peer.Close())

	line, err := s.socket.ReadLine()
	s.Require().NoError(err)
	s.Equal("unterminated", line, "a final unterminated line still counts")

	_, err = s.socket.ReadLine()
	s.ErrorIs(err, io.EOF)
}

func (s *SocketTestSuite) TestReadAfterClose() {
	s.Require().True(s.socket.AcquireIfIdle())
	s.Require().NoError(s.socket.Close())

	// Closed socket is not acquired anymore: reacquiring fails, and reads are
	// refused because the lease was dropped.
	s.False(s.socket.AcquireIfIdle())
	_, err := s.socket.Read(make([]byte, 1))
	s.Error(err)
}

func (s *SocketTestSuite) TestReleaseDrainsLeftover() {
	s.Require().True(s.socket.AcquireIfIdle())

	_, err := s.peer.Write([]byte("leftover bytes"))
	s.Require().NoError(err)

	// Wait for the bytes to arrive before releasing.
	s.Require().Eventually(func() bool {
		ready, err := s.socket.InputReady()
		return err == nil && ready
	}, time.Second, 5*time.Millisecond)

	s.socket.Release()

	s.Require().True(s.socket.AcquireIfIdle())
	_, err = s.peer.Write([]byte("fresh\r\n"))
	s.Require().NoError(err)

	line, err := s.socket.ReadLine()
	s.Require().NoError(err)
	s.Equal("fresh", line, "release should have drained the leftover")
}

func (s *SocketTestSuite) TestInputReady() {
	s.Require().True(s.socket.AcquireIfIdle())

	ready, err := s.socket.InputReady()
	s.Require().NoError(err)
	s.False(ready)

	_, err = s.peer.Write([]byte("data"))
	s.Require().NoError(err)

	s.Eventually(func() bool {
		ready, err := s.socket.InputReady()
		return err == nil && ready
	}, time.Second, 5*time.Millisecond)
}

func (s *SocketTestSuite) TestIdlingTimeAndAge() {
	s.Equal(time.Duration(0), s.socket.Age())

	s.clock.Add(10 * time.Second)
	s.Equal(10*time.Second, s.socket.Age())
	s.Equal(10*time.Second, s.socket.IdlingTime())

	s.Require().True(s.socket.AcquireIfIdle())
	s.Equal(time.Duration(0), s.socket.IdlingTime(), "in-use sockets idle for 0")

	s.socket.Release()
	s.clock.Add(3 * time.Second)
	s.Equal(3*time.Second, s.socket.IdlingTime())
}

func (s *SocketTestSuite) TestReadAllChunks() {
	s.Require().True(s.socket.AcquireIfIdle())

	_, err := s.peer.Write([]byte("3\r\nfoo\r\n3\r\nbar\r\n0\r\nX-Trailer: 1\r\n\r\n"))
	s.Require().NoError(err)

	body, trailers, err := s.socket.ReadAllChunks()
	s.Require().NoError(err)
	s.Equal("foobar", string(body))
	s.Equal([]string{"X-Trailer: 1"}, trailers)
}

type collectingCallbacks struct {
	chunks   chan []byte
	done     chan []string
	failures chan error
}

func newCollectingCallbacks() *collectingCallbacks {
	return &collectingCallbacks{
		chunks:   make(chan []byte, 16),
		done:     make(chan []string, 1),
		failures: make(chan error, 1),
	}
}

func (c *collectingCallbacks) OnChunk(chunk []byte)     { c.chunks <- chunk }
func (c *collectingCallbacks) OnEnd(trailers []string)  { c.done <- trailers }
func (c *collectingCallbacks) OnError(err error)        { c.failures <- err }

func (s *SocketTestSuite) TestReadChunksCallbacks() {
	s.Require().True(s.socket.AcquireIfIdle())

	_, err := s.peer.Write([]byte("1\r\nA\r\n1\r\nB\r\n0\r\n\r\n"))
	s.Require().NoError(err)

	callbacks := newCollectingCallbacks()
	s.Require().NoError(s.socket.ReadChunks(callbacks, nil))

	s.Equal("A", string(<-callbacks.chunks))
	s.Equal("B", string(<-callbacks.chunks))

	select {
	case <-callbacks.done:
	case err := <-callbacks.failures:
		s.FailNow("unexpected error", err)
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for OnEnd")
	}
}

func (s *SocketTestSuite) TestReadChunksError() {
	s.Require().True(s.socket.AcquireIfIdle())

	_, err := s.peer.Write([]byte("1\r\nAX")) // missing CRLF delimiter
	s.Require().NoError(err)

	callbacks := newCollectingCallbacks()
	s.Require().NoError(s.socket.ReadChunks(callbacks, nil))

	// Feed the delimiter check one wrong byte, then end the stream.
	s.Require().NoError(s.peer.Close())

	select {
	case err := <-callbacks.failures:
		s.Error(err)
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for OnError")
	}
}

func (s *SocketTestSuite) TestReadChunksExecutor() {
	s.Require().True(s.socket.AcquireIfIdle())

	_, err := s.peer.Write([]byte("2\r\nhi\r\n0\r\n\r\n"))
	s.Require().NoError(err)

	executed := make(chan struct{}, 8)
	executor := Executor(func(task func()) {
		executed <- struct{}{}
		task()
	})

	callbacks := newCollectingCallbacks()
	s.Require().NoError(s.socket.ReadChunks(callbacks, executor))

	s.Equal("hi", string(<-callbacks.chunks))
	<-callbacks.done

	s.GreaterOrEqual(len(executed), 1, "callbacks must go through the executor")
}

func TestDialUnreachable(t *testing.T) {
	// Port 1 on localhost is almost certainly closed.
	ep := Endpoint{host: "127.0.0.1", addr: "127.0.0.1", port: 1}
	_, err := Dial(ep, clock.New())
	assert.Error(t, err)
}
