package conn

import (
	"context"
	"net"
	"testing"
	"time"

	"httpwire"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestConfigValidation(t *testing.T) {
	testcases := []struct {
		desc   string
		mutate func(c *Config)
	}{
		{desc: "zero total", mutate: func(c *Config) { c.MaxTotal = 0 }},
		{desc: "negative per endpoint", mutate: func(c *Config) { c.MaxPerEndpoint = -1 }},
		{desc: "zero alive time", mutate: func(c *Config) { c.IdleAliveTime = 0 }},
		{desc: "negative max age", mutate: func(c *Config) { c.MaxAge = -time.Second }},
		{desc: "zero max wait", mutate: func(c *Config) { c.MaxWait = 0 }},
		{desc: "zero poll interval", mutate: func(c *Config) { c.PollInterval = 0 }},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			_, err := NewPool(cfg, nil, nil)
			assert.ErrorIs(t, err, httpwire.ErrInvalidConfig)
		})
	}

	_, err := NewPool(DefaultConfig(), nil, nil)
	assert.NoError(t, err)
}

type PoolTestSuite struct {
	suite.Suite

	pool *Pool

	// peers keeps the server half of every fake-dialed connection alive.
	peers []net.Conn
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (s *PoolTestSuite) SetupTest() {
	cfg := DefaultConfig()
	cfg.MaxWait = 500 * time.Millisecond
	cfg.PollInterval = 50 * time.Millisecond

	pool, err := NewPool(cfg, nil, nil)
	s.Require().NoError(err)

	s.peers = nil
	pool.dial = s.fakeDial
	s.pool = pool
}

func (s *PoolTestSuite) TearDownTest() {
	s.pool.Close()
	for _, peer := range s.peers {
		peer.Close()
	}
}

// fakeDial hands the pool real sockets backed by TCP pairs, without touching
// the endpoint's actual address.
func (s *PoolTestSuite) fakeDial(ep Endpoint) (*Socket, error) {
	client, server := tcpPair(s.T())
	s.peers = append(s.peers, server)
	return newSocket(client, ep, s.pool.clock), nil
}

func endpointA() Endpoint { return Endpoint{host: "a", addr: "127.0.0.1", port: 1001} }
func endpointB() Endpoint { return Endpoint{host: "b", addr: "127.0.0.1", port: 1002} }

func (s *PoolTestSuite) TestAcquireOpensAndReuses() {
	ctx := context.Background()

	sock, err := s.pool.AcquireBlocking(ctx, endpointA())
	s.Require().NoError(err)
	s.Equal(1, s.pool.Size())

	sock.Release()

	again, err := s.pool.AcquireBlocking(ctx, endpointA())
	s.Require().NoError(err)
	s.Same(sock, again, "released socket should be handed out again")
	s.Equal(1, s.pool.Size())
}

func (s *PoolTestSuite) TestAcquireTimeoutBounds() {
	cfg := s.pool.Config()
	cfg.MaxTotal = 1
	cfg.MaxPerEndpoint = 1
	s.Require().NoError(s.pool.SetConfig(cfg))

	_, err := s.pool.AcquireBlocking(context.Background(), endpointA())
	s.Require().NoError(err)

	start := time.Now()
	_, err = s.pool.AcquireBlocking(context.Background(), endpointA())
	elapsed := time.Since(start)

	s.Require().ErrorIs(err, httpwire.ErrTimeout)
	s.GreaterOrEqual(elapsed, 500*time.Millisecond)
	s.Less(elapsed, 700*time.Millisecond)
}

func (s *PoolTestSuite) TestEndpointStarvationWithSpareCapacity() {
	cfg := s.pool.Config()
	cfg.MaxTotal = 4
	cfg.MaxPerEndpoint = 1
	cfg.MaxWait = 200 * time.Millisecond
	s.Require().NoError(s.pool.SetConfig(cfg))

	ctx := context.Background()

	_, err := s.pool.AcquireBlocking(ctx, endpointA())
	s.Require().NoError(err)
	_, err = s.pool.AcquireBlocking(ctx, endpointB())
	s.Require().NoError(err)

	// Global capacity remains, but the per-endpoint cap starves both.
	_, err = s.pool.AcquireBlocking(ctx, endpointA())
	s.ErrorIs(err, httpwire.ErrTimeout)
	_, err = s.pool.AcquireBlocking(ctx, endpointB())
	s.ErrorIs(err, httpwire.ErrTimeout)
}

func (s *PoolTestSuite) TestTotalCap() {
	cfg := s.pool.Config()
	cfg.MaxTotal = 2
	cfg.MaxPerEndpoint = 8
	cfg.MaxWait = 200 * time.Millisecond
	s.Require().NoError(s.pool.SetConfig(cfg))

	ctx := context.Background()

	_, err := s.pool.AcquireBlocking(ctx, endpointA())
	s.Require().NoError(err)
	_, err = s.pool.AcquireBlocking(ctx, endpointA())
	s.Require().NoError(err)

	_, err = s.pool.AcquireBlocking(ctx, endpointB())
	s.ErrorIs(err, httpwire.ErrTimeout, "global cap binds even for a fresh endpoint")
}

func (s *PoolTestSuite) TestContextCancelReportsTimeout() {
	cfg := s.pool.Config()
	cfg.MaxTotal = 1
	cfg.MaxPerEndpoint = 1
	s.Require().NoError(s.pool.SetConfig(cfg))

	_, err := s.pool.AcquireBlocking(context.Background(), endpointA())
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = s.pool.AcquireBlocking(ctx, endpointA())
	s.ErrorIs(err, httpwire.ErrTimeout, "interruption while waiting is reported as timeout")
	s.Less(time.Since(start), 400*time.Millisecond)
}

func (s *PoolTestSuite) TestDialErrorPropagates() {
	dialErr := errors.New("connection refused")
	s.pool.dial = func(ep Endpoint) (*Socket, error) { return nil, dialErr }

	_, err := s.pool.AcquireBlocking(context.Background(), endpointA())
	s.ErrorIs(err, dialErr)
	s.NotErrorIs(err, httpwire.ErrTimeout)
}

func (s *PoolTestSuite) TestCleanupRemovesClosed() {
	ctx := context.Background()

	sock, err := s.pool.AcquireBlocking(ctx, endpointA())
	s.Require().NoError(err)
	sock.Release()

	s.Require().NoError(sock.Close())
	s.Equal(0, s.pool.Size())

	// The next acquisition must open a fresh socket.
	again, err := s.pool.AcquireBlocking(ctx, endpointA())
	s.Require().NoError(err)
	s.NotSame(sock, again)
}

func (s *PoolTestSuite) TestCleanupClosesExpired() {
	mock := clock.NewMock()
	cfg := s.pool.Config()
	pool, err := NewPool(cfg, mock, nil)
	s.Require().NoError(err)
	pool.dial = func(ep Endpoint) (*Socket, error) {
		client, server := tcpPair(s.T())
		s.peers = append(s.peers, server)
		return newSocket(client, ep, mock), nil
	}

	sock, err := pool.tryAcquire(endpointA())
	s.Require().NoError(err)
	s.Require().NotNil(sock)
	sock.Release()

	mock.Add(cfg.IdleAliveTime + time.Second)

	s.Equal(0, pool.Size(), "idle socket past IdleAliveTime is evicted")
	s.True(sock.IsClosed())
}

func (s *PoolTestSuite) TestCleanupSparesInUseSockets() {
	mock := clock.NewMock()
	cfg := s.pool.Config()
	pool, err := NewPool(cfg, mock, nil)
	s.Require().NoError(err)
	pool.dial = func(ep Endpoint) (*Socket, error) {
		client, server := tcpPair(s.T())
		s.peers = append(s.peers, server)
		return newSocket(client, ep, mock), nil
	}

	sock, err := pool.tryAcquire(endpointA())
	s.Require().NoError(err)
	s.Require().NotNil(sock)

	mock.Add(cfg.MaxAge + time.Hour)

	s.Equal(1, pool.Size(), "in-use sockets are never closed by cleanup")
	s.False(sock.IsClosed())
}

func (s *PoolTestSuite) TestClose() {
	ctx := context.Background()

	a, err := s.pool.AcquireBlocking(ctx, endpointA())
	s.Require().NoError(err)
	b, err := s.pool.AcquireBlocking(ctx, endpointB())
	s.Require().NoError(err)

	s.Require().NoError(s.pool.Close())

	s.True(a.IsClosed())
	s.True(b.IsClosed())
	s.Equal(0, s.pool.Size())
}

type asyncCallbacks struct {
	obtained chan *Socket
	timeouts chan struct{}
	failures chan error
}

func newAsyncCallbacks() *asyncCallbacks {
	return &asyncCallbacks{
		obtained: make(chan *Socket, 1),
		timeouts: make(chan struct{}, 1),
		failures: make(chan error, 1),
	}
}

func (a *asyncCallbacks) OnObtained(s *Socket) { a.obtained <- s }
func (a *asyncCallbacks) OnTimeout()           { a.timeouts <- struct{}{} }
func (a *asyncCallbacks) OnError(err error)    { a.failures <- err }

func (s *PoolTestSuite) TestAcquireAsyncObtained() {
	callbacks := newAsyncCallbacks()
	s.pool.AcquireAsync(endpointA(), callbacks)

	select {
	case sock := <-callbacks.obtained:
		s.NotNil(sock)
		s.True(sock.InUse())
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for OnObtained")
	}
}

func (s *PoolTestSuite) TestAcquireAsyncTimeout() {
	cfg := s.pool.Config()
	cfg.MaxTotal = 1
	cfg.MaxPerEndpoint = 1
	cfg.MaxWait = 150 * time.Millisecond
	s.Require().NoError(s.pool.SetConfig(cfg))

	_, err := s.pool.AcquireBlocking(context.Background(), endpointA())
	s.Require().NoError(err)

	callbacks := newAsyncCallbacks()
	s.pool.AcquireAsync(endpointA(), callbacks)

	select {
	case <-callbacks.timeouts:
	case <-callbacks.obtained:
		s.FailNow("OnObtained must not follow once the wait budget is spent")
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for OnTimeout")
	}

	// OnTimeout fires exactly once; nothing else trickles in afterwards.
	select {
	case <-callbacks.timeouts:
		s.FailNow("OnTimeout fired twice")
	case <-callbacks.obtained:
		s.FailNow("OnObtained after OnTimeout")
	case <-time.After(200 * time.Millisecond):
	}
}

func (s *PoolTestSuite) TestAcquireAsyncEventuallyObtains() {
	cfg := s.pool.Config()
	cfg.MaxTotal = 1
	cfg.MaxPerEndpoint = 1
	s.Require().NoError(s.pool.SetConfig(cfg))

	sock, err := s.pool.AcquireBlocking(context.Background(), endpointA())
	s.Require().NoError(err)

	callbacks := newAsyncCallbacks()
	s.pool.AcquireAsync(endpointA(), callbacks)

	time.Sleep(100 * time.Millisecond)
	sock.Release()

	select {
	case got := <-callbacks.obtained:
		s.Same(sock, got)
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for OnObtained")
	}
}
