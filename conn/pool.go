package conn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"httpwire"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Config carries the pool knobs. The zero value is not valid; start from
// [DefaultConfig].
type Config struct {
	// MaxTotal caps the number of sockets across all endpoints. When the cap
	// is reached a caller has to wait for a socket to be freed.
	MaxTotal int
	// MaxPerEndpoint caps the number of sockets kept open to one endpoint.
	MaxPerEndpoint int
	// IdleAliveTime is the longest a socket may idle before cleanup closes it.
	IdleAliveTime time.Duration
	// MaxAge is the longest a socket may live before cleanup closes it.
	// Sockets that are in use are never closed regardless of age.
	MaxAge time.Duration
	// MaxWait bounds how long an acquisition may wait for a socket.
	MaxWait time.Duration
	// PollInterval is how long a waiter sleeps before rechecking the pool.
	// Access to the pool is serialised, sleeping isn't, which lets multiple
	// waiters make progress independently. Shouldn't be too high, but should
	// be noticeably larger than 0.
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxTotal:       32,
		MaxPerEndpoint: 8,
		IdleAliveTime:  60 * time.Second,
		MaxAge:         2 * time.Hour,
		MaxWait:        2 * time.Second,
		PollInterval:   100 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if c.MaxTotal < 1 || c.MaxPerEndpoint < 1 {
		return errors.Wrap(httpwire.ErrInvalidConfig, "connection caps must be positive")
	}
	if c.IdleAliveTime <= 0 || c.MaxAge <= 0 || c.MaxWait <= 0 || c.PollInterval <= 0 {
		return errors.Wrap(httpwire.ErrInvalidConfig, "durations must be positive")
	}
	return nil
}

// Pool is a bounded set of long-lived sockets multiplexed across concurrent
// callers, keyed by endpoint. Acquisition is not first-come-first-serve:
// fairness is declined in favour of simpler invariants.
type Pool struct {
	mu    sync.Mutex
	conns map[string][]*Socket
	count int

	config Config

	clock  clock.Clock
	logger *slog.Logger

	// dial opens a new socket; replaced in tests.
	dial func(ep Endpoint) (*Socket, error)
}

// NewPool builds a pool. A nil clock means the wall clock; a nil logger means
// [slog.Default].
func NewPool(config Config, clk clock.Clock, logger *slog.Logger) (*Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		conns:  make(map[string][]*Socket),
		config: config,
		clock:  clk,
		logger: logger,
	}
	p.dial = func(ep Endpoint) (*Socket, error) { return Dial(ep, p.clock) }

	return p, nil
}

// Config returns the current pool configuration.
func (p *Pool) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// SetConfig replaces the configuration. No guarantees are given on when the
// change takes effect for waiters already in flight.
func (p *Pool) SetConfig(config Config) error {
	if err := config.validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.config = config
	p.mu.Unlock()
	return nil
}

// Size returns the number of live sockets currently pooled. Dead sockets are
// cleaned up first; readers outside the lock see an eventually-consistent
// value.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanupLocked()
	return p.count
}

// AcquireBlocking returns an acquired socket to the endpoint, opening a new
// one if the caps allow it, or fails with [httpwire.ErrTimeout] once MaxWait
// elapses. Cancelling ctx while waiting is reported as a timeout too.
func (p *Pool) AcquireBlocking(ctx context.Context, ep Endpoint) (*Socket, error) {
	start := p.clock.Now()

	for {
		s, err := p.tryAcquire(ep)
		if err != nil {
			return nil, err
		}
		if s != nil {
			return s, nil
		}

		// Sleep outside the pool lock so other waiters make progress.
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(httpwire.ErrTimeout, "cannot obtain connection; try again later")
		case <-p.clock.After(p.Config().PollInterval):
		}

		if p.clock.Since(start) >= p.Config().MaxWait {
			return nil, errors.Wrap(httpwire.ErrTimeout, "cannot obtain connection; try again later")
		}
	}
}

// tryAcquire makes a single pass under the pool lock: clean up, scan the
// endpoint's sockets for an idle one, or open a new one if both caps leave
// room. Returns (nil, nil) when the caller should wait and retry.
func (p *Pool) tryAcquire(ep Endpoint) (*Socket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cleanupLocked()

	key := ep.Key()
	list := p.conns[key]

	for _, s := range list {
		if s.AcquireIfIdle() {
			return s, nil
		}
	}

	if len(list) < p.config.MaxPerEndpoint && p.count < p.config.MaxTotal {
		s, err := p.dial(ep)
		if err != nil {
			return nil, errors.Wrap(err, "opening connection")
		}
		s.AcquireIfIdle()
		p.conns[key] = append(list, s)
		p.count++
		return s, nil
	}

	return nil, nil
}

// cleanupLocked removes closed sockets and closes idle ones that outlived
// IdleAliveTime or MaxAge. Sockets in use are kept regardless of age.
func (p *Pool) cleanupLocked() {
	count := 0
	for key, list := range p.conns {
		kept := list[:0]
		for _, s := range list {
			switch {
			case s.IsClosed():
				// drop
			case !s.InUse() && (s.IdlingTime() > p.config.IdleAliveTime || s.Age() > p.config.MaxAge):
				if err := s.Close(); err != nil {
					p.logger.Warn("closing expired socket", "endpoint", s.Endpoint().String(), "err", err)
				}
			default:
				kept = append(kept, s)
				count++
			}
		}
		if len(kept) == 0 {
			delete(p.conns, key)
		} else {
			p.conns[key] = kept
		}
	}
	p.count = count
}

// Close tears down every pooled socket, in use or not, and empties the pool.
// Per-socket close failures are aggregated.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var merr *multierror.Error
	for _, list := range p.conns {
		for _, s := range list {
			if err := s.Close(); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
	}

	p.conns = make(map[string][]*Socket)
	p.count = 0

	return merr.ErrorOrNil()
}
