package client

import (
	"log/slog"

	"httpwire/cache"
	"httpwire/conn"
	"httpwire/wire"
)

// Client wires a pool, a cache and a policy together and mints transactions
// bound to them. The request-builder and error-translation layers sit on top
// of this surface.
type Client struct {
	pool   *conn.Pool
	cache  cache.Cache
	policy cache.Policy

	version  wire.Version
	respOpts ResponseOptions
	logger   *slog.Logger
}

// New builds a client around a default pool, a FIFO cache and the simple
// revalidation-only policy.
func New(logger *slog.Logger) (*Client, error) {
	pool, err := conn.NewPool(conn.DefaultConfig(), nil, logger)
	if err != nil {
		return nil, err
	}
	return NewWithPool(pool, logger), nil
}

// NewWithPool builds a client around an existing pool.
func NewWithPool(pool *conn.Pool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pool:     pool,
		cache:    cache.NewFIFO(0, 0, nil),
		policy:   cache.SimplePolicy{},
		version:  wire.HTTP11,
		respOpts: DefaultResponseOptions(),
		logger:   logger,
	}
}

// Pool returns the connection pool transactions draw sockets from.
func (c *Client) Pool() *conn.Pool { return c.pool }

// SetPool replaces the pool. Transactions already minted keep the old one.
func (c *Client) SetPool(pool *conn.Pool) { c.pool = pool }

// Cache returns the response cache shared by new transactions.
func (c *Client) Cache() cache.Cache { return c.cache }

// SetCache replaces the cache; nil installs [cache.Empty].
func (c *Client) SetCache(cc cache.Cache) {
	if cc == nil {
		cc = cache.Empty{}
	}
	c.cache = cc
}

// SetCachingPolicy replaces the policy handed to new transactions.
func (c *Client) SetCachingPolicy(policy cache.Policy) { c.policy = policy }

// SetHTTPVersion sets the version new transactions speak.
func (c *Client) SetHTTPVersion(version wire.Version) { c.version = version }

// SetResponseOptions sets the parsing knobs handed to new transactions.
func (c *Client) SetResponseOptions(opts ResponseOptions) { c.respOpts = opts }

// NewTransaction mints a single-use transaction bound to this client's pool,
// cache and policy.
func (c *Client) NewTransaction() *Transaction {
	t := NewTransaction(c.pool, c.logger)
	t.UseCache(c.cache)
	t.UseCachingPolicy(c.policy)
	t.SetHTTPVersion(c.version)
	t.SetResponseOptions(c.respOpts)
	return t
}
