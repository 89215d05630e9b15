package cache

import (
	"time"

	"httpwire/header"
	"httpwire/lib/queue"
	"httpwire/wire"

	"github.com/benbjohnson/clock"
)

const (
	DefaultFIFOSize = 32
	DefaultFIFOTTL  = 10 * time.Minute

	// existsGrace is how far into the future Exists projects entry ages, so
	// that a positive answer stays valid for at least a short while.
	existsGrace = 50 * time.Millisecond
)

// FIFO is a simple first-in-first-out cache with a single TTL for all
// entries. Not safe for concurrent use; that is a contract, not an oversight.
type FIFO struct {
	size int
	ttl  time.Duration

	entries  map[Key]*entry
	eviction *queue.Queue[Key]
	clock    clock.Clock
}

type entry struct {
	status  *wire.Status
	headers *header.ResponseHeaders
	body    string
	file    string
	kind    BodyKind

	insertedAt time.Time
}

var _ Cache = (*FIFO)(nil)

// NewFIFO builds a cache bounded to size entries that drops entries older
// than ttl. Non-positive arguments fall back to the defaults. A nil clock
// means the wall clock.
func NewFIFO(size int, ttl time.Duration, clk clock.Clock) *FIFO {
	if size <= 0 {
		size = DefaultFIFOSize
	}
	if ttl <= 0 {
		ttl = DefaultFIFOTTL
	}
	if clk == nil {
		clk = clock.New()
	}

	return &FIFO{
		size:     size,
		ttl:      ttl,
		entries:  make(map[Key]*entry),
		eviction: queue.New[Key](uint(size)),
		clock:    clk,
	}
}

func (c *FIFO) Exists(req Request) bool {
	c.cleanUp(existsGrace)
	_, ok := c.entries[req.Fingerprint()]
	return ok
}

func (c *FIFO) Evict(req Request) {
	delete(c.entries, req.Fingerprint())
}

// cleanUp lazily drops entries older than the TTL from the front of the
// eviction queue. Queue keys may point at entries already evicted; those are
// skipped.
func (c *FIFO) cleanUp(grace time.Duration) {
	for c.eviction.Len() > 0 {
		key, _ := c.eviction.Peek()

		e, ok := c.entries[key]
		if !ok {
			// Evicted out of band; the queue entry is stale.
			c.eviction.Dequeue()
			continue
		}

		if c.clock.Since(e.insertedAt)+grace < c.ttl {
			break
		}

		c.eviction.Dequeue()
		delete(c.entries, key)
	}
}

func (c *FIFO) put(key Key, e *entry) {
	e.insertedAt = c.clock.Now()
	c.entries[key] = e
	c.eviction.Enqueue(key)

	for len(c.entries) > c.size {
		evicted, err := c.eviction.Dequeue()
		if err != nil {
			break
		}
		delete(c.entries, evicted)
	}
}

// get returns the live entry for the request, or nil.
func (c *FIFO) get(req Request) *entry {
	c.cleanUp(0)
	return c.entries[req.Fingerprint()]
}

// upsert fetches the entry for in-place update, creating it when absent.
func (c *FIFO) upsert(req Request) *entry {
	if c.Exists(req) {
		return c.entries[req.Fingerprint()]
	}
	e := &entry{}
	c.put(req.Fingerprint(), e)
	return e
}

func (c *FIFO) PutStatus(req Request, status wire.Status) {
	c.upsert(req).status = &status
}

func (c *FIFO) PutHeaders(req Request, headers *header.ResponseHeaders) {
	c.upsert(req).headers = headers
}

func (c *FIFO) PutString(req Request, body string) {
	e := c.upsert(req)
	e.body = body
	e.file = ""
	e.kind = BodyString
}

func (c *FIFO) PutFile(req Request, path string) {
	e := c.upsert(req)
	e.file = path
	e.body = ""
	e.kind = BodyFile
}

func (c *FIFO) Status(req Request) (wire.Status, bool) {
	if e := c.get(req); e != nil && e.status != nil {
		return *e.status, true
	}
	return wire.Status{}, false
}

func (c *FIFO) Headers(req Request) (*header.ResponseHeaders, bool) {
	if e := c.get(req); e != nil && e.headers != nil {
		return e.headers, true
	}
	return nil, false
}

func (c *FIFO) BodyString(req Request) (string, bool) {
	if e := c.get(req); e != nil && e.kind == BodyString {
		return e.body, true
	}
	return "", false
}

func (c *FIFO) BodyFile(req Request) (string, bool) {
	if e := c.get(req); e != nil && e.kind == BodyFile {
		return e.file, true
	}
	return "", false
}

func (c *FIFO) Kind(req Request) BodyKind {
	if e := c.get(req); e != nil {
		return e.kind
	}
	return BodyNone
}

func (c *FIFO) Age(req Request) (time.Duration, bool) {
	if e := c.get(req); e != nil {
		return c.clock.Since(e.insertedAt), true
	}
	return 0, false
}
