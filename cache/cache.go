// Package cache holds the pluggable response cache consulted by transactions
// on revalidation, plus the policies deciding when to use it.
package cache

import (
	"time"

	"httpwire/header"
	"httpwire/wire"
)

// Key is a request fingerprint. Two requests with the same fingerprint are
// interchangeable for caching purposes.
type Key uint64

// Request is the view of a request the cache layer needs.
type Request interface {
	// Fingerprint digests version, method, headers and target.
	Fingerprint() Key
	// Cacheable reports whether responses to the request may be cached at all.
	Cacheable() bool
}

// Response is the view of a response the cache layer needs.
type Response interface {
	StatusCode() wire.Code
}

// BodyKind tells apart how a cached body is stored.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyString
	BodyFile
)

// Cache maps request fingerprints to previously received response parts.
// Status, headers and body have separate setters, so partial entries are
// legal; implementations must tolerate entries with some parts missing.
//
// Implementations are not required to be safe for concurrent use; callers
// sharing a cache across goroutines must wrap it or pick a concurrent
// implementation.
type Cache interface {
	// Exists cleans up and checks whether the request is cached. A true
	// result is guaranteed not to turn stale for at least a short while.
	Exists(req Request) bool
	// Evict removes the request from the cache, if present.
	Evict(req Request)

	PutStatus(req Request, status wire.Status)
	PutHeaders(req Request, headers *header.ResponseHeaders)
	PutString(req Request, body string)
	// PutFile records the path of a file holding the body. Storage is the
	// caller's; the cache only keeps the reference.
	PutFile(req Request, path string)

	Status(req Request) (wire.Status, bool)
	Headers(req Request) (*header.ResponseHeaders, bool)
	BodyString(req Request) (string, bool)
	BodyFile(req Request) (string, bool)

	// Kind reports how the cached body is stored, or BodyNone.
	Kind(req Request) BodyKind
	// Age is how long the entry has been cached so far.
	Age(req Request) (time.Duration, bool)
}

// Empty is a cache that stores nothing.
type Empty struct{}

var _ Cache = Empty{}

func (Empty) Exists(Request) bool                           { return false }
func (Empty) Evict(Request)                                 {}
func (Empty) PutStatus(Request, wire.Status)                {}
func (Empty) PutHeaders(Request, *header.ResponseHeaders)   {}
func (Empty) PutString(Request, string)                     {}
func (Empty) PutFile(Request, string)                       {}
func (Empty) Status(Request) (wire.Status, bool)            { return wire.Status{}, false }
func (Empty) Headers(Request) (*header.ResponseHeaders, bool) { return nil, false }
func (Empty) BodyString(Request) (string, bool)             { return "", false }
func (Empty) BodyFile(Request) (string, bool)               { return "", false }
func (Empty) Kind(Request) BodyKind                         { return BodyNone }
func (Empty) Age(Request) (time.Duration, bool)             { return 0, false }
