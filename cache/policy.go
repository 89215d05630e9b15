package cache

import "httpwire/wire"

// Policy decides, for a given request and response, whether anything is
// 1) worth storing in the cache and 2) worth looking up from it.
type Policy interface {
	// ShouldStore reports whether the response to the request should reach
	// the cache. The caller is responsible for actually committing it.
	ShouldStore(req Request, resp Response) bool

	// ShouldLookup reports whether the cache should be consulted before the
	// request goes on the wire at all.
	ShouldLookup(req Request) bool

	// ShouldReplace reports whether an already obtained response should be
	// swapped for the cached one. Useful for 304 Not Modified, where the
	// client is expected to pull the resource from its own cache.
	ShouldReplace(req Request, resp Response) bool
}

// SimplePolicy is the simplest non-trivial policy: store everything that is
// potentially cacheable, look in the cache only when the server answers 304.
// The cache serves as a revalidation fallback, not a primary lookup path.
type SimplePolicy struct{}

var _ Policy = SimplePolicy{}

func (SimplePolicy) ShouldStore(req Request, _ Response) bool { return req.Cacheable() }

func (SimplePolicy) ShouldLookup(Request) bool { return false }

func (SimplePolicy) ShouldReplace(req Request, resp Response) bool {
	if resp == nil {
		return SimplePolicy{}.ShouldLookup(req)
	}
	return resp.StatusCode() == wire.CodeNotModified
}
