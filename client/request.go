// Package client drives logical HTTP exchanges: requests, responses,
// transactions and chunked uploads, on top of the pool and the wire codec.
package client

import (
	"context"
	"log/slog"
	"net/url"

	"httpwire"
	"httpwire/cache"
	"httpwire/conn"
	"httpwire/header"
	"httpwire/wire"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Request knows what to do with addresses, request methods and headers.
// It is up to the user to write the request body, if desirable. Once
// submitted a request is not mutated again.
type Request struct {
	method  wire.Method
	version wire.Version
	target  *url.URL
	headers *header.RequestHeaders

	// targetAny sends '*' instead of the path, for requests where the path
	// isn't important (e.g. OPTIONS).
	targetAny     bool
	setHostHeader bool

	logger *slog.Logger
}

// NewRequest creates a request for the given method and target URL.
func NewRequest(method wire.Method, target string, logger *slog.Logger) (*Request, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.Wrapf(httpwire.ErrInvalidRequest, "malformed target: %q", target)
	}

	r := &Request{
		method:        method,
		version:       wire.HTTP11,
		target:        u,
		headers:       header.DefaultRequestHeaders(logger),
		setHostHeader: true,
		logger:        logger,
	}
	r.headers.SetHost(u.Host)

	return r, nil
}

// SetHeaders replaces the request headers. Passing nil installs an empty set.
// The Host header is filled in unless suppressed via [Request.SetHostHeader].
func (r *Request) SetHeaders(headers *header.RequestHeaders) *Request {
	if headers == nil {
		headers = header.NewRequestHeaders(r.logger)
	}
	r.headers = headers
	if r.setHostHeader && !r.targetAny {
		headers.SetHost(r.target.Host)
	}
	return r
}

func (r *Request) SetVersion(version wire.Version) *Request {
	r.version = version
	return r
}

// SetTargetAny makes the request line carry '*' instead of the URL path.
func (r *Request) SetTargetAny(targetAny bool) *Request {
	r.targetAny = targetAny
	return r
}

// SetHostHeader controls whether a Host header is inserted automatically.
func (r *Request) SetHostHeader(set bool) *Request {
	r.setHostHeader = set
	return r
}

func (r *Request) Method() wire.Method              { return r.method }
func (r *Request) Version() wire.Version            { return r.version }
func (r *Request) Target() *url.URL                 { return r.target }
func (r *Request) Headers() *header.RequestHeaders  { return r.headers }

// Verify checks the request is in a sendable state: the Host header is in
// place, and the body headers agree with what the method demands.
func (r *Request) Verify() error {
	if r.setHostHeader && !r.targetAny && !r.headers.Has("Host") {
		r.headers.SetHost(r.target.Host)
	}

	// A chunked transfer coding supplies the body framing, so Content-Length
	// is not expected alongside it.
	hasLength := r.headers.Has("Content-Length") || r.headers.Has("Transfer-Encoding")
	hasType := r.headers.Has("Content-Type")

	if r.method.RequiresBody() && (!hasLength || !hasType) {
		return errors.Wrap(httpwire.ErrInvalidRequest,
			"must provide body, but content length or type not set")
	}
	if !r.method.AllowsBody() && (hasLength || hasType) {
		return errors.Wrap(httpwire.ErrInvalidRequest,
			"can't provide body, but has set content length or content type")
	}

	if !r.method.Supported() {
		r.logger.Warn("using non-supported http method (might fail unpredictably)", "method", r.method)
	}
	if !r.version.Supported() {
		r.logger.Warn("using non-supported http version (might fail unpredictably)", "version", r.version)
	}

	return nil
}

func (r *Request) targetText() string {
	if r.targetAny {
		return "*"
	}
	return r.target.RequestURI()
}

// WriteTo serialises the request line and headers onto the socket and
// flushes. The body, if any, is the caller's to write afterwards.
func (r *Request) WriteTo(s *conn.Socket) error {
	if err := s.Print(wire.RequestLine(r.method, r.targetText(), r.version) + "\r\n"); err != nil {
		return errors.Wrap(err, "writing request line")
	}
	if err := s.Print(r.headers.Text()); err != nil {
		return errors.Wrap(err, "writing headers")
	}
	if err := s.Print("\r\n"); err != nil {
		return errors.Wrap(err, "terminating headers")
	}
	if err := s.Flush(); err != nil {
		return errors.Wrap(err, "flushing request head")
	}
	return nil
}

// ConnectNow obtains a socket from the pool, blocking up to the pool's wait
// budget, and sends the request head over it. The returned socket is held by
// the caller for the body and the response.
func (r *Request) ConnectNow(ctx context.Context, pool *conn.Pool) (*conn.Socket, error) {
	if err := r.Verify(); err != nil {
		return nil, err
	}

	ep, err := conn.EndpointFromURL(r.target)
	if err != nil {
		return nil, err
	}

	s, err := pool.AcquireBlocking(ctx, ep)
	if err != nil {
		return nil, err
	}

	if err := r.WriteTo(s); err != nil {
		return nil, err
	}

	return s, nil
}

// ConnectOn sends the request head over an already acquired socket.
func (r *Request) ConnectOn(s *conn.Socket) error {
	if err := r.Verify(); err != nil {
		return err
	}
	return r.WriteTo(s)
}

// ConnectLater obtains a socket asynchronously; once obtained, the request
// head is written on the executor before the callbacks see the socket.
func (r *Request) ConnectLater(pool *conn.Pool, callbacks conn.Callbacks, executor conn.Executor) error {
	if err := r.Verify(); err != nil {
		return err
	}

	ep, err := conn.EndpointFromURL(r.target)
	if err != nil {
		return err
	}

	pool.AcquireAsync(ep, &connectLater{r: r, callbacks: callbacks, executor: executor})
	return nil
}

type connectLater struct {
	r         *Request
	callbacks conn.Callbacks
	executor  conn.Executor
}

func (c *connectLater) OnObtained(s *conn.Socket) {
	run(c.executor, func() {
		if err := c.r.WriteTo(s); err != nil {
			c.callbacks.OnError(err)
			return
		}
		c.callbacks.OnObtained(s)
	})
}

func (c *connectLater) OnTimeout() {
	run(c.executor, c.callbacks.OnTimeout)
}

func (c *connectLater) OnError(err error) {
	run(c.executor, func() { c.callbacks.OnError(err) })
}

func run(e conn.Executor, task func()) {
	if e == nil {
		task()
		return
	}
	e(task)
}

// Equal reports whether both requests use the same version, method, headers
// and target. With targetAny set, the path portion of the target is ignored
// but scheme, host and port still count.
func (r *Request) Equal(o *Request) bool {
	if r.version != o.version || r.method != o.method {
		return false
	}
	if !r.headers.Equal(&o.headers.Headers) {
		return false
	}

	if !r.targetAny {
		return r.target.String() == o.target.String()
	}
	return r.target.Scheme == o.target.Scheme && r.target.Host == o.target.Host
}

// Fingerprint digests the fields [Request.Equal] compares, for use as a cache
// key.
func (r *Request) Fingerprint() cache.Key {
	d := xxhash.New()

	d.WriteString(r.version.String())
	d.WriteString("\x00")
	d.WriteString(string(r.method))
	d.WriteString("\x00")

	for _, name := range r.headers.Names() {
		d.WriteString(name)
		d.WriteString(":")
		d.WriteString(r.headers.Get(name))
		d.WriteString("\x00")
	}

	if r.targetAny {
		d.WriteString(r.target.Scheme + "://" + r.target.Host)
	} else {
		d.WriteString(r.target.String())
	}

	return cache.Key(d.Sum64())
}

// Cacheable reports whether responses to this request may be cached. Quite
// primitive; the cache is only consulted on 304 anyway.
func (r *Request) Cacheable() bool { return r.method.ResponseCacheable() }

var _ cache.Request = (*Request)(nil)
