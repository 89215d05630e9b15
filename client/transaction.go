package client

import (
	"context"
	"log/slog"
	"net/url"
	"os"

	"httpwire"
	"httpwire/cache"
	"httpwire/conn"
	"httpwire/header"
	"httpwire/wire"

	"github.com/pkg/errors"
)

// Transaction represents a single logical exchange over a socket obtained
// from a pool. It may make multiple requests if needed (redirects, 304
// revalidation repeats), but is bound to at most one socket at a time.
// Using one Transaction for more than one exchange is illegal.
type Transaction struct {
	pool   *conn.Pool
	cache  cache.Cache
	policy cache.Policy

	headers  *header.RequestHeaders
	version  wire.Version
	respOpts ResponseOptions
	logger   *slog.Logger

	bodyStr  *string
	bodyFile string

	maxRedirects        int
	maxRepeats          int
	throwIfMaxRepeats   bool
	repeatOnNotModified bool
	currRedirects       int
	currRepeats         int

	request  *Request
	response *Response
	socket   *conn.Socket

	// This really shouldn't be used from multiple goroutines.
	used              bool
	closed            bool
	disconnectOnClose bool
}

// NewTransaction creates a transaction that obtains its socket from the
// given pool.
func NewTransaction(pool *conn.Pool, logger *slog.Logger) *Transaction {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transaction{
		pool:                pool,
		cache:               cache.NewFIFO(0, 0, nil),
		policy:              cache.SimplePolicy{},
		headers:             header.DefaultRequestHeaders(logger),
		version:             wire.HTTP11,
		respOpts:            DefaultResponseOptions(),
		logger:              logger,
		maxRedirects:        8,
		maxRepeats:          3,
		repeatOnNotModified: true,
	}
}

// SetHeaders replaces the headers used with this request. The default is
// [header.DefaultRequestHeaders].
func (t *Transaction) SetHeaders(headers *header.RequestHeaders) *Transaction {
	t.headers = headers
	return t
}

// Headers returns the headers sent with this request; modifying them affects
// the request.
func (t *Transaction) Headers() *header.RequestHeaders { return t.headers }

// UseCache installs the cache consulted by this transaction. nil installs
// [cache.Empty].
func (t *Transaction) UseCache(c cache.Cache) *Transaction {
	if c == nil {
		c = cache.Empty{}
	}
	t.cache = c
	return t
}

func (t *Transaction) UseCachingPolicy(policy cache.Policy) *Transaction {
	t.policy = policy
	return t
}

func (t *Transaction) SetHTTPVersion(version wire.Version) *Transaction {
	t.version = version
	return t
}

func (t *Transaction) SetResponseOptions(opts ResponseOptions) *Transaction {
	t.respOpts = opts
	return t
}

// SendString stages a string as the request body. Nothing is sent yet; the
// transaction compresses it per the Content-Encoding header at request time.
func (t *Transaction) SendString(body string) *Transaction {
	t.bodyStr = &body
	return t
}

// SendFile stages a file's contents as the request body. Nothing is sent yet.
func (t *Transaction) SendFile(path string) *Transaction {
	t.bodyFile = path
	return t
}

// SetMaxRedirects sets the redirect budget: the n-th redirect response fails
// the exchange with [httpwire.ErrInvalidResponse] instead of being followed,
// so at most n-1 redirects are followed.
func (t *Transaction) SetMaxRedirects(n int) *Transaction {
	t.maxRedirects = n
	return t
}

// SetMaxRepeats caps how many times the request is sent while the server
// keeps answering 304 with no usable cache entry: the n-th such 304 ends the
// loop, so the request is repeated at most n-1 times.
func (t *Transaction) SetMaxRepeats(n int) *Transaction {
	t.maxRepeats = n
	return t
}

// SetThrowIfMaxRepeats picks between failing and returning the last response
// once the repeat budget runs out.
func (t *Transaction) SetThrowIfMaxRepeats(fail bool) *Transaction {
	t.throwIfMaxRepeats = fail
	return t
}

// SetRepeatOnNotModified controls whether a 304 with no cache entry causes
// the request to be repeated without its conditional headers. If false, the
// 304 is returned to the caller as-is.
func (t *Transaction) SetRepeatOnNotModified(repeat bool) *Transaction {
	t.repeatOnNotModified = repeat
	return t
}

func (t *Transaction) ensureOpen() error {
	if t.closed {
		return errors.Wrap(httpwire.ErrInvalidRequest, "cannot use closed transaction")
	}
	if t.used {
		return errors.Wrap(httpwire.ErrInvalidRequest, "transaction has already been finished")
	}
	return nil
}

// MakeRequest runs the exchange on this goroutine. Waiting for a socket from
// the pool blocks the caller up to the pool's wait budget. Use the returned
// response to obtain the body, then close the transaction.
func (t *Transaction) MakeRequest(ctx context.Context, method wire.Method, target string) (*Response, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	t.used = true
	t.currRedirects = 0
	t.currRepeats = 0

	return t.run(ctx, method, target, nil, nil, nil)
}

// run drives the request loop. When seeded with a socket (and the request
// already built for it, async path), the first iteration skips acquisition.
func (t *Transaction) run(ctx context.Context, method wire.Method, target string,
	seedSocket *conn.Socket, seedReq *Request, seedBody []byte) (*Response, error) {

	seeded := seedSocket != nil

	for {
		var (
			req  *Request
			body []byte
			err  error
		)

		if seeded {
			seeded = false
			req, body = seedReq, seedBody
			t.request = req
			t.socket = seedSocket
			if err := req.ConnectOn(seedSocket); err != nil {
				return nil, err
			}
		} else {
			if err := t.verifyBodySources(); err != nil {
				return nil, err
			}
			req, body, err = t.buildRequest(method, target)
			if err != nil {
				return nil, err
			}
			t.request = req

			if t.socket != nil {
				// Redirect to the same authority: reuse the held socket.
				if err := req.ConnectOn(t.socket); err != nil {
					return nil, err
				}
			} else {
				s, err := req.ConnectNow(ctx, t.pool)
				if err != nil {
					return nil, err
				}
				t.socket = s
			}
		}

		if len(body) > 0 {
			if _, err := t.socket.Write(body); err != nil {
				return nil, err
			}
		}

		var resp *Response
		if t.policy.ShouldLookup(req) {
			resp = t.cachedResponse(req)
		}
		if resp == nil {
			resp = ResponseFrom(t.socket, req, t.cache, t.policy, t.respOpts, t.logger)
			if err := resp.Parse(); err != nil {
				return nil, err
			}
		}
		t.response = resp

		switch code := resp.StatusCode(); {
		case isRedirect(code):
			next, sameAuthority, err := t.redirectTarget(resp, req)
			if err != nil {
				return nil, err
			}

			// Drain the redirect body so the socket is clean for the next hop.
			if _, err := resp.BodyString(); err != nil {
				t.logger.Warn("discarding redirect body failed", "err", err)
			}

			if !sameAuthority {
				// We need a new socket; this may fail if waiting takes too
				// long, or if the server refuses multiple connections from
				// the same client and redirects to itself by absolute URL.
				t.socket.Release()
				t.socket = nil
			}

			target = next
			continue

		case code == wire.CodeNotModified && t.policy.ShouldReplace(req, resp):
			// 304 gets treated super-specially: prefer the cached copy, and
			// failing that repeat the request without the conditional headers
			// to get a fresh one.
			if cached := t.cachedResponse(req); cached != nil {
				t.response = cached
				return cached, nil
			}

			if t.repeatOnNotModified {
				final, err := t.prepareRepeat()
				if err != nil {
					return nil, err
				}
				if final {
					break
				}

				// The server may well have closed this connection; repeat on
				// a fresh socket instead of gambling on the old one.
				t.socket.Release()
				t.socket = nil
				continue
			}
		}

		t.latchDisconnect(resp)
		t.storeInCache(req, resp)
		// some other cases which require special handling... ?
		return resp, nil
	}
}

func isRedirect(code wire.Code) bool {
	switch code {
	case wire.CodeMovedPermanently, wire.CodeFound, wire.CodeSeeOther, wire.CodeTempRedirect:
		return true
	}
	return false
}

// redirectTarget spends redirect budget and resolves the Location header
// against the current target per RFC 3986.
func (t *Transaction) redirectTarget(resp *Response, req *Request) (next string, sameAuthority bool, _ error) {
	t.currRedirects++
	if t.currRedirects >= t.maxRedirects {
		return "", false, errors.Wrap(httpwire.ErrInvalidResponse, "too many redirects")
	}

	location := resp.Headers().Location()
	if location == "" {
		return "", false, errors.Wrap(httpwire.ErrInvalidResponse, "redirect without Location")
	}

	ref, err := url.Parse(location)
	if err != nil {
		return "", false, errors.Wrapf(httpwire.ErrInvalidResponse, "malformed Location: %q", location)
	}

	resolved := req.Target().ResolveReference(ref)

	// A reference without an authority (absolute path or relative) stays on
	// the current connection; anything else needs a socket to the new host.
	return resolved.String(), ref.Host == "", nil
}

// prepareRepeat spends repeat budget and strips the conditional headers so
// the repeated request fetches a full copy. final means the caller should
// hand the current response out instead of repeating.
func (t *Transaction) prepareRepeat() (final bool, _ error) {
	t.currRepeats++
	if t.currRepeats >= t.maxRepeats {
		if t.throwIfMaxRepeats {
			return false, errors.Wrap(httpwire.ErrInvalidResponse, "too many repeated requests")
		}
		return true, nil
	}

	t.headers.Del("If-Modified-Since")
	t.headers.Del("If-None-Match")
	t.headers.Del("If-Unmodified-Since")

	return false, nil
}

func (t *Transaction) verifyBodySources() error {
	if t.bodyStr != nil && t.bodyFile != "" {
		return errors.Wrap(httpwire.ErrInvalidRequest, "cannot send both string and file")
	}
	if t.bodyFile != "" {
		if _, err := os.Stat(t.bodyFile); err != nil {
			return errors.Wrapf(httpwire.ErrInvalidRequest, "body file doesn't exist: %q", t.bodyFile)
		}
	}
	return nil
}

// buildRequest prepares the body bytes (compressing a staged string per the
// Content-Encoding header, reading a staged file whole), sets Content-Length
// and builds the request value.
func (t *Transaction) buildRequest(method wire.Method, target string) (*Request, []byte, error) {
	var body []byte

	switch {
	case t.bodyStr != nil:
		encoding := t.headers.Get("Content-Encoding")
		compressed, err := wire.Compress([]byte(*t.bodyStr), encoding)
		if err != nil {
			if !errors.Is(err, wire.ErrUnsupportedCoding) {
				return nil, nil, errors.Wrap(err, "compressing body")
			}
			t.logger.Warn("ignoring unknown encoding", "encoding", encoding)
		}
		body = compressed
	case t.bodyFile != "":
		data, err := os.ReadFile(t.bodyFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, "reading body file")
		}
		body = data
	}

	if body != nil {
		t.headers.SetContentLength(len(body))
	} else if method.AllowsBody() {
		t.headers.SetContentLength(0)
	}

	req, err := NewRequest(method, target, t.logger)
	if err != nil {
		return nil, nil, err
	}
	req.SetHeaders(t.headers).SetVersion(t.version)

	return req, body, nil
}

func (t *Transaction) cachedResponse(req *Request) *Response {
	if !t.cache.Exists(req) {
		return nil
	}

	status, _ := t.cache.Status(req)
	headers, ok := t.cache.Headers(req)
	if !ok {
		headers = header.NewResponseHeaders()
	}

	kind := t.cache.Kind(req)
	body := ""
	switch kind {
	case cache.BodyString:
		body, _ = t.cache.BodyString(req)
	case cache.BodyFile:
		body, _ = t.cache.BodyFile(req)
	}

	resp := WrapResponse(status, headers, kind, body, t.logger)
	t.response = resp
	return resp
}

// latchDisconnect records whether the server asked for the connection to go
// down with the transaction. Keep-alive is the HTTP/1.1 default, so only an
// explicit Connection header changes the latch.
func (t *Transaction) latchDisconnect(resp *Response) {
	if resp.Headers() != nil && resp.Headers().Has("Connection") {
		t.disconnectOnClose = resp.Headers().HasConnectionClose()
	}
}

func (t *Transaction) storeInCache(req *Request, resp *Response) {
	if t.policy.ShouldStore(req, resp) {
		t.cache.PutStatus(req, resp.Status())
		t.cache.PutHeaders(req, resp.Headers())
	}
}

// Close signals the transaction is over, releasing the underlying socket
// back to the pool — or closing it, if the server signalled to do so. After
// closing, a released socket can serve other transactions. Close must be
// called even when the exchange failed mid-flight; it does its best with
// whatever state the socket is in.
func (t *Transaction) Close() error {
	t.closed = true
	if t.socket == nil {
		t.logger.Warn("closing transaction over nonexistent socket")
		return nil
	}

	if t.disconnectOnClose {
		return t.socket.Close()
	}
	t.socket.Release()
	return nil
}
