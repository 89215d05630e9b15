package client

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"

	"httpwire"
	"httpwire/cache"
	"httpwire/conn"
	"httpwire/header"
	"httpwire/wire"

	"github.com/pkg/errors"
)

// ResponseOptions tune response parsing and body handling.
type ResponseOptions struct {
	// MaxInformative is how many informative (1xx) responses are discarded
	// before the parser gives up. Zero keeps the first response whatever its
	// class.
	MaxInformative int
	// StrictInformative makes exceeding MaxInformative a fatal
	// [httpwire.ErrInvalidResponse] instead of keeping the last response.
	StrictInformative bool
	// StrictVersion makes an HTTP version mismatch between request and
	// response fatal instead of a warning.
	StrictVersion bool
	// FileBufferSize sizes the buffer used when writing a body to a file.
	FileBufferSize int
}

func DefaultResponseOptions() ResponseOptions {
	return ResponseOptions{
		MaxInformative: 5,
		FileBufferSize: 51_200,
	}
}

// Response represents an HTTP response. A live response is bound to the
// socket its request went out on and reads lazily; a wrapped response carries
// parts that were already materialised (e.g. from the cache) and never
// touches the network.
type Response struct {
	socket  *conn.Socket
	request *Request

	cache  cache.Cache
	policy cache.Policy
	opts   ResponseOptions
	logger *slog.Logger

	status  wire.Status
	headers *header.ResponseHeaders
	parsed  bool

	bodyKind cache.BodyKind
	bodyStr  string
	bodyFile string
	bodyRead bool
}

// ResponseFrom creates a live response reading from the given socket. The
// request must have been previously sent over the same socket.
func ResponseFrom(s *conn.Socket, request *Request, c cache.Cache, policy cache.Policy,
	opts ResponseOptions, logger *slog.Logger) *Response {
	if c == nil {
		c = cache.Empty{}
	}
	if policy == nil {
		policy = cache.SimplePolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Response{
		socket:  s,
		request: request,
		cache:   c,
		policy:  policy,
		opts:    opts,
		logger:  logger,
	}
}

// WrapResponse builds an already-parsed response from materialised parts and
// disables reading from the network.
func WrapResponse(status wire.Status, headers *header.ResponseHeaders,
	kind cache.BodyKind, body string, logger *slog.Logger) *Response {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Response{
		status:   status,
		headers:  headers,
		parsed:   true,
		bodyRead: true,
		bodyKind: kind,
		logger:   logger,
	}
	switch kind {
	case cache.BodyString:
		r.bodyStr = body
	case cache.BodyFile:
		r.bodyFile = body
	}
	return r
}

// Wrapped reports whether this response was materialised rather than read
// from a socket.
func (r *Response) Wrapped() bool { return r.socket == nil }

// Parse reads the status line and headers, discarding interim informative
// (1xx) responses up to the configured cap. Idempotent: only the first call
// reads.
func (r *Response) Parse() error {
	if r.parsed {
		return nil
	}

	infoResponses := 0
	for {
		if infoResponses > r.opts.MaxInformative {
			if r.opts.StrictInformative {
				return errors.Wrap(httpwire.ErrInvalidResponse, "too many informative responses")
			}
			break
		}

		status, err := r.readStatusLine()
		if err != nil {
			return err
		}

		if status.Version != r.request.Version() {
			if r.opts.StrictVersion {
				return errors.Wrapf(httpwire.ErrInvalidResponse,
					"invalid HTTP version: %s", status.Version)
			}
			r.logger.Warn("invalid HTTP version returned by server", "version", status.Version.String())
		}

		headers := header.NewResponseHeaders()
		if err := r.readHeaderLines(headers); err != nil {
			return err
		}

		r.status = status
		r.headers = headers
		infoResponses++

		if status.Code.Class() != 100 {
			break
		}
		// informative status lines - ignored
	}

	r.parsed = true
	return nil
}

func (r *Response) readStatusLine() (wire.Status, error) {
	var line string
	for {
		l, err := r.socket.ReadLine()
		if err != nil {
			return wire.Status{}, errors.Wrap(err, "reading status line")
		}
		// An empty line can be received before the message.
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-6
		if len(l) > 0 {
			line = l
			break
		}
	}

	status, err := wire.ParseStatus(line)
	if err != nil {
		return wire.Status{}, errors.Wrapf(httpwire.ErrInvalidResponse, "malformed status line: %v", err)
	}

	if status.Phrase == "" {
		r.logger.Warn("status line missing reason phrase")
	}

	return status, nil
}

func (r *Response) readHeaderLines(headers *header.ResponseHeaders) error {
	for {
		line, err := r.socket.ReadLine()
		if err != nil {
			return errors.Wrap(err, "reading header line")
		}
		if len(line) == 0 {
			return nil
		}
		if err := headers.AppendLine(line); err != nil {
			return errors.Wrapf(httpwire.ErrInvalidResponse, "malformed field line: %v", err)
		}
	}
}

// Status returns the parsed Status-Line data.
func (r *Response) Status() wire.Status { return r.status }

// StatusCode returns the status code; this is the surface the caching policy
// looks at.
func (r *Response) StatusCode() wire.Code { return r.status.Code }

// Headers returns the received headers.
func (r *Response) Headers() *header.ResponseHeaders { return r.headers }

var _ cache.Response = (*Response)(nil)

// ContentLength resolves the body length from the status code and the
// Content-Length header. Codes without a body and absent/empty/garbled
// headers all yield 0.
func (r *Response) ContentLength() int {
	if !r.status.Code.HasBody() {
		return 0
	}

	raw := r.headers.ContentLength()
	if raw == "" {
		// No Content-Length means no body for us; length-by-connection-close
		// is not something this client relies on.
		return 0
	}

	length, err := strconv.Atoi(raw)
	if err != nil || length < 0 {
		r.logger.Warn("unparseable Content-Length", "value", raw)
		return 0
	}
	return length
}

// IsChunked reports whether the body uses the chunked transfer coding.
func (r *Response) IsChunked() bool {
	return r.headers != nil && r.headers.TransferEncoding() == wire.CodingChunked
}

// BodyString reads the body and returns it as a string, undoing the declared
// Content-Encoding. Chunked bodies are de-chunked first, with trailers
// appended to the header set. The body is stored in the cache when the
// policy says so. One-shot: the second call returns the same value.
func (r *Response) BodyString() (string, error) {
	if r.bodyRead {
		if r.bodyKind == cache.BodyFile {
			return "", errors.Wrap(httpwire.ErrInvalidResponse, "expected string body, but got file")
		}
		return r.bodyStr, nil
	}

	raw, err := r.readRawBody()
	if err != nil {
		return "", err
	}

	decoded, err := wire.Decompress(raw, r.headers.ContentEncoding())
	if err != nil {
		if !errors.Is(err, wire.ErrUnsupportedCoding) {
			return "", errors.Wrap(err, "decoding body")
		}
		r.logger.Warn("ignoring unknown encoding", "encoding", r.headers.ContentEncoding())
	}

	r.bodyStr = string(decoded)
	r.bodyKind = cache.BodyString
	r.bodyRead = true

	if r.request != nil && r.policy.ShouldStore(r.request, r) {
		r.cache.PutString(r.request, r.bodyStr)
	}

	return r.bodyStr, nil
}

// readRawBody pulls the body bytes off the socket, de-chunking when the
// transfer coding asks for it but leaving the content coding alone.
func (r *Response) readRawBody() ([]byte, error) {
	if r.IsChunked() {
		body, trailers, err := r.socket.ReadAllChunks()
		if err != nil {
			return nil, errors.Wrap(err, "reading chunked body")
		}
		r.appendTrailers(trailers)
		return body, nil
	}

	length := r.ContentLength()
	if length == 0 {
		return nil, nil
	}

	data := make([]byte, length)
	off := 0
	for off < length {
		n, err := r.socket.Read(data[off:])
		if err != nil {
			return nil, errors.Wrap(err, "reading body")
		}
		if n == 0 {
			return nil, errors.Wrap(httpwire.ErrInvalidResponse, "body ended before Content-Length")
		}
		off += n
	}

	return data, nil
}

func (r *Response) appendTrailers(trailers []string) {
	for _, line := range trailers {
		if err := r.headers.AppendLine(line); err != nil {
			r.logger.Warn("dropping malformed trailer line", "line", line)
		}
	}
}

// WriteBodyToFile streams the body into the named file, writing the bytes
// as received: the Content-Encoding is not undone, only noted with a warning.
// Returns the path actually holding the body — for a response wrapped from
// the cache that is the cached file, not the argument.
func (r *Response) WriteBodyToFile(to string) (string, error) {
	if r.bodyRead {
		if r.bodyKind != cache.BodyFile {
			return "", errors.Wrap(httpwire.ErrInvalidResponse, "expected file body, but got string")
		}
		return r.bodyFile, nil
	}

	if encoding := r.headers.ContentEncoding(); encoding != "" && encoding != wire.CodingIdentity {
		// If the server sends an encoded file, the caller presumably knows
		// better what to do with it.
		r.logger.Warn("writing encoded body to file as-is", "encoding", encoding)
	}

	f, err := os.Create(to)
	if err != nil {
		return "", errors.Wrap(err, "creating body file")
	}
	defer f.Close()

	bufSize := r.opts.FileBufferSize
	if bufSize <= 0 {
		bufSize = DefaultResponseOptions().FileBufferSize
	}
	w := bufio.NewWriterSize(f, bufSize)

	if r.IsChunked() {
		body, trailers, err := r.socket.ReadAllChunks()
		if err != nil {
			return "", errors.Wrap(err, "reading chunked body")
		}
		r.appendTrailers(trailers)
		if _, err := w.Write(body); err != nil {
			return "", errors.Wrap(err, "writing body file")
		}
	} else {
		remaining := r.ContentLength()
		buf := make([]byte, bufSize)
		for remaining > 0 {
			limit := min(remaining, len(buf))
			n, err := r.socket.Read(buf[:limit])
			if err != nil {
				return "", errors.Wrap(err, "reading body")
			}
			if n == 0 {
				return "", errors.Wrap(httpwire.ErrInvalidResponse, "body ended before Content-Length")
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return "", errors.Wrap(err, "writing body file")
			}
			remaining -= n
		}
	}

	if err := w.Flush(); err != nil {
		return "", errors.Wrap(err, "flushing body file")
	}

	r.bodyFile = to
	r.bodyKind = cache.BodyFile
	r.bodyRead = true

	if r.request != nil && r.policy.ShouldStore(r.request, r) {
		r.cache.PutFile(r.request, to)
	}

	return to, nil
}

// Chunks streams a chunked body to the caller. Each chunk is decoded per the
// Content-Encoding independently before being handed over; trailers are
// appended to the response headers before OnEnd fires, and OnEnd itself
// receives nil rather than the trailer lines. Streamed bodies
// bypass the cache — any stale entry for the request is evicted instead.
func (r *Response) Chunks(callbacks conn.ChunkCallbacks, executor conn.Executor) error {
	if r.Wrapped() {
		return errors.Wrap(httpwire.ErrInvalidResponse, "cannot stream chunks of a wrapped response")
	}

	if r.request != nil && r.cache.Exists(r.request) {
		r.cache.Evict(r.request)
	}

	return r.socket.ReadChunks(&decodingChunks{r: r, inner: callbacks}, executor)
}

// decodingChunks un-applies the content coding chunk by chunk. If chunks are
// gzipped we un-gzip them one by one; reading them all at once would leave no
// idea where one ends and the next begins.
type decodingChunks struct {
	r     *Response
	inner conn.ChunkCallbacks
}

func (d *decodingChunks) OnChunk(chunk []byte) {
	decoded, err := wire.Decompress(chunk, d.r.headers.ContentEncoding())
	if err != nil {
		if !errors.Is(err, wire.ErrUnsupportedCoding) {
			d.inner.OnError(err)
			return
		}
		d.r.logger.Warn("ignoring unknown encoding", "encoding", d.r.headers.ContentEncoding())
	}
	d.inner.OnChunk(decoded)
}

func (d *decodingChunks) OnEnd(trailers []string) {
	d.r.appendTrailers(trailers)
	d.inner.OnEnd(nil)
}

func (d *decodingChunks) OnError(err error) { d.inner.OnError(err) }
