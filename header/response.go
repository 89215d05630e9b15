package header

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ResponseHeaders are headers received from a server, with typed getters for
// the fields the transaction and its collaborators act upon.
type ResponseHeaders struct {
	Headers
}

func NewResponseHeaders() *ResponseHeaders {
	return &ResponseHeaders{Headers: NewHeaders()}
}

// ParseResponseHeaders builds a header set from raw field lines, joining
// repeated fields with a comma.
func ParseResponseHeaders(lines []string) (*ResponseHeaders, error) {
	h := NewResponseHeaders()
	for _, line := range lines {
		if err := h.AppendLine(line); err != nil {
			return nil, errors.Wrap(err, "parsing field line")
		}
	}
	return h, nil
}

// AllowedMethods splits the methods advertised alongside a 405 response.
func (h *ResponseHeaders) AllowedMethods() []string {
	raw := h.Get("Allow")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func (h *ResponseHeaders) CacheControl() string     { return h.Get("Cache-Control") }
func (h *ResponseHeaders) Connection() string       { return h.Get("Connection") }
func (h *ResponseHeaders) ContentEncoding() string  { return h.Get("Content-Encoding") }
func (h *ResponseHeaders) TransferEncoding() string { return h.Get("Transfer-Encoding") }
func (h *ResponseHeaders) ContentLanguage() string  { return h.Get("Content-Language") }
func (h *ResponseHeaders) ContentLength() string    { return h.Get("Content-Length") }
func (h *ResponseHeaders) ContentType() string      { return h.Get("Content-Type") }
func (h *ResponseHeaders) ETag() string             { return h.Get("ETag") }

// Location names the redirect target, among other things.
func (h *ResponseHeaders) Location() string { return h.Get("Location") }

func (h *ResponseHeaders) RetryAfter() string { return h.Get("Retry-After") }

// http-date formats, preferred first.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.7
var dateFormats = []string{time.RFC1123, time.RFC850, time.ANSIC}

// Date parses the Date header per RFC 1123, with the obsolete RFC 850 and
// asctime formats accepted for robustness.
func (h *ResponseHeaders) Date() (time.Time, error) {
	raw := h.Get("Date")
	if raw == "" {
		return time.Time{}, errors.New("no Date header")
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.Errorf("unparseable Date header: %q", raw)
}

// MIME returns the media type portion of Content-Type.
func (h *ResponseHeaders) MIME() string {
	mime, _, _ := strings.Cut(h.ContentType(), ";")
	return strings.TrimSpace(mime)
}

// Charset returns the charset parameter of Content-Type, defaulting to utf-8.
func (h *ResponseHeaders) Charset() string {
	_, params, found := strings.Cut(h.ContentType(), "charset=")
	if !found {
		return "utf-8"
	}
	charset, _, _ := strings.Cut(params, " ")
	return strings.TrimSuffix(charset, ";")
}

// HasConnectionClose reports whether the server asked for the connection to
// be torn down after this exchange.
func (h *ResponseHeaders) HasConnectionClose() bool {
	return strings.EqualFold(strings.TrimSpace(h.Connection()), "close")
}
