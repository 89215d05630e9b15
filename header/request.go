package header

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// RequestHeaders are headers sent with a request, with typed helpers for the
// common fields. Passing an empty value to a helper removes the header.
type RequestHeaders struct {
	Headers

	policy Policy
	logger *slog.Logger
}

// NewRequestHeaders returns an empty header set governed by [DefaultPolicy].
func NewRequestHeaders(logger *slog.Logger) *RequestHeaders {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestHeaders{
		Headers: NewHeaders(),
		policy:  DefaultPolicy(),
		logger:  logger,
	}
}

// DefaultRequestHeaders returns the header set a request starts with:
// charset, accepted encodings, date and user agent.
func DefaultRequestHeaders(logger *slog.Logger) *RequestHeaders {
	h := NewRequestHeaders(logger)
	h.SetCharset("utf-8")
	h.SetAcceptEncoding("gzip,deflate")
	h.SetDate(time.Now())
	h.SetUserAgent("httpwire (HTTP/1.1)")
	return h
}

// SetPolicy replaces the validation policy for subsequent SetHeader calls.
func (h *RequestHeaders) SetPolicy(policy Policy) *RequestHeaders {
	h.policy = policy
	return h
}

// SetHeader validates the name against the active policy before setting it.
// The typed helpers below bypass validation; they only set known fields.
func (h *RequestHeaders) SetHeader(name, value string) error {
	if err := h.policy.Check(h.logger, name); err != nil {
		return errors.Wrap(err, "rejected by header policy")
	}
	h.Set(name, value)
	return nil
}

// CheckAll re-validates every header currently set.
func (h *RequestHeaders) CheckAll() error {
	for _, name := range h.Names() {
		if err := h.policy.Check(h.logger, name); err != nil {
			return err
		}
	}
	return nil
}

func (h *RequestHeaders) setOrRemove(name, value string) {
	if value == "" {
		h.Del(name)
		return
	}
	h.Set(name, value)
}

func (h *RequestHeaders) SetAuthorization(auth string) { h.setOrRemove("Authorization", auth) }
func (h *RequestHeaders) SetCharset(charset string)    { h.setOrRemove("Accept-Charset", charset) }
func (h *RequestHeaders) SetConnection(connection string) {
	h.setOrRemove("Connection", connection)
}

func (h *RequestHeaders) SetContentLength(length int) {
	if length < 0 {
		h.logger.Warn("setting negative Content-Length", "length", length)
		return
	}
	h.Set("Content-Length", strconv.Itoa(length))
}

func (h *RequestHeaders) SetContentType(contentType string) {
	h.setOrRemove("Content-Type", contentType)
}

func (h *RequestHeaders) SetAcceptEncoding(encoding string) {
	h.setOrRemove("Accept-Encoding", encoding)
}

// SetTransferEncoding sets the transfer coding; "chunked" is the only value
// the codec acts upon.
func (h *RequestHeaders) SetTransferEncoding(encoding string) {
	h.setOrRemove("Transfer-Encoding", encoding)
}

// SetContentEncoding sets the coding used for the request body when sending a
// string. Compression itself is taken care of by the transaction.
func (h *RequestHeaders) SetContentEncoding(encoding string) {
	h.setOrRemove("Content-Encoding", encoding)
}

func (h *RequestHeaders) SetTE(encoding string) { h.setOrRemove("TE", encoding) }

func (h *RequestHeaders) SetDate(date time.Time) {
	if date.IsZero() {
		h.Del("Date")
		return
	}
	// http-date pins the zone to GMT; Format(time.RFC1123) would stamp "UTC".
	h.Set("Date", date.UTC().Format("Mon, 02 Jan 2006 15:04:05")+" GMT")
}

func (h *RequestHeaders) SetFrom(from string)         { h.setOrRemove("From", from) }
func (h *RequestHeaders) SetHost(host string)         { h.setOrRemove("Host", host) }
func (h *RequestHeaders) SetReferer(referer string)   { h.setOrRemove("Referer", referer) }
func (h *RequestHeaders) SetUserAgent(agent string)   { h.setOrRemove("User-Agent", agent) }
func (h *RequestHeaders) SetAccept(types string)      { h.setOrRemove("Accept", types) }

// Clone returns an independent copy sharing the policy and logger.
func (h *RequestHeaders) Clone() *RequestHeaders {
	return &RequestHeaders{
		Headers: h.Headers.Clone(),
		policy:  h.policy,
		logger:  h.logger,
	}
}
