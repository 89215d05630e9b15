package header

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type HeadersTestSuite struct {
	suite.Suite

	headers Headers
}

func TestHeadersTestSuite(t *testing.T) {
	suite.Run(t, new(HeadersTestSuite))
}

func (s *HeadersTestSuite) SetupTest() {
	s.headers = NewHeaders()
}

func (s *HeadersTestSuite) TestSetGetCaseInsensitive() {
	s.headers.Set("Content-Type", "text/html")

	s.Equal("text/html", s.headers.Get("content-type"))
	s.Equal("text/html", s.headers.Get("CONTENT-TYPE"))
	s.True(s.headers.Has("cOnTeNt-TyPe"))
}

func (s *HeadersTestSuite) TestSetReplaces() {
	s.headers.Set("Accept", "text/html")
	s.headers.Set("accept", "application/json")

	s.Equal("application/json", s.headers.Get("Accept"))
	s.Equal(1, s.headers.Len())
}

func (s *HeadersTestSuite) TestAppendJoinsWithComma() {
	s.headers.Append("Accept-Charset", "utf-8")
	s.headers.Append("Accept-Charset", "latin-1")

	s.Equal("utf-8, latin-1", s.headers.Get("Accept-Charset"))
}

func (s *HeadersTestSuite) TestDel() {
	s.headers.Set("Authorization", "Bearer x")
	s.headers.Del("authorization")

	s.False(s.headers.Has("Authorization"))
}

func (s *HeadersTestSuite) TestSetLine() {
	s.Require().NoError(s.headers.SetLine("Content-Length:  42 "))
	s.Equal("42", s.headers.Get("Content-Length"))

	s.Error(s.headers.SetLine("no colon here"))
}

func (s *HeadersTestSuite) TestAppendLine() {
	s.Require().NoError(s.headers.AppendLine("Via: a"))
	s.Require().NoError(s.headers.AppendLine("Via: b"))
	s.Equal("a, b", s.headers.Get("Via"))
}

func (s *HeadersTestSuite) TestText() {
	s.headers.Set("Host", "example.com")
	s.headers.Set("Accept", "*/*")

	text := s.headers.Text()
	s.Contains(text, "host: example.com\r\n")
	s.Contains(text, "accept: */*\r\n")
	s.True(strings.HasSuffix(text, "\r\n"))
}

func (s *HeadersTestSuite) TestEqualAndClone() {
	s.headers.Set("Host", "example.com")

	clone := s.headers.Clone()
	s.True(s.headers.Equal(&clone))

	clone.Set("Host", "other.com")
	s.False(s.headers.Equal(&clone))
}

func TestResponseHeaderGetters(t *testing.T) {
	h, err := ParseResponseHeaders([]string{
		"Content-Type: text/html; charset=iso-8859-1",
		"Content-Encoding: gzip",
		"Transfer-Encoding: chunked",
		"Location: /foo",
		"Retry-After: 120",
		"Connection: close",
		"Allow: GET, POST , DELETE",
		"ETag: \"abc\"",
	})
	require.NoError(t, err)

	assert.Equal(t, "text/html", h.MIME())
	assert.Equal(t, "iso-8859-1", h.Charset())
	assert.Equal(t, "gzip", h.ContentEncoding())
	assert.Equal(t, "chunked", h.TransferEncoding())
	assert.Equal(t, "/foo", h.Location())
	assert.Equal(t, "120", h.RetryAfter())
	assert.True(t, h.HasConnectionClose())
	assert.Equal(t, []string{"GET", "POST", "DELETE"}, h.AllowedMethods())
	assert.Equal(t, `"abc"`, h.ETag())
}

func TestResponseHeaderCharsetDefault(t *testing.T) {
	h, err := ParseResponseHeaders([]string{"Content-Type: text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "utf-8", h.Charset())
}

func TestResponseHeaderDate(t *testing.T) {
	h, err := ParseResponseHeaders([]string{"Date: Mon, 02 Jan 2006 15:04:05 GMT"})
	require.NoError(t, err)

	date, err := h.Date()
	require.NoError(t, err)
	assert.Equal(t, 2006, date.Year())
	assert.Equal(t, 15, date.Hour())

	empty := NewResponseHeaders()
	_, err = empty.Date()
	assert.Error(t, err)

	bad, err := ParseResponseHeaders([]string{"Date: yesterday-ish"})
	require.NoError(t, err)
	_, err = bad.Date()
	assert.Error(t, err)
}
