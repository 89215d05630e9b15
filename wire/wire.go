package wire

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

const (
	CR byte = '\r'
	LF byte = '\n'
	SP byte = ' '
)

var CRLF = []byte{CR, LF}

// Version is an HTTP protocol version, e.g. {1, 1} for HTTP/1.1.
type Version struct {
	Major, Minor uint
}

var (
	HTTP10 = Version{1, 0}
	HTTP11 = Version{1, 1}
	HTTP20 = Version{2, 0}
)

// ParseVersion parses http version text(e.g. "HTTP/1.1") into [Version].
func ParseVersion(b []byte) (Version, error) {
	prefix := []byte("HTTP/")
	if !bytes.HasPrefix(b, prefix) {
		return Version{}, errors.Errorf("http version prefix not found: %s", b)
	}

	first, second, found := bytes.Cut(b[len(prefix):], []byte{'.'})
	if !found {
		return Version{}, errors.Errorf("dot seperator not found on version: %s", b)
	}

	major, err1 := strconv.ParseUint(string(first), 10, 64)
	minor, err2 := strconv.ParseUint(string(second), 10, 64)
	if err1 != nil || err2 != nil {
		return Version{}, errors.Errorf("http version is not convertable to int: %s", b)
	}

	return Version{uint(major), uint(minor)}, nil
}

func (ver Version) Text() []byte {
	buf := bytes.NewBuffer(nil)
	buf.Write([]byte("HTTP/"))
	buf.Write([]byte(strconv.FormatUint(uint64(ver.Major), 10)))
	buf.Write([]byte{'.'})
	buf.Write([]byte(strconv.FormatUint(uint64(ver.Minor), 10)))
	return buf.Bytes()
}

func (ver Version) String() string { return string(ver.Text()) }

// Supported reports whether this client is modelled for the version. The
// client speaks HTTP/1.1; other versions may work with careful header tuning,
// so using them warns instead of failing.
func (ver Version) Supported() bool { return ver == HTTP11 }

// RequestLine renders `METHOD SP target SP version` without the terminator.
func RequestLine(method Method, target string, ver Version) string {
	buf := bytes.NewBuffer(nil)
	buf.WriteString(string(method))
	buf.WriteByte(SP)
	buf.WriteString(target)
	buf.WriteByte(SP)
	buf.Write(ver.Text())
	return buf.String()
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.2-2
func IsValidToken(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		// ALPHA
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			continue
		}
		// DIGIT
		if '0' <= c && c <= '9' {
			continue
		}

		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+',
			'-', '.', '^', '_', '`', '|', '~':
			continue
		}

		return false
	}

	return true
}
