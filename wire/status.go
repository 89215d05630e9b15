package wire

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Code is an HTTP response status code.
type Code uint

const (
	// informative, discarded by the response parser
	CodeContinue           Code = 100
	CodeSwitchingProtocols Code = 101

	CodeOK               Code = 200
	CodeCreated          Code = 201
	CodeAccepted         Code = 202
	CodeNonAuthoritative Code = 203
	CodeNoContent        Code = 204
	CodeResetContent     Code = 205

	// redirection class — the transaction follows the Location header for
	// 301, 302, 303 and 307, and treats 304 as a revalidation answer
	CodeMultipleChoices  Code = 300
	CodeMovedPermanently Code = 301
	CodeFound            Code = 302
	CodeSeeOther         Code = 303
	CodeNotModified      Code = 304
	CodeUseProxy         Code = 305
	CodeTempRedirect     Code = 307

	CodeBadRequest           Code = 400
	CodeUnauthorized         Code = 401
	CodeForbidden            Code = 403
	CodeNotFound             Code = 404
	CodeMethodNotAllowed     Code = 405
	CodeNotAcceptable        Code = 406
	CodeProxyAuthRequired    Code = 407
	CodeRequestTimeout       Code = 408
	CodeConflict             Code = 409
	CodeGone                 Code = 410
	CodeLengthRequired       Code = 411
	CodePreconditionFailed   Code = 412
	CodeEntityTooLarge       Code = 413
	CodeURITooLong           Code = 414
	CodeUnsupportedMedia     Code = 415
	CodeRangeNotSatisfiable  Code = 416
	CodeExpectationFailed    Code = 417
	CodeTooManyRequests      Code = 429
	CodeServerError          Code = 500
	CodeBadGateway           Code = 502
	CodeServerDown           Code = 503
	CodeGatewayTimeout       Code = 504
	CodeUnsupportedVersion   Code = 505
	CodeServerUnreachable    Code = 521
)

// bodyless lists codes that never carry a body even though their class would
// otherwise allow one.
var bodyless = map[Code]bool{
	CodeNoContent:   true,
	CodeNotModified: true,
}

// Class returns the code class (100, 200, ... 500).
func (c Code) Class() Code { return c - c%100 }

// HasBody determines whether a response with this code has a body.
func (c Code) HasBody() bool {
	if c.Class() == 100 {
		return false
	}
	return !bodyless[c]
}

// IsError determines whether this code signals an error; unknown classes are
// treated as errors as well. If it does, the response body represents an
// error message rather than contents.
func (c Code) IsError() bool { return c.Class() >= 400 }

// IsClientError reports a 4xx code. Client errors can be corrected by e.g.
// changing the request body or setting appropriate headers.
func (c Code) IsClientError() bool { return c.Class() == 400 }

// IsServerError reports a 5xx code. Server errors usually cannot be corrected
// by the client.
func (c Code) IsServerError() bool { return c.Class() == 500 }

// Status holds the data contained in the Status-Line of a response.
type Status struct {
	Version Version
	Code    Code
	Phrase  string
}

// ParseStatus splits a status line into version, code and reason phrase.
// The reason phrase is optional; a missing one yields an empty Phrase (the
// caller may warn about it).
func ParseStatus(line string) (Status, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return Status{}, errors.Errorf("status line is malformed: %q", line)
	}

	ver, err := ParseVersion([]byte(parts[0]))
	if err != nil {
		return Status{}, errors.Wrap(err, "parsing version")
	}

	code, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || len(parts[1]) != 3 {
		return Status{}, errors.Errorf("status code is malformed: %q", parts[1])
	}

	phrase := ""
	if len(parts) == 3 {
		phrase = parts[2]
	}

	return Status{Version: ver, Code: Code(code), Phrase: phrase}, nil
}

func (s Status) String() string {
	return s.Version.String() + " " + strconv.FormatUint(uint64(s.Code), 10) + " " + s.Phrase
}
