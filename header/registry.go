package header

import (
	"log/slog"
	"strings"

	"httpwire"

	"github.com/pkg/errors"
)

// Registry classification for request header names.
type registration int

const (
	unknown registration = iota
	permanent
	obsolete
	nonstandard
)

var knownHeaders = map[string]registration{
	"a-im":                           permanent,
	"accept":                         permanent,
	"accept-charset":                 permanent,
	"accept-datetime":                permanent,
	"accept-encoding":                permanent,
	"accept-language":                permanent,
	"access-control-request-method":  permanent,
	"access-control-request-headers": permanent,
	"authorization":                  permanent,
	"cache-control":                  permanent,
	"connection":                     permanent,
	"content-length":                 permanent,
	"content-md5":                    obsolete,
	"content-type":                   permanent,
	"cookie":                         permanent,
	"date":                           permanent,
	"expect":                         permanent,
	"forwarded":                      permanent,
	"from":                           permanent,
	"host":                           permanent,
	"http2-settings":                 permanent, // not-really-supported
	"if-match":                       permanent,
	"if-modified-since":              permanent,
	"if-none-match":                  permanent,
	"if-range":                       permanent,
	"if-unmodified-since":            permanent,
	"max-forwards":                   permanent,
	"origin":                         permanent,
	"pragma":                         permanent,
	"proxy-authorization":            permanent,
	"range":                          permanent,
	"referer":                        permanent,
	"te":                             permanent,
	"user-agent":                     permanent,
	"upgrade":                        permanent, // not-really-supported
	"via":                            permanent,
	"warning":                        permanent,
	"upgrade-insecure-requests":      nonstandard,
	"x-requested-with":               nonstandard,
	"dnt":                            nonstandard,
	"x-forwarded-for":                nonstandard,
	"x-forwarded-host":               nonstandard,
	"x-forwarded-proto":              nonstandard,
	"front-end-ttps":                 nonstandard,
	"x-http-method-override":         nonstandard,
	"x-att-deviceid":                 nonstandard,
	"x-wap-profile":                  nonstandard,
	"proxy-connection":               nonstandard,
	"x-uidh":                         nonstandard,
	"x-csrf-token":                   nonstandard,
	"x-request-id":                   nonstandard,
	"x-correlation-id":               nonstandard,
	"save-data":                      nonstandard,

	// These are actually response headers, but work in the wild on requests.
	"transfer-encoding": nonstandard,
	"content-encoding":  nonstandard,
}

// Policy decides what happens when a request header outside the permanent set
// is used: allow it silently, allow it with a warning, or reject it with
// [httpwire.ErrInvalidHeader].
type Policy struct {
	AllowUnknown    bool
	WarnUnknown     bool
	AllowNonstandard bool
	WarnNonstandard  bool
	AllowObsolete   bool
	WarnObsolete    bool
}

// DefaultPolicy allows everything but warns on unknown and obsolete names.
func DefaultPolicy() Policy {
	return Policy{
		AllowUnknown:     true,
		WarnUnknown:      true,
		AllowNonstandard: true,
		WarnNonstandard:  false,
		AllowObsolete:    true,
		WarnObsolete:     true,
	}
}

// Check validates a single header name against the policy.
func (p Policy) Check(logger *slog.Logger, name string) error {
	name = strings.ToLower(name)

	switch knownHeaders[name] {
	case permanent:
		return nil
	case nonstandard:
		if !p.AllowNonstandard {
			return errors.Wrapf(httpwire.ErrInvalidHeader, "nonstandard header %q", name)
		}
		if p.WarnNonstandard {
			logger.Warn("using nonstandard header", "header", name)
		}
	case obsolete:
		if !p.AllowObsolete {
			return errors.Wrapf(httpwire.ErrInvalidHeader, "obsolete header %q", name)
		}
		if p.WarnObsolete {
			logger.Warn("using obsolete header", "header", name)
		}
	default:
		if !p.AllowUnknown {
			return errors.Wrapf(httpwire.ErrInvalidHeader, "unknown header %q", name)
		}
		if p.WarnUnknown {
			logger.Warn("using unknown header", "header", name)
		}
	}

	return nil
}
