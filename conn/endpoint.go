// Package conn holds endpoints, sockets and the connection pool that
// multiplexes sockets across concurrent callers.
package conn

import (
	"net"
	"net/url"
	"strconv"

	"httpwire"

	"github.com/pkg/errors"
)

// Endpoint identifies a remote origin: resolved address, port and whether the
// connection should be made over TLS. Immutable after construction.
//
// Pool keying uses the resolved address and port only, so "localhost" and
// "127.0.0.1" share a pool slot.
type Endpoint struct {
	host string
	addr string // resolved IP, textual
	port uint16
	tls  bool
}

// NewEndpoint resolves host and builds an endpoint for it.
func NewEndpoint(host string, port uint16, useTLS bool) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, errors.New("host can't be empty")
	}

	addrs, err := net.LookupIP(host)
	if err != nil {
		return Endpoint{}, errors.Wrapf(err, "lookup for host(%s) failed", host)
	}

	// Simply use the first address.
	return Endpoint{
		host: host,
		addr: addrs[0].String(),
		port: port,
		tls:  useTLS,
	}, nil
}

// EndpointFromURL builds an endpoint from a URL, inferring port 80/443 from
// the scheme when absent.
func EndpointFromURL(u *url.URL) (Endpoint, error) {
	useTLS := false
	port := uint16(0)

	switch u.Scheme {
	case "http":
		port = 80
	case "https":
		port = 443
		useTLS = true
	default:
		return Endpoint{}, errors.Wrapf(httpwire.ErrInvalidRequest, "unknown protocol: %q", u.Scheme)
	}

	if raw := u.Port(); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			return Endpoint{}, errors.Wrapf(httpwire.ErrInvalidRequest, "bad port: %q", raw)
		}
		port = uint16(parsed)
	}

	return NewEndpoint(u.Hostname(), port, useTLS)
}

// EndpointFromString parses raw as a URL and builds an endpoint from it.
func EndpointFromString(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.Wrapf(httpwire.ErrInvalidRequest, "malformed url: %q", raw)
	}
	return EndpointFromURL(u)
}

func (e Endpoint) Host() string { return e.host }
func (e Endpoint) Addr() string { return e.addr }
func (e Endpoint) Port() uint16 { return e.port }
func (e Endpoint) TLS() bool    { return e.tls }

// Key returns the identity the pool keys on: resolved address plus port.
func (e Endpoint) Key() string {
	return net.JoinHostPort(e.addr, strconv.FormatUint(uint64(e.port), 10))
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.host, strconv.FormatUint(uint64(e.port), 10))
}
