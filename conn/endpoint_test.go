package conn

import (
	"net/url"
	"testing"

	"httpwire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointFromURL(t *testing.T) {
	testcases := []struct {
		desc     string
		url      string
		wantAddr string
		wantPort uint16
		wantTLS  bool
		wantErr  bool
	}{
		{
			desc:     "http infers port 80",
			url:      "http://127.0.0.1/index.html",
			wantAddr: "127.0.0.1",
			wantPort: 80,
		},
		{
			desc:     "https infers port 443 and tls",
			url:      "https://127.0.0.1/",
			wantAddr: "127.0.0.1",
			wantPort: 443,
			wantTLS:  true,
		},
		{
			desc:     "explicit port wins",
			url:      "http://127.0.0.1:8080/x",
			wantAddr: "127.0.0.1",
			wantPort: 8080,
		},
		{desc: "unknown protocol", url: "ftp://127.0.0.1/", wantErr: true},
		{desc: "no scheme", url: "127.0.0.1/x", wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			u, err := url.Parse(tc.url)
			require.NoError(t, err)

			ep, err := EndpointFromURL(u)
			if tc.wantErr {
				assert.ErrorIs(t, err, httpwire.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantAddr, ep.Addr())
			assert.Equal(t, tc.wantPort, ep.Port())
			assert.Equal(t, tc.wantTLS, ep.TLS())
		})
	}
}

func TestEndpointKey(t *testing.T) {
	ep, err := NewEndpoint("127.0.0.1", 8080, false)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", ep.Key())
	assert.Equal(t, "127.0.0.1:8080", ep.String())
	assert.Equal(t, "127.0.0.1", ep.Host())
}

func TestEndpointKeyUsesResolvedAddress(t *testing.T) {
	// Two endpoints resolving to the same address and port share a pool slot
	// regardless of the host text they were created with.
	a := Endpoint{host: "localhost", addr: "127.0.0.1", port: 80}
	b := Endpoint{host: "127.0.0.1", addr: "127.0.0.1", port: 80}

	assert.Equal(t, a.Key(), b.Key())
}

func TestEndpointEmptyHost(t *testing.T) {
	_, err := NewEndpoint("", 80, false)
	assert.Error(t, err)
}

func TestEndpointFromString(t *testing.T) {
	ep, err := EndpointFromString("http://127.0.0.1:9000/path")
	require.NoError(t, err)
	assert.Equal(t, uint16(9000), ep.Port())

	_, err = EndpointFromString("gopher://127.0.0.1")
	assert.ErrorIs(t, err, httpwire.ErrInvalidRequest)
}
