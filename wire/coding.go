package wire

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// Content codings. Only gzip, deflate and identity are supported; anything
// else surfaces as [ErrUnsupportedCoding] and the caller decides whether to
// warn and pass the bytes through verbatim.
const (
	CodingIdentity = "identity"
	CodingGzip     = "gzip"
	CodingDeflate  = "deflate"

	// Transfer coding. Lives here because chunk payloads may additionally be
	// content-coded.
	CodingChunked = "chunked"
)

var ErrUnsupportedCoding = errors.New("coding is unsupported")

// Compress applies the named content coding to data. An empty coding means
// identity. The http "deflate" coding is the zlib format, not raw deflate.
func Compress(data []byte, coding string) ([]byte, error) {
	switch coding {
	case "", CodingIdentity:
		return data, nil
	case CodingGzip, CodingDeflate:
		buf := bytes.NewBuffer(nil)

		var w io.WriteCloser
		if coding == CodingGzip {
			w = gzip.NewWriter(buf)
		} else {
			w = zlib.NewWriter(buf)
		}

		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrap(err, "compressing data")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "flushing compressor")
		}

		return buf.Bytes(), nil
	default:
		return data, ErrUnsupportedCoding
	}
}

// Decompress undoes the named content coding. An empty coding means identity.
// On [ErrUnsupportedCoding] the original bytes are returned alongside the
// error so the caller can keep them verbatim.
func Decompress(data []byte, coding string) ([]byte, error) {
	switch coding {
	case "", CodingIdentity:
		return data, nil
	case CodingGzip, CodingDeflate:
		var (
			r   io.ReadCloser
			err error
		)
		if coding == CodingGzip {
			r, err = gzip.NewReader(bytes.NewReader(data))
		} else {
			r, err = zlib.NewReader(bytes.NewReader(data))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s stream", coding)
		}
		defer r.Close()

		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrapf(err, "decompressing %s data", coding)
		}

		return out, nil
	default:
		return data, ErrUnsupportedCoding
	}
}
