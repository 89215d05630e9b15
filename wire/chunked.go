package wire

import (
	"io"
	"strconv"
	"strings"

	"httpwire"

	"github.com/pkg/errors"
)

// LineByteReader is the read surface the chunk codec needs: line reads for
// size lines and trailers, raw byte reads for payloads.
type LineByteReader interface {
	ReadLine() (string, error)
	Read(p []byte) (int, error)
}

// ChunkedReader decodes a Transfer-Encoding: chunked body from a byte stream.
// Each chunk is a hex size line, that many payload bytes and a CRLF; a
// zero-size chunk ends the body. Trailer lines between the last chunk and the
// final empty line are collected for the caller to append to the response
// header set.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1
type ChunkedReader struct {
	src      LineByteReader
	trailers []string
	done     bool
	crlf     [2]byte
}

func NewChunkedReader(src LineByteReader) *ChunkedReader {
	return &ChunkedReader{src: src}
}

// Next returns the payload of the next chunk, or io.EOF once the zero-size
// chunk and trailers have been consumed.
func (cr *ChunkedReader) Next() ([]byte, error) {
	if cr.done {
		return nil, io.EOF
	}

	size, err := cr.readSize()
	if err != nil {
		return nil, errors.Wrap(err, "decoding chunk size")
	}

	if size == 0 {
		if err := cr.readTrailers(); err != nil {
			return nil, errors.Wrap(err, "decoding trailers")
		}
		cr.done = true
		return nil, io.EOF
	}

	data := make([]byte, size)
	if err := cr.readFull(data); err != nil {
		return nil, errors.Wrap(err, "reading chunk data")
	}

	if err := cr.readFull(cr.crlf[:]); err != nil {
		return nil, errors.Wrap(err, "reading chunk delimiter")
	}
	if cr.crlf[0] != CR || cr.crlf[1] != LF {
		return nil, errors.Wrap(httpwire.ErrInvalidResponse, "chunk is not delimited by CRLF")
	}

	return data, nil
}

// Trailers returns the raw trailer field lines read after the last chunk.
// Only valid once Next has returned io.EOF.
func (cr *ChunkedReader) Trailers() []string { return cr.trailers }

func (cr *ChunkedReader) readSize() (uint64, error) {
	line, err := cr.src.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errors.Wrap(io.ErrUnexpectedEOF, "stream ended before chunk size")
		}
		return 0, err
	}

	// Chunk extensions are allowed but carry nothing we care about.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1.1
	sizeRaw, _, _ := strings.Cut(line, ";")
	sizeRaw = strings.TrimSpace(sizeRaw)

	size, err := strconv.ParseUint(sizeRaw, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(httpwire.ErrInvalidResponse, "chunk size is not hex: %q", sizeRaw)
	}

	return size, nil
}

func (cr *ChunkedReader) readTrailers() error {
	fields := make([]string, 0)
	for {
		line, err := cr.src.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return errors.Wrap(err, "reading trailer line")
		}

		if len(line) == 0 {
			break
		}

		fields = append(fields, line)
	}

	cr.trailers = fields
	return nil
}

func (cr *ChunkedReader) readFull(b []byte) error {
	for len(b) > 0 {
		n, err := cr.src.Read(b)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.Wrap(io.ErrUnexpectedEOF, "stream ended inside chunk")
			}
			return err
		}
		if n == 0 {
			return errors.Wrap(io.ErrUnexpectedEOF, "stream ended inside chunk")
		}
		b = b[n:]
	}
	return nil
}

// ChunkedWriter frames payloads per the chunked transfer coding: lowercase
// hex size, CRLF, payload, CRLF. Close writes the terminating zero-size chunk
// followed by the empty trailer section.
type ChunkedWriter struct {
	w io.Writer
}

func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

// WriteChunk frames a single chunk. Zero-length payloads are ignored since an
// empty chunk would terminate the body.
func (cw *ChunkedWriter) WriteChunk(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	head := strconv.FormatUint(uint64(len(p)), 16)
	if err := cw.write(append([]byte(head), CRLF...)); err != nil {
		return errors.Wrap(err, "writing chunk header")
	}
	if err := cw.write(p); err != nil {
		return errors.Wrap(err, "writing chunk data")
	}
	if err := cw.write(CRLF); err != nil {
		return errors.Wrap(err, "writing chunk delimiter")
	}

	return nil
}

// Close terminates the body with a zero-size chunk and an empty trailer
// section.
func (cw *ChunkedWriter) Close() error {
	if err := cw.write([]byte("0\r\n\r\n")); err != nil {
		return errors.Wrap(err, "writing last chunk")
	}
	return nil
}

func (cw *ChunkedWriter) write(p []byte) error {
	for len(p) > 0 {
		n, err := cw.w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
