package client

import (
	"context"

	"httpwire"
	"httpwire/wire"

	"github.com/pkg/errors"
)

// ChunkSender creates a request with Transfer-Encoding: chunked. The caller
// drives it strictly in order: Begin opens the socket and sends the request
// head, SendChunk frames and sends one payload at a time, End terminates the
// body, parses the response and closes the transaction. All headers go out
// before the data; sending trailers is not supported.
type ChunkSender struct {
	t      *Transaction
	method wire.Method
	target string

	cw       *wire.ChunkedWriter
	encoding string

	state senderState
}

type senderState int

const (
	senderNew senderState = iota
	senderBegun
	senderEnded
)

// SendChunks prepares a chunked-body exchange on this transaction. The
// returned sender owns the transaction's socket across its calls.
func (t *Transaction) SendChunks(method wire.Method, target string) (*ChunkSender, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	return &ChunkSender{t: t, method: method, target: target}, nil
}

// Begin establishes the connection and sends the request head with
// Transfer-Encoding: chunked.
func (cs *ChunkSender) Begin(ctx context.Context) error {
	if cs.state != senderNew {
		return errors.Wrap(httpwire.ErrInvalidRequest, "chunk sender already begun")
	}

	t := cs.t
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if err := t.verifyBodySources(); err != nil {
		return err
	}
	t.used = true

	t.headers.SetTransferEncoding(wire.CodingChunked)

	req, err := NewRequest(cs.method, cs.target, t.logger)
	if err != nil {
		return err
	}
	req.SetHeaders(t.headers).SetVersion(t.version)
	t.request = req

	s, err := req.ConnectNow(ctx, t.pool)
	if err != nil {
		return err
	}
	t.socket = s

	cs.cw = wire.NewChunkedWriter(s)
	cs.encoding = t.headers.Get("Content-Encoding")
	cs.state = senderBegun

	return nil
}

// SendChunk compresses the payload per the Content-Encoding header and
// frames it per the chunked coding. Only raw data goes in: no length
// information, and no zero-length payloads (a zero-length chunk would end
// the body).
func (cs *ChunkSender) SendChunk(chunk []byte) error {
	if cs.state != senderBegun {
		return errors.Wrap(httpwire.ErrInvalidRequest, "chunk sender is not begun")
	}
	if len(chunk) == 0 {
		return errors.Wrap(httpwire.ErrInvalidRequest, "chunk must not be empty")
	}

	payload, err := wire.Compress(chunk, cs.encoding)
	if err != nil {
		if !errors.Is(err, wire.ErrUnsupportedCoding) {
			return errors.Wrap(err, "compressing chunk")
		}
		cs.t.logger.Warn("ignoring unknown encoding", "encoding", cs.encoding)
	}

	return cs.cw.WriteChunk(payload)
}

// End sends the zero-length chunk, parses the response and closes the
// transaction. The usual redirect/revalidation handholding is skipped.
func (cs *ChunkSender) End() (*Response, error) {
	if cs.state != senderBegun {
		return nil, errors.Wrap(httpwire.ErrInvalidRequest, "chunk sender is not begun")
	}
	cs.state = senderEnded

	if err := cs.cw.Close(); err != nil {
		return nil, errors.Wrap(err, "terminating chunked body")
	}

	t := cs.t
	resp := ResponseFrom(t.socket, t.request, t.cache, t.policy, t.respOpts, t.logger)
	if err := resp.Parse(); err != nil {
		return nil, err
	}
	t.response = resp

	t.latchDisconnect(resp)
	if err := t.Close(); err != nil {
		return nil, errors.Wrap(err, "closing transaction")
	}

	return resp, nil
}
