package client

import (
	"context"

	"httpwire/conn"
	"httpwire/wire"
)

// Callbacks manage an asynchronous transaction.
type Callbacks interface {
	// OnResponse signals the exchange finished and hands over the response.
	OnResponse(resp *Response)
	// OnTimeout signals a timeout, possibly while waiting for a socket from
	// the pool.
	OnTimeout()
	// OnError is called when anything else goes wrong. The exchange won't
	// proceed.
	OnError(err error)
}

// MakeRequestLater runs the exchange with the pool wait happening on a
// background goroutine and completions dispatched on the executor. It
// returns immediately after the request passes verification. The transaction
// is never touched from more than one goroutine at a time: the whole state
// machine runs on the acquisition callback.
func (t *Transaction) MakeRequestLater(method wire.Method, target string, callbacks Callbacks, executor conn.Executor) {
	if err := t.ensureOpen(); err != nil {
		run(executor, func() { callbacks.OnError(err) })
		return
	}
	t.used = true
	t.currRedirects = 0
	t.currRepeats = 0

	if err := t.verifyBodySources(); err != nil {
		run(executor, func() { callbacks.OnError(err) })
		return
	}

	req, body, err := t.buildRequest(method, target)
	if err != nil {
		run(executor, func() { callbacks.OnError(err) })
		return
	}
	if err := req.Verify(); err != nil {
		run(executor, func() { callbacks.OnError(err) })
		return
	}

	ep, err := conn.EndpointFromURL(req.Target())
	if err != nil {
		run(executor, func() { callbacks.OnError(err) })
		return
	}

	t.pool.AcquireAsync(ep, &asyncExchange{
		t:         t,
		method:    method,
		target:    target,
		req:       req,
		body:      body,
		callbacks: callbacks,
		executor:  executor,
	})
}

// asyncExchange resumes the transaction once the pool hands over a socket.
// Redirect and repeat hops acquire their sockets blocking — we're already on
// a background goroutine, so nobody else is held up by it.
type asyncExchange struct {
	t      *Transaction
	method wire.Method
	target string
	req    *Request
	body   []byte

	callbacks Callbacks
	executor  conn.Executor
}

func (a *asyncExchange) OnObtained(s *conn.Socket) {
	run(a.executor, func() {
		resp, err := a.t.run(context.Background(), a.method, a.target, s, a.req, a.body)
		if err != nil {
			a.callbacks.OnError(err)
			return
		}
		a.callbacks.OnResponse(resp)
	})
}

func (a *asyncExchange) OnTimeout() {
	run(a.executor, a.callbacks.OnTimeout)
}

func (a *asyncExchange) OnError(err error) {
	run(a.executor, func() { a.callbacks.OnError(err) })
}
