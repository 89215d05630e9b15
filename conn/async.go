package conn

// Callbacks notify an asynchronous acquirer. OnTimeout fires exactly once and
// is never followed by OnObtained.
type Callbacks interface {
	// OnObtained hands over a freshly acquired socket. Use it and close or
	// release it when the exchange is over.
	OnObtained(s *Socket)
	// OnTimeout reports that no socket freed up within MaxWait.
	OnTimeout()
	// OnError reports a failure (e.g. dialing) while waiting.
	OnError(err error)
}

// AcquireAsync mirrors [Pool.AcquireBlocking] on a background goroutine,
// invoking the callbacks instead of returning.
func (p *Pool) AcquireAsync(ep Endpoint, callbacks Callbacks) {
	go func() {
		start := p.clock.Now()

		for {
			cfg := p.Config()
			if p.clock.Since(start) > cfg.MaxWait {
				callbacks.OnTimeout()
				return
			}

			s, err := p.tryAcquire(ep)
			if err != nil {
				callbacks.OnError(err)
				return
			}
			if s != nil {
				callbacks.OnObtained(s)
				return
			}

			p.clock.Sleep(cfg.PollInterval)
		}
	}()
}
