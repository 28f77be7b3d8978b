package camera

import (
	"context"
	"sync/atomic"

	"github.com/doorcam/doorcamd/internal/frame"
)

// Reconnecting wraps a Producer factory with the backoff policy from
// RunWithReconnect, presenting a single long-lived Producer to the
// orchestrator even though the underlying producer may be recreated
// several times across one Start call (spec.md §4.9: camera failures
// recover in place rather than crashing the process).
type Reconnecting struct {
	newProducer func() Producer
	cfg         ReconnectConfig

	cancel    context.CancelFunc
	reconnect atomic.Uint32
	current   atomic.Pointer[Producer]
}

// NewReconnecting builds a Reconnecting producer. newProducer is called
// once per connection attempt to obtain a fresh underlying Producer.
func NewReconnecting(newProducer func() Producer, cfg ReconnectConfig) *Reconnecting {
	return &Reconnecting{newProducer: newProducer, cfg: cfg}
}

func (r *Reconnecting) Start(ctx context.Context) (<-chan *frame.Frame, error) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	return RunWithReconnect(runCtx, func(attemptCtx context.Context) (<-chan *frame.Frame, error) {
		p := r.newProducer()
		ch, err := p.Start(attemptCtx)
		if err != nil {
			return nil, err
		}
		r.current.Store(&p)
		return ch, nil
	}, r.cfg, &r.reconnect)
}

func (r *Reconnecting) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	if p := r.current.Load(); p != nil {
		return (*p).Stop()
	}
	return nil
}

func (r *Reconnecting) Stats() Stats {
	s := Stats{Reconnects: r.reconnect.Load()}
	if p := r.current.Load(); p != nil {
		inner := (*p).Stats()
		s.FramesProduced = inner.FramesProduced
		s.Connected = inner.Connected
	}
	return s
}
