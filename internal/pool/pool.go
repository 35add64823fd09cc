// Package pool implements the per-tier capacity ledgers. Each Pool is an
// actor: one goroutine owns the counters and applies requests from a
// bounded channel one at a time, so callers never share memory with it.
package pool

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrClosed is returned when the pool's actor has stopped before the
// request could be applied.
var ErrClosed = errors.New("pool: closed")

const defaultQueueSize = 64

type request struct {
	apply func(counters map[uint64]int)
	done  chan struct{}
}

// Pool is a capacity ledger keyed by tier id. The zero value is not
// usable; construct with NewDirect or NewRecycled and start Run.
type Pool struct {
	name     string
	counters map[uint64]int // owned by Run
	reqs     chan request
	stopped  chan struct{}
	log      *zap.Logger
}

func newPool(name string, seed map[uint64]int, queueSize int, log *zap.Logger) *Pool {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	counters := make(map[uint64]int, len(seed))
	for id, n := range seed {
		if n < 0 {
			n = 0
		}
		counters[id] = n
	}
	return &Pool{
		name:     name,
		counters: counters,
		reqs:     make(chan request, queueSize),
		stopped:  make(chan struct{}),
		log:      log.With(zap.String("pool", name)),
	}
}

// NewDirect returns the ledger used for immediate reservation at request
// time. seed maps every tier id to its initial available capacity.
func NewDirect(seed map[uint64]int, queueSize int, log *zap.Logger) *Pool {
	return newPool("direct", seed, queueSize, log)
}

// Name identifies the pool in logs.
func (p *Pool) Name() string { return p.name }

// Run processes requests until ctx is done. It must be started exactly
// once; requests sent before Run starts wait in the queue.
func (p *Pool) Run(ctx context.Context) {
	defer close(p.stopped)
	p.log.Info("pool started", zap.Int("tiers", len(p.counters)))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("pool stopped")
			return
		case r := <-p.reqs:
			r.apply(p.counters)
			close(r.done)
		}
	}
}

// do hands fn to the actor and waits for it to be applied. Once the
// actor has accepted a request it always finishes it, so a caller whose
// context ends after enqueueing still waits for the outcome rather than
// losing track of a mutation.
func (p *Pool) do(ctx context.Context, fn func(map[uint64]int)) error {
	r := request{apply: fn, done: make(chan struct{})}
	select {
	case p.reqs <- r:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopped:
		return ErrClosed
	}
	select {
	case <-r.done:
		return nil
	case <-p.stopped:
		select {
		case <-r.done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Reserve decrements tierID's counter by count when at least count is
// available. It reports false, with no mutation, when capacity is short,
// the tier is unknown or count is not positive.
func (p *Pool) Reserve(ctx context.Context, tierID uint64, count int) (bool, error) {
	var ok bool
	err := p.do(ctx, func(c map[uint64]int) {
		remaining, known := c[tierID]
		if !known || count <= 0 || remaining < count {
			return
		}
		c[tierID] = remaining - count
		ok = true
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release gives back count seats taken by a Reserve whose follow-up
// write failed. Unknown tiers are ignored.
func (p *Pool) Release(ctx context.Context, tierID uint64, count int) error {
	return p.do(ctx, func(c map[uint64]int) {
		if remaining, known := c[tierID]; known && count > 0 {
			c[tierID] = remaining + count
		}
	})
}

// Peek returns tierID's counter, or 0 for an unknown tier.
func (p *Pool) Peek(ctx context.Context, tierID uint64) (int, error) {
	var n int
	err := p.do(ctx, func(c map[uint64]int) { n = c[tierID] })
	return n, err
}

// PeekMany is the batched form of Peek. Every requested id is present in
// the result.
func (p *Pool) PeekMany(ctx context.Context, tierIDs []uint64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(tierIDs))
	err := p.do(ctx, func(c map[uint64]int) {
		for _, id := range tierIDs {
			out[id] = c[id]
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
