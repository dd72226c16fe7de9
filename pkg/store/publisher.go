package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Publisher releases committed store ids to consumers strictly in allocation
// order.
//
// Allocation (an atomic increment) and visibility are decoupled: producers
// finish the expensive part of a commit (finalizing the zip, writing metadata,
// renaming into place) in arbitrary order, so a producer that finishes early
// waits in Publish until every smaller id has been published.
//
// Callers MUST publish every allocated id exactly once, including ids whose
// commit failed. An id that is allocated and never published stalls the
// visibility of every later id forever.
//
// Thread Safety:
// The watermark and its broadcast channel are guarded by mu. Waiters block on
// a channel that is closed and replaced on every advance, which lets Await
// honour context cancellation.
type Publisher struct {
	mu        sync.Mutex
	watermark uint64
	changed   chan struct{}
	metrics   Metrics
}

// NewPublisher creates a publisher whose watermark is already at start.
// A start of 0 means nothing has been published.
func NewPublisher(start uint64, metrics Metrics) *Publisher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Publisher{
		watermark: start,
		changed:   make(chan struct{}),
		metrics:   metrics,
	}
}

// Publish blocks until id-1 has been published, then makes id visible and
// wakes every waiter.
//
// Publish is deliberately not cancellable: giving up would leave id
// unpublished and stall all later ids.
func (p *Publisher) Publish(id uint64) error {
	start := time.Now()
	for {
		p.mu.Lock()
		switch {
		case p.watermark+1 == id:
			p.watermark = id
			close(p.changed)
			p.changed = make(chan struct{})
			p.mu.Unlock()

			p.metrics.ObservePublish(id, time.Since(start))
			return nil
		case id <= p.watermark:
			wm := p.watermark
			p.mu.Unlock()
			return fmt.Errorf("publish %d (watermark %d): %w", id, wm, ErrAlreadyPublished)
		}
		ch := p.changed
		p.mu.Unlock()

		<-ch
	}
}

// Await blocks until an id greater than last has been published and returns
// last+1.
//
// Cancellation of ctx returns an error matching both ErrInterrupted and the
// context error.
func (p *Publisher) Await(ctx context.Context, last uint64) (uint64, error) {
	for {
		p.mu.Lock()
		if p.watermark > last {
			p.mu.Unlock()
			return last + 1, nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return 0, fmt.Errorf("await after %d: %w: %w", last, ErrInterrupted, ctx.Err())
		}
	}
}

// Watermark returns the highest published id.
func (p *Publisher) Watermark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// reset moves the watermark while the store is opening. No producer or
// consumer may be active.
func (p *Publisher) reset(v uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watermark = v
}
