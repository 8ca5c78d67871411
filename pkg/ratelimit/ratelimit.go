package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Pacer spaces consecutive operations by a base delay with optional jitter.
// The first Wait never blocks. It is safe for concurrent use.
type Pacer struct {
	mu     sync.Mutex
	delay  time.Duration
	jitter float64 // 0.0 to 1.0
	last   time.Time
	now    func() time.Time
}

// NewPacer creates a pacer that keeps at least delay (+/- jitter*delay)
// between the starts of two operations. If delay is <= 0, Wait never blocks.
func NewPacer(delay time.Duration, jitter float64) *Pacer {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Pacer{
		delay:  delay,
		jitter: jitter,
		now:    time.Now,
	}
}

// Next returns how long the caller would currently have to wait.
func (p *Pacer) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending(p.now())
}

// pending must be called with the lock held.
func (p *Pacer) pending(now time.Time) time.Duration {
	if p.delay <= 0 || p.last.IsZero() {
		return 0
	}
	wait := p.delay
	if p.jitter > 0 {
		factor := rand.Float64()*2 - 1.0 // -1.0 to 1.0
		wait += time.Duration(float64(p.delay) * p.jitter * factor)
	}
	if d := wait - now.Sub(p.last); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until the next operation may start or ctx is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d := p.pending(p.now()); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	p.last = p.now()
	return nil
}
