package orders

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Refresher is anything the poller keeps fresh (the order store, the
// reference-data cache).
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Poller owns the single periodic refresh loop. The legacy dashboard had
// every mounted screen running its own 30-second timer against the same
// resource; here screens subscribe instead, and the loop runs only while the
// subscriber count is above zero.
type Poller struct {
	interval time.Duration
	targets  []Refresher
	log      *logrus.Entry

	mu     sync.Mutex
	subs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller returns a poller over the given targets. It does not start
// polling until the first Subscribe.
func NewPoller(interval time.Duration, log *logrus.Entry, targets ...Refresher) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{interval: interval, targets: targets, log: log}
}

// Subscribe registers interest in fresh data. The first subscriber starts the
// loop, which refreshes immediately and then on every tick.
func (p *Poller) Subscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs++
	if p.subs > 1 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Unsubscribe drops one subscription; the last one stops the loop.
func (p *Poller) Unsubscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs == 0 {
		return
	}
	p.subs--
	if p.subs == 0 {
		p.cancel()
		p.cancel = nil
	}
}

// RefreshNow refreshes all targets once, outside the timer. Used by the
// manual refresh endpoint. The first error is returned but every target is
// still attempted.
func (p *Poller) RefreshNow(ctx context.Context) error {
	var first error
	for _, t := range p.targets {
		if err := t.Refresh(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := p.RefreshNow(ctx); err != nil {
		p.log.WithError(err).Warn("initial refresh failed")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RefreshNow(ctx); err != nil {
				p.log.WithError(err).Warn("poll refresh failed")
			}
		}
	}
}
