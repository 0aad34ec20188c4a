package sync

import (
	"context"
	"log"
	"time"
)

// Poller is the fallback pull channel: while the feed is not live it runs a
// snapshot fetch on a fixed interval and hands the result to the engine.
// The instant the feed reports live, polling stops, mid-interval; it resumes
// when health degrades again.
//
// One fetch may be in flight at a time. A slow fetch suppresses subsequent
// ticks instead of queueing them; that is the backpressure policy. Fetch
// errors are transient by definition here: logged and retried on the next
// tick, never surfaced.
type Poller struct {
	health   *ConnectionHealth
	interval time.Duration
	fetch    func(ctx context.Context) error
	logger   *log.Logger

	done     chan struct{}
	finished chan struct{}
}

// newPoller wires a poller to the engine's fetch closure. The engine owns
// the poller lifecycle.
func newPoller(health *ConnectionHealth, interval time.Duration, fetch func(ctx context.Context) error, logger *log.Logger) *Poller {
	return &Poller{
		health:   health,
		interval: interval,
		fetch:    fetch,
		logger:   logger,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (p *Poller) start() {
	go p.run()
}

func (p *Poller) stop() {
	close(p.done)
	<-p.finished
}

func (p *Poller) run() {
	defer close(p.finished)

	states, cancel := p.health.Subscribe()
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	state := p.health.State()
	inflight := make(chan struct{}, 1)

	for {
		select {
		case <-p.done:
			return

		case s := <-states:
			state = s

		case <-ticker.C:
			if state == StateLive || state == StateClosed {
				// Idle: the push channel is healthy (or the feed is gone for
				// good); no fetch is issued.
				continue
			}
			select {
			case inflight <- struct{}{}:
			default:
				// previous fetch still running; skip this tick
				continue
			}
			go func() {
				defer func() { <-inflight }()
				ctx, cancelFetch := context.WithTimeout(context.Background(), p.interval*2)
				defer cancelFetch()
				if err := p.fetch(ctx); err != nil {
					p.logger.Printf("[poll] snapshot fetch failed (will retry): %v", err)
				}
			}()
		}
	}
}
