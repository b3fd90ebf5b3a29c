package ingestion

import (
	"context"
	"sync"
)

// PriceBook keeps the last observed price per mint and fans updates out to watchers.
// Watchers get latest-value semantics: a slow watcher sees the newest tick, not every tick.
type PriceBook struct {
	mu       sync.RWMutex
	last     map[string]PriceTick
	watchers map[string]map[uint64]chan PriceTick
	nextID   uint64
}

// NewPriceBook creates an empty price book.
func NewPriceBook() *PriceBook {
	return &PriceBook{
		last:     make(map[string]PriceTick),
		watchers: make(map[string]map[uint64]chan PriceTick),
	}
}

// Update records a tick. Ticks older than the stored one are ignored.
func (b *PriceBook) Update(tick PriceTick) {
	if tick.Mint == "" || tick.PriceUSD <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.last[tick.Mint]; ok && prev.ObservedAt > tick.ObservedAt {
		return
	}
	b.last[tick.Mint] = tick

	for _, ch := range b.watchers[tick.Mint] {
		offerLatest(ch, tick)
	}
}

// Last returns the most recent tick for a mint.
func (b *PriceBook) Last(mint string) (PriceTick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tick, ok := b.last[mint]
	return tick, ok
}

// Watch streams updates for a mint until cancel is called.
func (b *PriceBook) Watch(mint string) (<-chan PriceTick, func()) {
	ch := make(chan PriceTick, 1)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.watchers[mint] == nil {
		b.watchers[mint] = make(map[uint64]chan PriceTick)
	}
	b.watchers[mint][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers[mint], id)
			if len(b.watchers[mint]) == 0 {
				delete(b.watchers, mint)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Run feeds the book from src until the context is cancelled or src closes.
func (b *PriceBook) Run(ctx context.Context, src PriceSource) error {
	ticks, err := src.SubscribePrices(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			b.Update(tick)
		}
	}
}

// offerLatest delivers tick without blocking, replacing an unread older tick.
func offerLatest(ch chan PriceTick, tick PriceTick) {
	select {
	case ch <- tick:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- tick:
	default:
	}
}
