package ingestion

import (
	"context"
)

// Source delivers raw candidate events.
// The channel is closed when the context is cancelled or the feed ends.
type Source interface {
	Subscribe(ctx context.Context) (<-chan *RawEvent, error)
}

// PriceSource delivers price ticks for all tracked mints.
type PriceSource interface {
	SubscribePrices(ctx context.Context) (<-chan PriceTick, error)
}
