package ingestion

import (
	"cmp"
	"slices"
)

// CompareRawEvents orders events by observed_at, then mint, then pool.
// Replays sort with it so equal inputs always produce the same trades.
func CompareRawEvents(a, b *RawEvent) int {
	return cmp.Or(
		cmp.Compare(a.ObservedAt, b.ObservedAt),
		cmp.Compare(a.Mint, b.Mint),
		cmp.Compare(a.Pool, b.Pool),
	)
}

// ComparePriceTicks orders ticks by observed_at, then mint.
func ComparePriceTicks(a, b PriceTick) int {
	return cmp.Or(
		cmp.Compare(a.ObservedAt, b.ObservedAt),
		cmp.Compare(a.Mint, b.Mint),
	)
}

// SortRawEvents sorts in place; ties keep their input order.
func SortRawEvents(events []*RawEvent) {
	slices.SortStableFunc(events, CompareRawEvents)
}

// SortPriceTicks sorts in place; ties keep their input order.
func SortPriceTicks(ticks []PriceTick) {
	slices.SortStableFunc(ticks, ComparePriceTicks)
}
