package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/solana"
)

// Subscription methods understood by the discovery scanner feed.
const (
	CandidateSubscribeMethod = "candidateSubscribe"
	PriceSubscribeMethod     = "priceSubscribe"
)

// WSSource provides candidate events pushed over a WebSocket subscription.
type WSSource struct {
	ws     solana.Subscriber
	params []interface{}
	logger *zap.Logger
}

// NewWSSource creates a new WebSocket-based candidate source.
// params are passed verbatim to the subscribe call (filters, commitment).
func NewWSSource(ws solana.Subscriber, logger *zap.Logger, params ...interface{}) *WSSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSource{
		ws:     ws,
		params: params,
		logger: logger.Named("ws-source"),
	}
}

// Subscribe returns a channel of raw events from the live subscription.
// The channel is closed when the context is cancelled or the connection closes.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan *RawEvent, error) {
	notifCh, err := s.ws.Subscribe(ctx, CandidateSubscribeMethod, s.params)
	if err != nil {
		return nil, fmt.Errorf("subscribe candidates: %w", err)
	}
	s.logger.Info("subscribed to candidate feed")

	eventsCh := make(chan *RawEvent, 100)
	go func() {
		defer close(eventsCh)
		for {
			select {
			case <-ctx.Done():
				return
			case notif, ok := <-notifCh:
				if !ok {
					s.logger.Warn("candidate subscription closed")
					return
				}
				var ev RawEvent
				if err := json.Unmarshal(notif.Result, &ev); err != nil {
					s.logger.Warn("drop malformed candidate event", zap.Error(err))
					continue
				}
				ev.Source = string(domain.SourcePush)
				select {
				case eventsCh <- &ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventsCh, nil
}

// WSPriceSource provides price ticks pushed over a WebSocket subscription.
type WSPriceSource struct {
	ws     solana.Subscriber
	logger *zap.Logger
}

// NewWSPriceSource creates a new WebSocket-based price source.
func NewWSPriceSource(ws solana.Subscriber, logger *zap.Logger) *WSPriceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSPriceSource{ws: ws, logger: logger.Named("ws-prices")}
}

// SubscribePrices returns a channel of price ticks.
func (s *WSPriceSource) SubscribePrices(ctx context.Context) (<-chan PriceTick, error) {
	notifCh, err := s.ws.Subscribe(ctx, PriceSubscribeMethod, nil)
	if err != nil {
		return nil, fmt.Errorf("subscribe prices: %w", err)
	}

	ticks := make(chan PriceTick, 1000)
	go func() {
		defer close(ticks)
		for {
			select {
			case <-ctx.Done():
				return
			case notif, ok := <-notifCh:
				if !ok {
					return
				}
				var tick PriceTick
				if err := json.Unmarshal(notif.Result, &tick); err != nil || tick.Mint == "" || tick.PriceUSD <= 0 {
					s.logger.Debug("drop malformed price tick", zap.ByteString("payload", notif.Result))
					continue
				}
				select {
				case ticks <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ticks, nil
}

var (
	_ Source      = (*WSSource)(nil)
	_ PriceSource = (*WSPriceSource)(nil)
)
