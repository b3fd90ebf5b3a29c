package ingestion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/solana"
)

const (
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond

	// GetCandidatesMethod is the pull endpoint of the discovery scanner.
	GetCandidatesMethod = "getCandidates"
)

// getCandidatesResult is the raw RPC response for getCandidates.
type getCandidatesResult struct {
	Events []*RawEvent `json:"events"`
	Cursor string      `json:"cursor"`
}

// PollSource pulls candidate events from the discovery scanner on an interval.
type PollSource struct {
	rpc      solana.Caller
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

// PollSourceOptions contains configuration for creating a PollSource.
type PollSourceOptions struct {
	RPC      solana.Caller
	Interval time.Duration // Default: 5s
	Limit    int           // Default: 100 events per page
	Logger   *zap.Logger
}

// NewPollSource creates a new polling candidate source.
func NewPollSource(opts PollSourceOptions) *PollSource {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollSource{
		rpc:      opts.RPC,
		interval: interval,
		limit:    limit,
		logger:   logger.Named("poll-source"),
	}
}

// Subscribe polls until the context is cancelled. Fetch failures are logged
// and retried on the next tick; the cursor only advances on success.
func (s *PollSource) Subscribe(ctx context.Context) (<-chan *RawEvent, error) {
	eventsCh := make(chan *RawEvent, 100)

	go func() {
		defer close(eventsCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		cursor := ""
		for {
			next, err := s.drain(ctx, cursor, eventsCh)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("poll failed", zap.String("cursor", cursor), zap.Error(err))
			} else {
				cursor = next
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return eventsCh, nil
}

// drain fetches pages until the scanner returns a short page.
func (s *PollSource) drain(ctx context.Context, cursor string, out chan<- *RawEvent) (string, error) {
	for {
		page, err := s.fetchWithRetry(ctx, cursor)
		if err != nil {
			return cursor, err
		}
		for _, ev := range page.Events {
			if ev == nil {
				continue
			}
			ev.Source = string(domain.SourcePoll)
			select {
			case out <- ev:
			case <-ctx.Done():
				return cursor, ctx.Err()
			}
		}
		if page.Cursor != "" {
			cursor = page.Cursor
		}
		if len(page.Events) < s.limit || page.Cursor == "" {
			return cursor, nil
		}
	}
}

// fetchWithRetry fetches one page with exponential backoff retry.
func (s *PollSource) fetchWithRetry(ctx context.Context, cursor string) (*getCandidatesResult, error) {
	params := []interface{}{
		map[string]interface{}{
			"cursor": cursor,
			"limit":  s.limit,
		},
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var result getCandidatesResult
		err := s.rpc.Call(ctx, GetCandidatesMethod, params, &result)
		if err == nil {
			return &result, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Exponential backoff: 500ms, 1s, 2s
		delay := baseRetryDelay * time.Duration(1<<attempt)
		s.logger.Debug("retry getCandidates",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

var _ Source = (*PollSource)(nil)
