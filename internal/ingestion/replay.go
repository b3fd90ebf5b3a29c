package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"graduation-engine/internal/domain"
)

// maxLineBytes bounds one JSONL record.
const maxLineBytes = 1 << 20

// ReplaySource replays raw events recorded as JSON lines, in deterministic order.
type ReplaySource struct {
	events []*RawEvent
}

// NewReplaySource reads every event from r. Blank lines and lines starting
// with '#' are skipped.
func NewReplaySource(r io.Reader) (*ReplaySource, error) {
	var events []*RawEvent
	err := readJSONL(r, func(line []byte, n int) error {
		var ev RawEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		ev.Source = string(domain.SourceReplay)
		events = append(events, &ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortRawEvents(events)
	return &ReplaySource{events: events}, nil
}

// Len returns the number of recorded events.
func (s *ReplaySource) Len() int {
	return len(s.events)
}

// Events returns the recorded events in replay order.
func (s *ReplaySource) Events() []*RawEvent {
	return s.events
}

// Subscribe emits every recorded event then closes the channel.
func (s *ReplaySource) Subscribe(ctx context.Context) (<-chan *RawEvent, error) {
	out := make(chan *RawEvent)
	go func() {
		defer close(out)
		for _, ev := range s.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ReadPriceTicks reads a JSONL price path and returns it sorted.
func ReadPriceTicks(r io.Reader) ([]PriceTick, error) {
	var ticks []PriceTick
	err := readJSONL(r, func(line []byte, n int) error {
		var tick PriceTick
		if err := json.Unmarshal(line, &tick); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if tick.Mint == "" || tick.PriceUSD <= 0 {
			return fmt.Errorf("line %d: price tick needs mint and positive price", n)
		}
		ticks = append(ticks, tick)
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortPriceTicks(ticks)
	return ticks, nil
}

func readJSONL(r io.Reader, fn func(line []byte, n int) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn([]byte(line), n); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read jsonl: %w", err)
	}
	return nil
}

var _ Source = (*ReplaySource)(nil)
