package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// mergeBuffer is the merged channel capacity per source.
const mergeBuffer = 100

// Merge subscribes to every source and fans their events into one channel,
// which closes once all sources have closed or ctx is done. If any
// subscription fails, none of the sources are forwarded.
// Repeated sightings of a mint are left to the normalizer's cool-down.
func Merge(ctx context.Context, sources ...Source) (<-chan *RawEvent, error) {
	if len(sources) == 0 {
		return nil, errors.New("merge: no sources")
	}

	inputs := make([]<-chan *RawEvent, len(sources))
	for i, src := range sources {
		ch, err := src.Subscribe(ctx)
		if err != nil {
			return nil, fmt.Errorf("merge: subscribe source %d: %w", i, err)
		}
		inputs[i] = ch
	}

	out := make(chan *RawEvent, mergeBuffer*len(inputs))
	var wg sync.WaitGroup
	wg.Add(len(inputs))
	for _, in := range inputs {
		go func() {
			defer wg.Done()
			forward(ctx, in, out)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func forward(ctx context.Context, in <-chan *RawEvent, out chan<- *RawEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
