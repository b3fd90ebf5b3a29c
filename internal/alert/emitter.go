package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"graduation-engine/internal/observability"
)

// Emitter accepts events without blocking the trading path.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Sink delivers an event synchronously.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, Event) {}

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
)

// AsyncEmitterOptions configures an AsyncEmitter.
type AsyncEmitterOptions struct {
	QueueSize   int
	SendTimeout time.Duration
	Logger      *zap.Logger
}

// AsyncEmitter queues events on a bounded channel and delivers them to a
// sink from one goroutine. A full queue drops the event.
type AsyncEmitter struct {
	sink        Sink
	queue       chan Event
	sendTimeout time.Duration
	logger      *zap.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewAsyncEmitter starts the delivery goroutine. Call Close to drain and stop it.
func NewAsyncEmitter(sink Sink, opts AsyncEmitterOptions) *AsyncEmitter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &AsyncEmitter{
		sink:        sink,
		queue:       make(chan Event, opts.QueueSize),
		sendTimeout: opts.SendTimeout,
		logger:      logger.Named("alert"),
		done:        make(chan struct{}),
	}
	go a.run()
	return a
}

// Emit queues e. It never blocks.
func (a *AsyncEmitter) Emit(_ context.Context, e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- e:
		observability.RecordAlert(string(e.Kind))
	default:
		observability.RecordAlertDropped()
		a.logger.Warn("alert queue full, dropping event",
			zap.String("kind", string(e.Kind)),
			zap.String("mint", e.Mint),
		)
	}
}

// Close stops accepting events, delivers what is queued and waits for the
// worker to exit or ctx to end.
func (a *AsyncEmitter) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncEmitter) run() {
	defer close(a.done)
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.sendTimeout)
		if err := a.sink.Send(ctx, e); err != nil {
			a.logger.Warn("alert delivery failed",
				zap.String("kind", string(e.Kind)),
				zap.String("mint", e.Mint),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// MultiEmitter fans an event out to several sinks.
type MultiEmitter []Sink

// Send delivers to every sink and joins their errors.
func (m MultiEmitter) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Emitter = Nop{}
	_ Emitter = (*AsyncEmitter)(nil)
	_ Sink    = MultiEmitter(nil)
)
