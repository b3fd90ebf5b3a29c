package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graduation-engine/internal/domain"
	"graduation-engine/internal/solana"
)

// fakeSubscriber pushes pre-canned notifications for any method.
type fakeSubscriber struct {
	mu      sync.Mutex
	methods []string
	notifs  []solana.Notification
}

func (f *fakeSubscriber) Subscribe(_ context.Context, method string, _ []interface{}) (<-chan solana.Notification, error) {
	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.mu.Unlock()

	ch := make(chan solana.Notification, len(f.notifs))
	for _, n := range f.notifs {
		ch <- n
	}
	close(ch)
	return ch, nil
}

func (f *fakeSubscriber) Close() error { return nil }

// fakeCaller serves getCandidates pages in order.
type fakeCaller struct {
	mu      sync.Mutex
	pages   []getCandidatesResult
	fails   int
	calls   int
	cursors []string
}

func (f *fakeCaller) Call(_ context.Context, method string, params []interface{}, result interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if method != GetCandidatesMethod {
		return errors.New("unexpected method " + method)
	}
	if f.fails > 0 {
		f.fails--
		return errors.New("temporary failure")
	}
	if p, ok := params[0].(map[string]interface{}); ok {
		f.cursors = append(f.cursors, p["cursor"].(string))
	}
	page := getCandidatesResult{}
	if len(f.pages) > 0 {
		page = f.pages[0]
		f.pages = f.pages[1:]
	}
	raw, _ := json.Marshal(page)
	return json.Unmarshal(raw, result)
}

func collect(t *testing.T, ch <-chan *RawEvent, n int) []*RawEvent {
	t.Helper()
	var out []*RawEvent
	timeout := time.After(3 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timeout: got %d of %d events", len(out), n)
		}
	}
	return out
}

func TestWSSource_DecodesAndTagsEvents(t *testing.T) {
	sub := &fakeSubscriber{notifs: []solana.Notification{
		{Method: "candidateNotification", Result: json.RawMessage(`{"mint":"MintA","liquidity_usd":50000,"observed_at":1000}`)},
		{Method: "candidateNotification", Result: json.RawMessage(`not json`)},
		{Method: "candidateNotification", Result: json.RawMessage(`{"mint":"MintB","observed_at":2000}`)},
	}}

	src := NewWSSource(sub, nil)
	ch, err := src.Subscribe(context.Background())
	require.NoError(t, err)

	events := collect(t, ch, 3)
	require.Len(t, events, 2, "malformed payload is dropped")

	assert.Equal(t, "MintA", events[0].Mint)
	require.NotNil(t, events[0].LiquidityUSD)
	assert.Equal(t, 50000.0, *events[0].LiquidityUSD)
	assert.Equal(t, string(domain.SourcePush), events[0].Source)
	assert.Nil(t, events[1].LiquidityUSD, "absent field stays nil")
	assert.Equal(t, []string{CandidateSubscribeMethod}, sub.methods)
}

func TestWSPriceSource_FiltersInvalidTicks(t *testing.T) {
	sub := &fakeSubscriber{notifs: []solana.Notification{
		{Result: json.RawMessage(`{"mint":"MintA","price_usd":0.5,"observed_at":1}`)},
		{Result: json.RawMessage(`{"mint":"","price_usd":0.5}`)},
		{Result: json.RawMessage(`{"mint":"MintA","price_usd":-1}`)},
	}}

	ticks, err := NewWSPriceSource(sub, nil).SubscribePrices(context.Background())
	require.NoError(t, err)

	var got []PriceTick
	for tick := range ticks {
		got = append(got, tick)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 0.5, got[0].PriceUSD)
}

func TestPollSource_PagesAndAdvancesCursor(t *testing.T) {
	caller := &fakeCaller{
		fails: 1,
		pages: []getCandidatesResult{
			{Events: []*RawEvent{{Mint: "A"}, {Mint: "B"}}, Cursor: "c1"},
			{Events: []*RawEvent{{Mint: "C"}}, Cursor: "c2"},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewPollSource(PollSourceOptions{RPC: caller, Interval: time.Hour, Limit: 2})
	ch, err := src.Subscribe(ctx)
	require.NoError(t, err)

	events := collect(t, ch, 3)
	require.Len(t, events, 3)
	assert.Equal(t, "C", events[2].Mint)
	for _, ev := range events {
		assert.Equal(t, string(domain.SourcePoll), ev.Source)
	}

	caller.mu.Lock()
	defer caller.mu.Unlock()
	assert.Equal(t, []string{"", "c1"}, caller.cursors)
	assert.Equal(t, 3, caller.calls, "one failed attempt retried")
}

func TestMerge_FansIn(t *testing.T) {
	a, err := NewReplaySource(strings.NewReader(`{"mint":"A","observed_at":1}` + "\n"))
	require.NoError(t, err)
	b, err := NewReplaySource(strings.NewReader(`{"mint":"B","observed_at":2}` + "\n" + `{"mint":"C","observed_at":3}`))
	require.NoError(t, err)

	merged, err := Merge(context.Background(), a, b)
	require.NoError(t, err)

	seen := map[string]bool{}
	for ev := range merged {
		seen[ev.Mint] = true
	}
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": true}, seen)
}

type idleSource struct{ ch chan *RawEvent }

func (s idleSource) Subscribe(context.Context) (<-chan *RawEvent, error) { return s.ch, nil }

type failingSource struct{}

func (failingSource) Subscribe(context.Context) (<-chan *RawEvent, error) {
	return nil, errors.New("feed down")
}

func TestMerge_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	merged, err := Merge(ctx, idleSource{ch: make(chan *RawEvent)})
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-merged:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("merged channel not closed after cancel")
	}
}

func TestMerge_SubscribeFailure(t *testing.T) {
	_, err := Merge(context.Background(), idleSource{ch: make(chan *RawEvent)}, failingSource{})
	assert.ErrorContains(t, err, "feed down")
}

func TestMerge_NoSources(t *testing.T) {
	_, err := Merge(context.Background())
	assert.Error(t, err)
}

func TestReplaySource_SortsAndSkipsComments(t *testing.T) {
	input := strings.Join([]string{
		"# recorded 2024-01-01",
		`{"mint":"B","observed_at":200}`,
		"",
		`{"mint":"A","observed_at":100,"lp_lock":{"burned":true}}`,
	}, "\n")

	src, err := NewReplaySource(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 2, src.Len())

	events := src.Events()
	assert.Equal(t, "A", events[0].Mint)
	require.NotNil(t, events[0].LPLock)
	assert.True(t, events[0].LPLock.Burned)
	assert.Equal(t, string(domain.SourceReplay), events[1].Source)
}

func TestReplaySource_BadLine(t *testing.T) {
	_, err := NewReplaySource(strings.NewReader(`{"mint":"A"}` + "\n{oops"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadPriceTicks(t *testing.T) {
	ticks, err := ReadPriceTicks(strings.NewReader(`{"mint":"A","price_usd":2,"observed_at":20}
{"mint":"A","price_usd":1,"observed_at":10}`))
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, 1.0, ticks[0].PriceUSD)

	_, err = ReadPriceTicks(strings.NewReader(`{"mint":"A","price_usd":0}`))
	assert.Error(t, err)
}

func TestPriceBook_LastAndWatch(t *testing.T) {
	book := NewPriceBook()

	_, ok := book.Last("A")
	assert.False(t, ok)

	ch, cancel := book.Watch("A")
	defer cancel()

	book.Update(PriceTick{Mint: "A", PriceUSD: 1, ObservedAt: 10})
	book.Update(PriceTick{Mint: "A", PriceUSD: 2, ObservedAt: 20})
	book.Update(PriceTick{Mint: "A", PriceUSD: 0.5, ObservedAt: 5}) // stale
	book.Update(PriceTick{Mint: "B", PriceUSD: 9, ObservedAt: 30})

	last, ok := book.Last("A")
	require.True(t, ok)
	assert.Equal(t, 2.0, last.PriceUSD)

	select {
	case tick := <-ch:
		assert.Equal(t, 2.0, tick.PriceUSD, "watcher sees the latest tick")
	default:
		t.Fatal("expected a pending tick")
	}

	cancel()
	book.Update(PriceTick{Mint: "A", PriceUSD: 3, ObservedAt: 40})
	select {
	case <-ch:
		t.Fatal("cancelled watcher must not receive")
	default:
	}
}
