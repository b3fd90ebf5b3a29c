package strategy

import (
	"testing"

	"graduation-engine/internal/domain"
)

// walk feeds prices one second apart and stops at the first exit.
func walk(rules Set, entry float64, openedAt int64, prices []float64) (string, State, bool) {
	s := State{EntryPrice: entry, PeakPrice: entry, Price: entry, OpenedAt: openedAt, Now: openedAt}
	for i, p := range prices {
		s = Observe(s, p, openedAt+int64(i+1)*1000)
		if reason, ok := rules.Check(s); ok {
			return reason, s, true
		}
	}
	return "", s, false
}

func TestDefaultSet_Exits(t *testing.T) {
	rules := DefaultSet()
	const openedAt = int64(1_000_000)

	tests := []struct {
		name      string
		prices    []float64
		wantFired bool
		want      string
		wantPrice float64
	}{
		{"stop loss", []float64{1.05, 0.9, 0.75}, true, domain.ExitReasonStopLoss, 0.75},
		{"trailing stop from peak", []float64{1.2, 1.5, 1.3, 1.2}, true, domain.ExitReasonTrailingStop, 1.2},
		{"take profit", []float64{1.3, 1.7, 2.0}, true, domain.ExitReasonTakeProfit, 2.0},
		{"no exit inside path", []float64{1.01, 0.99, 1.02}, false, "", 1.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, at, fired := walk(rules, 1.0, openedAt, tt.prices)
			if fired != tt.wantFired {
				t.Fatalf("fired = %v, want %v", fired, tt.wantFired)
			}
			if reason != tt.want {
				t.Errorf("reason = %q, want %q", reason, tt.want)
			}
			if at.Price != tt.wantPrice {
				t.Errorf("price = %v, want %v", at.Price, tt.wantPrice)
			}
		})
	}
}

func TestMaxHold(t *testing.T) {
	rules := DefaultSet()
	const openedAt = int64(0)
	fourHours := int64(4 * 60 * 60 * 1000)

	s := State{EntryPrice: 1, PeakPrice: 1, Price: 1, OpenedAt: openedAt}
	if _, fired := rules.Check(Observe(s, 1.01, fourHours-1)); fired {
		t.Fatal("exit fired before max hold elapsed")
	}
	at := Observe(s, 1.02, fourHours)
	reason, fired := rules.Check(at)
	if !fired || reason != domain.ExitReasonMaxHold {
		t.Fatalf("expected MAX_HOLD, got %q fired=%v", reason, fired)
	}
	if at.Now != fourHours {
		t.Errorf("exit at %d, want %d", at.Now, fourHours)
	}
}

func TestTrailingStop_NotArmedBelowEntry(t *testing.T) {
	r := TrailingStop{TrailPct: 0.2}
	if _, fired := r.Check(State{EntryPrice: 1, PeakPrice: 1, Price: 0.79}); fired {
		t.Error("trailing stop must not fire before the peak rises above entry")
	}
	if _, fired := r.Check(State{EntryPrice: 1, PeakPrice: 1.5, Price: 1.2}); !fired {
		t.Error("expected trailing stop at peak*(1-trail)")
	}
}

func TestSet_OrderStopLossFirst(t *testing.T) {
	rules := DefaultSet()
	// Price below stop at max hold: stop loss wins.
	s := State{EntryPrice: 1, PeakPrice: 1, Price: 0.5, OpenedAt: 0, Now: 10 * 60 * 60 * 1000}
	reason, fired := rules.Check(s)
	if !fired || reason != domain.ExitReasonStopLoss {
		t.Errorf("expected STOP_LOSS, got %q", reason)
	}
}

func TestStateFor(t *testing.T) {
	p := &domain.Position{EntryPrice: 2, PeakPrice: 0, LastPrice: 2.5, OpenedAt: 100}
	s := StateFor(p, 200)
	if s.PeakPrice != 2 {
		t.Errorf("peak = %v, want entry price 2", s.PeakPrice)
	}
	s = Observe(s, 3, 300)
	if s.PeakPrice != 3 || s.Price != 3 || s.Now != 300 {
		t.Errorf("unexpected state after observe: %+v", s)
	}
}

func TestObserve_PeakOnlyRises(t *testing.T) {
	s := State{EntryPrice: 1, PeakPrice: 1.4, Price: 1.4}
	s = Observe(s, 1.1, 50)
	if s.PeakPrice != 1.4 || s.Price != 1.1 {
		t.Errorf("unexpected state after lower price: %+v", s)
	}
}

func TestRuleIDs(t *testing.T) {
	ids := map[string]bool{}
	for _, r := range DefaultSet() {
		if ids[r.ID()] {
			t.Errorf("duplicate rule id %s", r.ID())
		}
		ids[r.ID()] = true
	}
	if len(ids) != 4 {
		t.Errorf("expected 4 rules, got %d", len(ids))
	}
}
