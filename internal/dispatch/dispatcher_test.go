package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wawa9149/speech-gateway/internal/observability/metrics"

	"github.com/wawa9149/speech-gateway/internal/delivery"
	"github.com/wawa9149/speech-gateway/internal/stt"
)

type fakeBatcher struct {
	mu       sync.Mutex
	fail     bool
	drop     map[string]bool
	seenSort []string
}

func (f *fakeBatcher) Batch(ctx context.Context, items []stt.WorkItem) ([]stt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	var out []stt.Result
	for _, it := range items {
		f.seenSort = append(f.seenSort, it.UtteranceID())
		if f.drop != nil && f.drop[it.UtteranceID()] {
			continue
		}
		out = append(out, stt.Result{ID: it.UtteranceID(), Text: "text:" + it.UtteranceID()})
	}
	return out, nil
}

func TestDispatcher_FlushSessionDeliversInSequenceOrder(t *testing.T) {
	b := &fakeBatcher{}
	var got []delivery.Record
	route := func(sessionID string, rec delivery.Record) { got = append(got, rec) }

	d := New(b, Config{BatchSize: 16}, route, metrics.DefaultMetrics, zerolog.Nop())

	d.Enqueue(Item{WorkItem: stt.WorkItem{SessionID: "s1", Start: 10, End: 20}, Sequence: 1})
	d.Enqueue(Item{WorkItem: stt.WorkItem{SessionID: "s1", Start: 0, End: 10}, Sequence: 0})
	d.Enqueue(Item{WorkItem: stt.WorkItem{SessionID: "s2", Start: 0, End: 5}, Sequence: 0})

	d.FlushSession(t.Context(), "s1")

	if len(got) != 2 {
		t.Fatalf("expected 2 results for s1, got %d: %+v", len(got), got)
	}
	if got[0].Sequence != 0 || got[1].Sequence != 1 {
		t.Errorf("expected sorted sequence order [0 1], got [%d %d]", got[0].Sequence, got[1].Sequence)
	}
	if d.QueueDepth() != 1 {
		t.Errorf("expected s2's item to remain queued, got depth %d", d.QueueDepth())
	}
}

func TestDispatcher_BatchFailureDropsSequencesWithoutRetry(t *testing.T) {
	b := &fakeBatcher{fail: true}
	var got []delivery.Record
	route := func(sessionID string, rec delivery.Record) { got = append(got, rec) }

	d := New(b, Config{BatchSize: 16}, route, metrics.DefaultMetrics, zerolog.Nop())
	d.Enqueue(Item{WorkItem: stt.WorkItem{SessionID: "s1", Start: 0, End: 10}, Sequence: 0})

	d.FlushSession(t.Context(), "s1")

	if len(got) != 0 {
		t.Errorf("expected no deliveries on batch failure, got %+v", got)
	}
	if d.QueueDepth() != 0 {
		t.Errorf("expected the failed batch's items consumed (not retried), got depth %d", d.QueueDepth())
	}
}

func TestDispatcher_MissingResultIsHoleRouterNeverCalledForIt(t *testing.T) {
	b := &fakeBatcher{drop: map[string]bool{"s1_0-10": true}}
	var got []delivery.Record
	route := func(sessionID string, rec delivery.Record) { got = append(got, rec) }

	d := New(b, Config{BatchSize: 16}, route, metrics.DefaultMetrics, zerolog.Nop())
	d.Enqueue(Item{WorkItem: stt.WorkItem{SessionID: "s1", Start: 0, End: 10}, Sequence: 0})
	d.Enqueue(Item{WorkItem: stt.WorkItem{SessionID: "s1", Start: 10, End: 20}, Sequence: 1})

	d.FlushSession(t.Context(), "s1")

	if len(got) != 1 || got[0].Sequence != 1 {
		t.Fatalf("expected only sequence 1 delivered, got %+v", got)
	}
}
