// Package dispatch implements the periodic global STT work queue drain: a
// single long-running task that batches queued work items, calls the STT
// batcher, and routes results to each owning session's delivery
// reassembler.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wawa9149/speech-gateway/internal/delivery"
	"github.com/wawa9149/speech-gateway/internal/observability/metrics"
	"github.com/wawa9149/speech-gateway/internal/stt"
)

// Item is one queued STT work item, tagged with the sequence its owning
// session assigned at enqueue time.
type Item struct {
	stt.WorkItem
	Sequence uint64
}

// Router hands a released/attempted result to the session that owns it.
// The session manager supplies this so the dispatcher never holds session
// state directly.
type Router func(sessionID string, rec delivery.Record)

// Dispatcher drains a global, multi-producer single-consumer queue in
// batches on a tick, and exposes a per-session flush for session teardown.
type Dispatcher struct {
	mu    sync.Mutex
	queue []Item

	batcher      stt.Batcher
	provider     string
	batchSize    int
	tickInterval time.Duration
	route        Router
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// Config holds the dispatcher's tick cadence and batch size.
type Config struct {
	BatchSize    int
	TickInterval time.Duration
	Provider     string // label for STT metrics, e.g. "http" or "google"
}

// New constructs a Dispatcher. route is called once per returned result,
// possibly from multiple goroutines concurrently dispatching different
// batches — Router implementations must be safe for that.
func New(batcher stt.Batcher, cfg Config, route Router, m *metrics.Metrics, log zerolog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.Provider == "" {
		cfg.Provider = "http"
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Dispatcher{
		batcher:      batcher,
		provider:     cfg.Provider,
		batchSize:    cfg.BatchSize,
		tickInterval: cfg.TickInterval,
		route:        route,
		metrics:      m,
		log:          log.With().Str("component", "dispatcher").Logger(),
	}
}

// Enqueue appends one work item to the global queue.
func (d *Dispatcher) Enqueue(item Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, item)
}

// QueueDepth reports the current global queue length, for metrics.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run drives the dispatch tick loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	batch := d.splice(d.batchSize)
	if len(batch) == 0 {
		return
	}
	d.dispatchBatch(ctx, batch)
}

// FlushSession repeatedly pulls all queued items belonging to sessionID,
// sorted ascending by sequence, into batchSize-sized batches, until none
// remain.
func (d *Dispatcher) FlushSession(ctx context.Context, sessionID string) {
	for {
		batch := d.spliceSession(sessionID, d.batchSize)
		if len(batch) == 0 {
			return
		}
		d.dispatchBatch(ctx, batch)
	}
}

func (d *Dispatcher) splice(n int) []Item {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return nil
	}
	if n > len(d.queue) {
		n = len(d.queue)
	}
	batch := d.queue[:n]
	d.queue = d.queue[n:]

	sort.Slice(batch, func(i, j int) bool { return batch[i].Sequence < batch[j].Sequence })
	return batch
}

func (d *Dispatcher) spliceSession(sessionID string, n int) []Item {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Item
	rest := d.queue[:0:0]
	for _, it := range d.queue {
		if it.SessionID == sessionID && len(out) < n {
			out = append(out, it)
		} else {
			rest = append(rest, it)
		}
	}
	d.queue = rest

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// dispatchBatch calls the batcher once and routes every returned result.
// On batch failure the whole batch's sequences are dropped — the
// dispatcher never retries, since a retry would permute sequence ordering.
func (d *Dispatcher) dispatchBatch(ctx context.Context, batch []Item) {
	workItems := make([]stt.WorkItem, len(batch))
	byID := make(map[string]Item, len(batch))
	for i, it := range batch {
		workItems[i] = it.WorkItem
		byID[it.WorkItem.UtteranceID()] = it
	}

	start := time.Now()
	results, err := d.batcher.Batch(ctx, workItems)
	d.metrics.RecordSTTBatch(d.provider, err, time.Since(start).Seconds(), len(workItems))
	if err != nil {
		d.log.Warn().Err(err).Int("batchSize", len(batch)).Msg("stt batch failed, dropping sequences")
		return
	}

	for _, res := range results {
		item, ok := byID[res.ID]
		if !ok {
			continue
		}
		d.route(item.SessionID, delivery.Record{
			Sequence:   item.Sequence,
			Text:       res.Text,
			Confidence: res.Confidence,
			Start:      item.Start,
			End:        item.End,
			IsFinal:    item.IsFinal,
		})
	}
}
