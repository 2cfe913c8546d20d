package processor

import (
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Drop reasons reported to the Recorder.
const (
	DropInvalid     = "invalid"
	DropFiltered    = "filtered"
	DropRateLimited = "rate_limited"
	DropDuplicate   = "duplicate"
)

// Recorder receives pipeline events. pkg/metrics provides a Prometheus
// implementation.
type Recorder interface {
	Dropped(t notifications.Type, reason string)
	Completed(t notifications.Type, status notifications.Status, elapsed time.Duration)
	BatchFlushed(t notifications.Type, size int)
	Snapshot(s Stats)
}

type nopRecorder struct{}

func (nopRecorder) Dropped(notifications.Type, string) {}
func (nopRecorder) Completed(notifications.Type, notifications.Status, time.Duration) {}
func (nopRecorder) BatchFlushed(notifications.Type, int) {}
func (nopRecorder) Snapshot(Stats) {}

// Stats is a point-in-time view of the processor counters.
type Stats struct {
	Processed      int64 `json:"processed"`
	Batched        int64 `json:"batched"`
	Deduplicated   int64 `json:"deduplicated"`
	DedupErrors    int64 `json:"dedup_errors"`
	RateLimited    int64 `json:"rate_limited"`
	Filtered       int64 `json:"filtered"`
	Deferred       int64 `json:"deferred"`
	Failed         int64 `json:"failed"`
	Sent           int64 `json:"sent"`
	Cancelled      int64 `json:"cancelled"`
	BatchesCreated int64 `json:"batches_created"`
	BatchesSent    int64 `json:"batches_sent"`

	QueueDepth     int     `json:"queue_depth"`
	QueueCapacity  int     `json:"queue_capacity"`
	OpenBatches    int     `json:"open_batches"`
	TrackedUsers   int     `json:"tracked_users"`
	Paused         bool    `json:"paused"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	ProcessingRate float64 `json:"processing_rate"`

	Channels map[string]map[string]int64 `json:"channels,omitempty"`
}

type counters struct {
	processed      atomic.Int64
	batched        atomic.Int64
	deduplicated   atomic.Int64
	dedupErrors    atomic.Int64
	rateLimited    atomic.Int64
	filtered       atomic.Int64
	deferred       atomic.Int64
	failed         atomic.Int64
	sent           atomic.Int64
	cancelled      atomic.Int64
	batchesCreated atomic.Int64
	batchesSent    atomic.Int64
}

func (c *counters) countStatus(s notifications.Status) {
	switch s {
	case notifications.StatusSent:
		c.sent.Add(1)
	case notifications.StatusFailed:
		c.failed.Add(1)
	case notifications.StatusCancelled:
		c.cancelled.Add(1)
	}
}

// Stats returns the current counters.
func (p *Processor) Stats() Stats {
	uptime := p.now().Sub(p.startedAt)
	s := Stats{
		Processed:      p.stats.processed.Load(),
		Batched:        p.stats.batched.Load(),
		Deduplicated:   p.stats.deduplicated.Load(),
		DedupErrors:    p.stats.dedupErrors.Load(),
		RateLimited:    p.stats.rateLimited.Load(),
		Filtered:       p.stats.filtered.Load(),
		Deferred:       p.stats.deferred.Load(),
		Failed:         p.stats.failed.Load(),
		Sent:           p.stats.sent.Load(),
		Cancelled:      p.stats.cancelled.Load(),
		BatchesCreated: p.stats.batchesCreated.Load(),
		BatchesSent:    p.stats.batchesSent.Load(),
		QueueDepth:     len(p.queue),
		QueueCapacity:  cap(p.queue),
		OpenBatches:    p.batcher.Open(),
		TrackedUsers:   p.limiter.Len(),
		Paused:         p.Paused(),
		UptimeSeconds:  uptime.Seconds(),
		Channels:       p.dispatcher.Stats(),
	}
	if uptime > 0 {
		s.ProcessingRate = float64(s.Processed) / uptime.Seconds()
	}
	return s
}
