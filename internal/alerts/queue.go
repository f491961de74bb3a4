// Package alerts owns the ingestion queue and the notification state
// machine that decide what the operator sees and when. All mutation of
// the dedup cache and the pending queue goes through Enqueue, Promote
// and the presenter's dismiss path; there are no external writers.
package alerts

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"alert-console/internal/logging"
	"alert-console/internal/models"
)

// IngestQueue deduplicates and queues inbound alert events. The pending
// queue is bounded with a drop-oldest policy; the dedup cache is bounded
// and cleared wholesale (not LRU-trimmed) when it exceeds capacity, and
// again by a periodic sweep so a quiet console cannot grow it forever.
type IngestQueue struct {
	logger *logging.Logger
	clk    clock.Clock

	maxQueue int
	dedupCap int

	mu      sync.Mutex
	seen    map[string]bool
	pending []models.QueueEntry
	sweep   *clock.Ticker
	stop    chan struct{}
}

// NewIngestQueue builds a queue with the given pending cap and dedup
// cache cap. Zero values fall back to the defaults (10 and 100).
func NewIngestQueue(maxQueue, dedupCap int, clk clock.Clock, logger *logging.Logger) *IngestQueue {
	if maxQueue <= 0 {
		maxQueue = 10
	}
	if dedupCap <= 0 {
		dedupCap = 100
	}
	if clk == nil {
		clk = clock.New()
	}
	return &IngestQueue{
		logger:   logger,
		clk:      clk,
		maxQueue: maxQueue,
		dedupCap: dedupCap,
		seen:     make(map[string]bool),
	}
}

// Enqueue appends a new alert unless its id was already seen in the
// current dedup epoch. It reports whether the alert was queued.
func (q *IngestQueue) Enqueue(alert models.AlertEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[alert.ID] {
		q.logger.Debugf("Duplicate alert %s ignored", alert.ID)
		return false
	}
	if len(q.seen) >= q.dedupCap {
		// Wholesale clear starts a new dedup epoch; duplicates of
		// pre-clear alerts may slip through, which is the accepted
		// trade against unbounded growth.
		q.seen = make(map[string]bool)
	}
	q.seen[alert.ID] = true

	q.pending = append(q.pending, models.QueueEntry{Alert: alert, FirstSeen: q.clk.Now()})
	if over := len(q.pending) - q.maxQueue; over > 0 {
		q.logger.Warnf("Pending queue over capacity, dropping %d oldest alert(s)", over)
		q.pending = q.pending[over:]
	}
	return true
}

// Promote removes and returns the oldest pending entry. Display order is
// strict FIFO; callers must only promote while nothing is displayed.
func (q *IngestQueue) Promote() (models.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return models.QueueEntry{}, false
	}
	entry := q.pending[0]
	q.pending = q.pending[1:]
	return entry, true
}

// Len reports the number of queued-but-undisplayed alerts.
func (q *IngestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// StartSweep launches the periodic wholesale clear of the dedup cache.
func (q *IngestQueue) StartSweep(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	q.mu.Lock()
	if q.sweep != nil {
		q.mu.Unlock()
		return
	}
	ticker := q.clk.Ticker(interval)
	stop := make(chan struct{})
	q.sweep = ticker
	q.stop = stop
	q.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				q.mu.Lock()
				cleared := len(q.seen)
				q.seen = make(map[string]bool)
				q.mu.Unlock()
				q.logger.Debugf("Dedup sweep cleared %d id(s)", cleared)
			}
		}
	}()
}

// StopSweep cancels the periodic sweep. Safe to call when not running.
func (q *IngestQueue) StopSweep() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sweep != nil {
		q.sweep.Stop()
		close(q.stop)
		q.sweep = nil
		q.stop = nil
	}
}
