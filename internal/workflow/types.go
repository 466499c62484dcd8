package workflow

import (
	"context"
	"sync"

	"rebind/internal/queue"
)

// EventType discriminates observer events.
type EventType string

const (
	// EventStatusChange fires when a job enters a new stage.
	EventStatusChange EventType = "status_change"
	// EventProgress carries the job's overall percentage.
	EventProgress EventType = "progress"
	// EventCompleted fires once with the final output path.
	EventCompleted EventType = "completed"
	// EventFailed fires once with the terminal error record.
	EventFailed EventType = "failed"
)

// Event is one observer notification. Delivery order matches emission order
// for a single job; delivery is asynchronous relative to the worker.
type Event struct {
	Type       EventType
	JobID      int64
	Status     queue.Status
	Percent    int
	OutputPath string
	Record     *queue.ErrorRecord
}

// eventBuffer sizes the per-job event channel. Progress events are dropped
// when the observer lags; lifecycle events always block until delivered.
const eventBuffer = 128

// JobHandle is the caller's view of a running job.
type JobHandle struct {
	ID int64

	events chan Event
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Events returns the ordered event stream. The channel closes after the
// terminal event is delivered.
func (h *JobHandle) Events() <-chan Event {
	return h.events
}

// Cancel requests cooperative cancellation. Safe to call multiple times and
// after completion.
func (h *JobHandle) Cancel() {
	h.once.Do(h.cancel)
}

// Done closes when the worker has fully finished, including cleanup.
func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// stage weights per the conversion progress model. Enhancement dominates
// because the external engine does nearly all the work.
const (
	weightExtract = 15
	weightReorder = 5
	weightEnhance = 60
	weightPackage = 20
)

// progressTracker publishes monotonically non-decreasing percentages.
type progressTracker struct {
	mu   sync.Mutex
	last int
}

// clamp returns percent bumped to at least the previous value, updating the
// high-water mark.
func (p *progressTracker) clamp(percent int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent < p.last {
		return p.last
	}
	if percent > 100 {
		percent = 100
	}
	p.last = percent
	return percent
}
