package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a conversion job. Jobs only ever move
// forward; Failed is terminal and reachable from any non-terminal status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusReordering Status = "reordering"
	StatusEnhancing  Status = "enhancing"
	StatusPackaging  Status = "packaging"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusReordering,
	StatusEnhancing,
	StatusPackaging,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// statusRank orders statuses for the forward-only transition check.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusExtracting: 1,
	StatusReordering: 2,
	StatusEnhancing:  3,
	StatusPackaging:  4,
	StatusCompleted:  5,
	StatusFailed:     5,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a job in this status can still change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsProcessing reports whether the status reflects an in-flight stage.
func (s Status) IsProcessing() bool {
	switch s {
	case StatusExtracting, StatusReordering, StatusEnhancing, StatusPackaging:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next honors the
// forward-only lifecycle.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	fromRank, ok := statusRank[s]
	if !ok {
		return false
	}
	toRank, ok := statusRank[next]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Job represents one conversion request persisted in SQLite.
type Job struct {
	ID              int64
	SourcePath      string
	OutputDir       string
	OutputPath      string
	DeviceProfile   string
	Status          Status
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	PageCount       int
	WorkDir         string
	DiagnosticLog   string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetProgress updates the three progress fields together.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job failed with a terminal message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.ProgressStage = string(StatusFailed)
}

// ErrorRecord is one structured failure attached to a job. Records are
// append-only; the store never updates or deletes them.
type ErrorRecord struct {
	ID        int64
	JobID     int64
	Kind      string
	Stage     string
	Message   string
	Context   map[string]string
	CreatedAt time.Time
}

// HealthSummary aggregates queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}
