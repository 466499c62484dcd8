// Package stage defines the contract between the conversion orchestrator
// and the pipeline stages it sequences.
package stage

import (
	"context"

	"rebind/internal/ebook"
	"rebind/internal/profiles"
	"rebind/internal/queue"
)

// Context carries the mutable per-job state handed from stage to stage. It
// is owned by a single worker goroutine for the lifetime of one job.
type Context struct {
	Job     *queue.Job
	Profile profiles.Profile

	// Set is populated by the extracting stage.
	Set *ebook.WorkingSet

	// WorkDir is the job's exclusively owned temporary subtree. Empty until
	// the job has pages to materialize; removed exactly once on any exit.
	WorkDir     string
	PagesDir    string
	EnhancedDir string

	// PageNames lists the canonical page file names in resolved order.
	PageNames []string

	// OutputPath is set by the packaging stage on success.
	OutputPath string
}

// Handler executes one pipeline stage. Execute reports intra-stage progress
// through done as a fraction in [0,1]; handlers that cannot estimate
// sub-progress simply never call it.
type Handler interface {
	Name() string
	Execute(ctx context.Context, sc *Context, done func(fraction float64)) error
}
