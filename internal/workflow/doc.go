// Package workflow runs conversion jobs. Each submitted job gets its own
// worker goroutine that drives the stage pipeline (extract, reorder,
// enhance, package) as a strictly forward state machine, publishes ordered
// progress events to the caller, honors cooperative cancellation and removes
// the job's temporary subtree exactly once on any exit path.
package workflow
