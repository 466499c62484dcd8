package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"rebind/internal/cbz"
	"rebind/internal/config"
	"rebind/internal/diag"
	"rebind/internal/enhance"
	"rebind/internal/logging"
	"rebind/internal/notifications"
	"rebind/internal/profiles"
	"rebind/internal/queue"
	"rebind/internal/services"
	"rebind/internal/stage"
)

// Orchestrator owns conversion job execution. Each submitted job runs on its
// own worker goroutine; the orchestrator shares nothing between jobs beyond
// the read-only configuration, profile catalog and the queue store.
type Orchestrator struct {
	cfg      *config.Config
	store    *queue.Store
	catalog  *profiles.Catalog
	enhancer enhance.Enhancer
	notifier notifications.Service
	diags    *diag.Service
	logger   *slog.Logger

	// pkgOpts is forwarded to the packager; tests use it to inject write
	// corruption and exercise the retry path end to end.
	pkgOpts []cbz.Option

	wg sync.WaitGroup
}

// Option configures an orchestrator.
type Option func(*Orchestrator)

// WithPackagerOptions forwards options to the archive packager.
func WithPackagerOptions(opts ...cbz.Option) Option {
	return func(o *Orchestrator) { o.pkgOpts = opts }
}

// New assembles an orchestrator from its collaborators. notifier and diags
// may be nil; logger defaults to a noop.
func New(cfg *config.Config, store *queue.Store, catalog *profiles.Catalog, enhancer enhance.Enhancer, notifier notifications.Service, diags *diag.Service, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if diags == nil {
		diags = diag.New()
	}
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		enhancer: enhancer,
		notifier: notifier,
		diags:    diags,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the request, persists a pending job and starts its
// worker. The returned handle exposes the event stream and cancellation.
func (o *Orchestrator) Submit(ctx context.Context, sourcePath, outputDir, profileName string) (*JobHandle, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("output directory required")
	}
	profile, err := o.catalog.Get(profileName)
	if err != nil {
		return nil, err
	}

	job, err := o.store.NewJob(ctx, sourcePath, outputDir, profile.Name)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &JobHandle{
		ID:     job.ID,
		events: make(chan Event, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.wg.Add(1)
	go o.runJob(jobCtx, job, profile, handle)
	return handle, nil
}

// Wait blocks until every submitted job has fully finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) runJob(ctx context.Context, job *queue.Job, profile profiles.Profile, handle *JobHandle) {
	defer o.wg.Done()
	defer close(handle.done)
	defer close(handle.events)

	logger := o.logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("source", job.SourcePath),
	)
	ctx = services.WithJobID(ctx, job.ID)

	sc := &stage.Context{Job: job, Profile: profile}
	tracker := &progressTracker{}

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			if sc.WorkDir == "" {
				return
			}
			if err := os.RemoveAll(sc.WorkDir); err != nil {
				logger.Warn("failed to remove working directory",
					logging.String("work_dir", sc.WorkDir), logging.Error(err))
			}
		})
	}
	defer cleanup()

	defer func() {
		if r := recover(); r != nil {
			cleanup()
			o.failJob(ctx, job, handle, tracker, "worker",
				services.Wrap(services.ErrUncaught, "worker", "run job", fmt.Sprint(r), nil),
				diag.ClassWorker, logger)
		}
	}()

	if o.notifier != nil {
		_ = o.notifier.NotifyConversionStarted(ctx, job.SourcePath)
	}

	for _, ps := range o.pipeline() {
		if err := ctx.Err(); err != nil {
			cleanup()
			o.failJob(ctx, job, handle, tracker, string(ps.status),
				services.Wrap(services.ErrCancelled, string(ps.status), "run stage", "", err),
				diag.ClassConversion, logger)
			return
		}

		if err := o.enterStage(ctx, job, ps, handle, tracker, logger); err != nil {
			cleanup()
			o.failJob(ctx, job, handle, tracker, string(ps.status), err, diag.ClassWorker, logger)
			return
		}

		err := ps.handler.Execute(ctx, sc, func(fraction float64) {
			o.publishProgress(ctx, job, ps, handle, tracker, fraction)
		})
		if err != nil {
			cleanup()
			o.failJob(ctx, job, handle, tracker, string(ps.status), err, diag.ClassConversion, logger)
			return
		}
		o.publishProgress(ctx, job, ps, handle, tracker, 1)
	}

	cleanup()

	job.Status = queue.StatusCompleted
	job.SetProgress(string(queue.StatusCompleted), "conversion complete", 100)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		logger.Error("failed to persist completion", logging.Error(err))
	}
	handle.events <- Event{Type: EventCompleted, JobID: job.ID, Status: queue.StatusCompleted, Percent: 100, OutputPath: job.OutputPath}
	logger.Info("conversion complete",
		logging.String("output", job.OutputPath),
		logging.Int("pages", job.PageCount))
	if o.notifier != nil {
		_ = o.notifier.NotifyConversionCompleted(ctx, job.SourcePath, job.OutputPath, job.PageCount)
	}
}

func (o *Orchestrator) enterStage(ctx context.Context, job *queue.Job, ps pipelineStage, handle *JobHandle, tracker *progressTracker, logger *slog.Logger) error {
	job.Status = ps.status
	job.SetProgress(string(ps.status), "", float64(tracker.clamp(ps.base)))
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return services.Wrap(services.ErrUncaught, string(ps.status), "persist stage transition", "", err)
	}
	handle.events <- Event{Type: EventStatusChange, JobID: job.ID, Status: ps.status, Percent: tracker.clamp(ps.base)}
	logger.Info("stage started", logging.String(logging.FieldStage, string(ps.status)))
	return nil
}

// publishProgress forwards intra-stage progress. Progress events are dropped
// rather than blocking when the observer lags; persisted progress always
// advances.
func (o *Orchestrator) publishProgress(ctx context.Context, job *queue.Job, ps pipelineStage, handle *JobHandle, tracker *progressTracker, fraction float64) {
	percent := tracker.clamp(ps.percentAt(fraction))
	job.SetProgress(string(ps.status), "", float64(percent))
	_ = o.store.UpdateJob(ctx, job)

	select {
	case handle.events <- Event{Type: EventProgress, JobID: job.ID, Status: ps.status, Percent: percent}:
	default:
	}
}

// failJob records the single terminal error record, writes the diagnostic
// log, persists the failed status and emits the terminal event.
func (o *Orchestrator) failJob(ctx context.Context, job *queue.Job, handle *JobHandle, tracker *progressTracker, stageName string, cause error, class diag.FailureClass, logger *slog.Logger) {
	// The job context may already be cancelled; terminal bookkeeping must
	// still reach the store.
	ctx = context.WithoutCancel(ctx)
	kind := services.Classify(cause)

	record := &queue.ErrorRecord{
		JobID:   job.ID,
		Kind:    string(kind),
		Stage:   stageName,
		Message: cause.Error(),
		Context: services.Fields(cause),
	}
	if err := o.store.AppendErrorRecord(ctx, record); err != nil {
		logger.Error("failed to append error record", logging.Error(err))
	}

	logPath, diagErr := o.diags.Write(diag.Report{
		Class:      class,
		JobID:      job.ID,
		SourcePath: job.SourcePath,
		Stage:      stageName,
		Kind:       kind,
		Message:    cause.Error(),
		Cause:      errors.Unwrap(cause),
		Context:    record.Context,
	})
	if diagErr != nil {
		logger.Warn("failed to write diagnostic log", logging.Error(diagErr))
	} else {
		job.DiagnosticLog = logPath
	}

	job.SetFailed(cause.Error())
	if err := o.store.UpdateJob(ctx, job); err != nil {
		logger.Error("failed to persist failure", logging.Error(err))
	}

	logger.Error("conversion failed",
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Error(cause))

	handle.events <- Event{Type: EventFailed, JobID: job.ID, Status: queue.StatusFailed, Percent: tracker.clamp(0), Record: record}
	if o.notifier != nil {
		_ = o.notifier.NotifyConversionFailed(ctx, job.SourcePath, cause.Error())
	}
}
