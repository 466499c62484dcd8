package workflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"rebind/internal/cbz"
	"rebind/internal/config"
	"rebind/internal/ebook"
	"rebind/internal/enhance"
	"rebind/internal/extract"
	"rebind/internal/pageorder"
	"rebind/internal/queue"
	"rebind/internal/stage"
)

// readStage loads the source container into memory. It runs before any
// temporary directory exists, so an empty or malformed archive fails without
// touching the temp root.
type readStage struct{}

func (readStage) Name() string { return "extracting" }

func (readStage) Execute(ctx context.Context, sc *stage.Context, done func(float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ws, err := ebook.Read(sc.Job.SourcePath)
	if err != nil {
		return err
	}
	sc.Set = ws
	sc.Job.PageCount = ws.Len()
	return nil
}

// reorderStage resolves the authoritative page order and materializes the
// canonical numbered directory inside the job's working subtree.
type reorderStage struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (reorderStage) Name() string { return "reordering" }

func (s reorderStage) Execute(ctx context.Context, sc *stage.Context, done func(float64)) error {
	resolver := pageorder.New(s.cfg.Ordering.ConflictThreshold, s.logger)
	if err := resolver.Resolve(sc.Set); err != nil {
		return err
	}
	if done != nil {
		done(0.5)
	}

	sc.WorkDir = filepath.Join(s.cfg.Paths.TempRoot, "job-"+uuid.NewString())
	sc.PagesDir = filepath.Join(sc.WorkDir, "pages")
	sc.EnhancedDir = filepath.Join(sc.WorkDir, "enhanced")
	sc.Job.WorkDir = sc.WorkDir

	names, err := extract.New(s.logger).Materialize(ctx, sc.Set, sc.PagesDir)
	if err != nil {
		return err
	}
	sc.PageNames = names
	return nil
}

// enhanceStage hands the materialized pages to the external engine.
type enhanceStage struct {
	enhancer enhance.Enhancer
}

func (enhanceStage) Name() string { return "enhancing" }

func (s enhanceStage) Execute(ctx context.Context, sc *stage.Context, done func(float64)) error {
	return s.enhancer.Enhance(ctx, sc.PagesDir, sc.EnhancedDir, sc.Profile, func(p enhance.Progress) {
		if done != nil && p.Total > 0 {
			done(float64(p.Done) / float64(p.Total))
		}
	})
}

// packageStage builds and verifies the output CBZ.
type packageStage struct {
	cfg    *config.Config
	opts   []cbz.Option
	logger *slog.Logger
}

func (packageStage) Name() string { return "packaging" }

func (s packageStage) Execute(ctx context.Context, sc *stage.Context, done func(float64)) error {
	outputPath := filepath.Join(sc.Job.OutputDir, cbz.OutputName(sc.Job.SourcePath))
	backoff := time.Duration(s.cfg.Packaging.RetryBackoffMS) * time.Millisecond
	packager := cbz.New(s.cfg.Packaging.RetryAttempts, backoff, s.logger, s.opts...)
	if err := packager.Package(ctx, sc.EnhancedDir, enhancedNames(sc), outputPath); err != nil {
		return err
	}
	sc.OutputPath = outputPath
	sc.Job.OutputPath = outputPath
	return nil
}

// enhancedNames maps the canonical page names onto the engine's outputs,
// which keep the stem but may change the image extension.
func enhancedNames(sc *stage.Context) []string {
	entries, err := filepath.Glob(filepath.Join(sc.EnhancedDir, "*"))
	if err != nil || len(entries) == 0 {
		return sc.PageNames
	}
	byStem := make(map[string]string, len(entries))
	for _, entry := range entries {
		base := filepath.Base(entry)
		stem := base[:len(base)-len(filepath.Ext(base))]
		byStem[stem] = base
	}
	names := make([]string, len(sc.PageNames))
	for i, name := range sc.PageNames {
		stem := name[:len(name)-len(filepath.Ext(name))]
		if mapped, ok := byStem[stem]; ok {
			names[i] = mapped
			continue
		}
		names[i] = name
	}
	return names
}

// pipeline returns the ordered stage list with cumulative progress spans.
func (o *Orchestrator) pipeline() []pipelineStage {
	return []pipelineStage{
		{handler: readStage{}, status: queue.StatusExtracting, base: 0, weight: weightExtract},
		{handler: reorderStage{cfg: o.cfg, logger: o.logger}, status: queue.StatusReordering, base: weightExtract, weight: weightReorder},
		{handler: enhanceStage{enhancer: o.enhancer}, status: queue.StatusEnhancing, base: weightExtract + weightReorder, weight: weightEnhance},
		{handler: packageStage{cfg: o.cfg, opts: o.pkgOpts, logger: o.logger}, status: queue.StatusPackaging, base: weightExtract + weightReorder + weightEnhance, weight: weightPackage},
	}
}

type pipelineStage struct {
	handler stage.Handler
	status  queue.Status
	base    int
	weight  int
}

func (p pipelineStage) percentAt(fraction float64) int {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return p.base + int(fraction*float64(p.weight))
}
