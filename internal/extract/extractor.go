// Package extract materializes a resolved working set onto disk as a
// canonically numbered image directory, ready for the enhancement engine.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"rebind/internal/ebook"
	"rebind/internal/logging"
	"rebind/internal/pageorder"
	"rebind/internal/services"
)

// Materialization runs after order resolution, under the pipeline's
// reordering status; errors carry that stage so observer events, error
// records and wrapped messages all agree.
const extractStage = "reordering"

// Extractor writes page images into a working directory using zero-padded
// resolved-order names.
type Extractor struct {
	// Parallelism bounds concurrent file writes. Zero means NumCPU.
	Parallelism int

	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{logger: logger}
}

// Materialize writes every page of ws into dir, named by resolvedIndex with
// uniform zero padding and the page's original extension. Writes run in
// parallel; observable output is order-independent since names derive from
// resolvedIndex alone. On any failure the directory's partial contents are
// removed before the error propagates.
//
// Returns the written file names in resolved order.
func (e *Extractor) Materialize(ctx context.Context, ws *ebook.WorkingSet, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrExtractionIO, extractStage, "create working directory", dir, err)
	}

	ordered := pageorder.Ordered(ws)
	names := make([]string, len(ordered))
	for i, page := range ordered {
		names[i] = PageFileName(page.ResolvedIndex, ws.Len(), page.SourceName)
	}

	workers := e.Parallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, page := range ordered {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			target := filepath.Join(dir, names[i])
			if err := os.WriteFile(target, page.Data, 0o644); err != nil {
				return services.Wrap(services.ErrExtractionIO, extractStage, "write page", names[i], err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.cleanup(dir)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, services.Wrap(services.ErrCancelled, extractStage, "materialize pages", "", ctxErr)
		}
		return nil, err
	}

	e.logger.Debug("materialized working set",
		logging.String(logging.FieldStage, extractStage),
		logging.Int("pages", len(names)),
		logging.String("dir", dir))
	return names, nil
}

// cleanup removes everything written into dir so a failed extraction never
// leaves a partially numbered directory for downstream stages.
func (e *Extractor) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn("failed to remove partial extraction",
			logging.String("dir", dir), logging.Error(err))
	}
}

// PageFileName builds the canonical file name for a page: its resolved index
// zero-padded to fit the page count (minimum four digits), keeping the
// source extension.
func PageFileName(resolvedIndex, total int, sourceName string) string {
	width := len(fmt.Sprint(total - 1))
	if width < 4 {
		width = 4
	}
	ext := strings.ToLower(path.Ext(sourceName))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return fmt.Sprintf("page_%0*d%s", width, resolvedIndex, ext)
}
