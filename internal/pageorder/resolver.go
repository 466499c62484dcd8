package pageorder

import (
	"fmt"
	"log/slog"
	"sort"

	"rebind/internal/ebook"
	"rebind/internal/logging"
	"rebind/internal/services"
)

const resolverStage = "reordering"

// Resolver produces the final resolvedIndex for every page of a working set.
type Resolver struct {
	// ConflictThreshold is the fraction of manifest/natural disagreements
	// tolerated before pages are flagged Conflicted. Zero flags any
	// disagreement.
	ConflictThreshold float64

	logger *slog.Logger
}

// New returns a resolver with the given conflict threshold.
func New(conflictThreshold float64, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{ConflictThreshold: conflictThreshold, logger: logger}
}

// Resolve assigns resolvedIndex and an order-confidence tag to every page.
//
// Manifest order is adopted when every page carries a manifest index forming
// a contiguous permutation of [0..n); duplicate manifest indices fail with
// services.ErrAmbiguousOrder. Anything less falls back to the natural
// file-name order. On success the working set satisfies the contiguity
// invariant checked by CheckResolved.
func (r *Resolver) Resolve(ws *ebook.WorkingSet) error {
	if ws.Len() == 0 {
		return services.Wrap(services.ErrAmbiguousOrder, resolverStage, "resolve order", "working set has no pages", nil)
	}

	switch {
	case ws.HasFullManifest():
		if err := r.resolveFromManifest(ws); err != nil {
			return err
		}
	default:
		r.resolveFromNatural(ws)
	}

	if err := ws.CheckResolved(); err != nil {
		return services.Wrap(services.ErrAmbiguousOrder, resolverStage, "verify order", "", err)
	}
	return nil
}

func (r *Resolver) resolveFromManifest(ws *ebook.WorkingSet) error {
	seen := make(map[int]string, ws.Len())
	contiguous := true
	for _, page := range ws.Pages {
		if prior, dup := seen[page.ManifestIndex]; dup {
			return services.Wrap(services.ErrAmbiguousOrder, resolverStage, "resolve order",
				fmt.Sprintf("manifest index %d claimed by both %s and %s", page.ManifestIndex, prior, page.SourceName), nil)
		}
		seen[page.ManifestIndex] = page.SourceName
		if page.ManifestIndex < 0 || page.ManifestIndex >= ws.Len() {
			contiguous = false
		}
	}

	if !contiguous {
		r.logger.Warn("manifest order not contiguous, falling back to file-name order",
			logging.String(logging.FieldStage, resolverStage))
		r.resolveFromNatural(ws)
		return nil
	}

	stableAssign(ws, func(p *ebook.PageEntry) int { return p.ManifestIndex })

	disagreements := 0
	for _, page := range ws.Pages {
		page.Confidence = ebook.ConfidenceAuthoritative
		if page.ManifestIndex != page.NaturalIndex {
			disagreements++
		}
	}
	if disagreements > 0 {
		fraction := float64(disagreements) / float64(ws.Len())
		if fraction > r.ConflictThreshold {
			for _, page := range ws.Pages {
				if page.ManifestIndex != page.NaturalIndex {
					page.Confidence = ebook.ConfidenceConflicted
				}
			}
			r.logger.Warn("manifest order disagrees with file-name order, manifest wins",
				logging.String(logging.FieldStage, resolverStage),
				logging.Int("disagreeing_pages", disagreements),
				logging.Int("total_pages", ws.Len()))
		}
	}
	return nil
}

func (r *Resolver) resolveFromNatural(ws *ebook.WorkingSet) {
	stableAssign(ws, func(p *ebook.PageEntry) int { return p.NaturalIndex })
	for _, page := range ws.Pages {
		page.Confidence = ebook.ConfidenceInferred
	}
}

// stableAssign stable-sorts page positions by key and stamps resolvedIndex
// with the resulting rank. Ties keep ingestion order.
func stableAssign(ws *ebook.WorkingSet, key func(*ebook.PageEntry) int) {
	order := make([]int, ws.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return key(ws.Pages[order[a]]) < key(ws.Pages[order[b]])
	})
	for rank, original := range order {
		ws.Pages[original].ResolvedIndex = rank
	}
}

// Ordered returns the pages sorted by resolvedIndex. The working set itself
// keeps ingestion order; downstream stages iterate through this view.
func Ordered(ws *ebook.WorkingSet) []*ebook.PageEntry {
	pages := make([]*ebook.PageEntry, len(ws.Pages))
	copy(pages, ws.Pages)
	sort.SliceStable(pages, func(a, b int) bool {
		return pages[a].ResolvedIndex < pages[b].ResolvedIndex
	})
	return pages
}
