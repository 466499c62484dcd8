package ebook

import "fmt"

// Format identifies the source container type.
type Format string

const (
	FormatEPUB Format = "epub"
	FormatMOBI Format = "mobi"
)

// NoManifestIndex marks a page the container declared no reading order for.
const NoManifestIndex = -1

// OrderConfidence tags how a page's resolved position was determined.
type OrderConfidence string

const (
	// ConfidenceUnresolved is the zero state before order resolution runs.
	ConfidenceUnresolved OrderConfidence = ""
	// ConfidenceAuthoritative means the container manifest supplied the order.
	ConfidenceAuthoritative OrderConfidence = "authoritative"
	// ConfidenceInferred means the order was derived from file names.
	ConfidenceInferred OrderConfidence = "inferred"
	// ConfidenceConflicted means manifest and file-name order disagreed and
	// the manifest won.
	ConfidenceConflicted OrderConfidence = "conflicted"
)

// PageEntry is one page image from the source container.
//
// The Archive Reader populates ManifestIndex and NaturalIndex; the Page Order
// Resolver assigns ResolvedIndex and Confidence; everything downstream treats
// the entry as read-only.
type PageEntry struct {
	ManifestIndex int
	SourceName    string
	NaturalIndex  int
	ResolvedIndex int
	Data          []byte
	Confidence    OrderConfidence
}

// WorkingSet is the ordered page collection for a single conversion job.
type WorkingSet struct {
	SourcePath string
	Format     Format
	Pages      []*PageEntry
}

// Len returns the number of pages.
func (ws *WorkingSet) Len() int {
	if ws == nil {
		return 0
	}
	return len(ws.Pages)
}

// HasFullManifest reports whether every page carries a declared manifest index.
func (ws *WorkingSet) HasFullManifest() bool {
	if ws.Len() == 0 {
		return false
	}
	for _, page := range ws.Pages {
		if page.ManifestIndex == NoManifestIndex {
			return false
		}
	}
	return true
}

// CheckResolved verifies the resolved-order invariant: resolved indices are
// unique, contiguous integers starting at zero.
func (ws *WorkingSet) CheckResolved() error {
	seen := make([]bool, ws.Len())
	for _, page := range ws.Pages {
		idx := page.ResolvedIndex
		if idx < 0 || idx >= ws.Len() {
			return fmt.Errorf("resolved index %d out of range for %d pages", idx, ws.Len())
		}
		if seen[idx] {
			return fmt.Errorf("resolved index %d assigned twice", idx)
		}
		seen[idx] = true
	}
	return nil
}
