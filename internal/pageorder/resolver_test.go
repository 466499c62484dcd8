package pageorder

import (
	"errors"
	"testing"

	"rebind/internal/ebook"
	"rebind/internal/services"
)

func workingSet(pages ...*ebook.PageEntry) *ebook.WorkingSet {
	ws := &ebook.WorkingSet{Pages: pages}
	for _, page := range pages {
		page.ResolvedIndex = -1
	}
	ebook.AssignNaturalOrder(ws)
	return ws
}

func TestResolveManifestWinsOverFilenames(t *testing.T) {
	// Filenames sort to [a, b, c] but the manifest declares [c, a, b].
	ws := workingSet(
		&ebook.PageEntry{ManifestIndex: 2, SourceName: "a.jpg"},
		&ebook.PageEntry{ManifestIndex: 0, SourceName: "b.jpg"},
		&ebook.PageEntry{ManifestIndex: 1, SourceName: "c.jpg"},
	)

	r := New(0, nil)
	if err := r.Resolve(ws); err != nil {
		t.Fatal(err)
	}

	ordered := Ordered(ws)
	want := []string{"b.jpg", "c.jpg", "a.jpg"}
	for i, page := range ordered {
		if page.SourceName != want[i] {
			t.Errorf("position %d = %q, want %q", i, page.SourceName, want[i])
		}
		if page.ResolvedIndex != i {
			t.Errorf("position %d resolved index = %d", i, page.ResolvedIndex)
		}
	}
	for _, page := range ws.Pages {
		if page.ManifestIndex != page.NaturalIndex && page.Confidence != ebook.ConfidenceConflicted {
			t.Errorf("%s confidence = %q, want conflicted", page.SourceName, page.Confidence)
		}
	}
}

func TestResolveAgreementStaysAuthoritative(t *testing.T) {
	ws := workingSet(
		&ebook.PageEntry{ManifestIndex: 0, SourceName: "p1.jpg"},
		&ebook.PageEntry{ManifestIndex: 1, SourceName: "p2.jpg"},
		&ebook.PageEntry{ManifestIndex: 2, SourceName: "p3.jpg"},
	)

	if err := New(0, nil).Resolve(ws); err != nil {
		t.Fatal(err)
	}
	for _, page := range ws.Pages {
		if page.Confidence != ebook.ConfidenceAuthoritative {
			t.Errorf("%s confidence = %q, want authoritative", page.SourceName, page.Confidence)
		}
		if page.ResolvedIndex != page.ManifestIndex {
			t.Errorf("%s resolved index = %d, want %d", page.SourceName, page.ResolvedIndex, page.ManifestIndex)
		}
	}
}

func TestResolveNaturalFallback(t *testing.T) {
	ws := workingSet(
		&ebook.PageEntry{ManifestIndex: ebook.NoManifestIndex, SourceName: "p10.jpg"},
		&ebook.PageEntry{ManifestIndex: ebook.NoManifestIndex, SourceName: "p2.jpg"},
		&ebook.PageEntry{ManifestIndex: ebook.NoManifestIndex, SourceName: "p1.jpg"},
	)

	if err := New(0, nil).Resolve(ws); err != nil {
		t.Fatal(err)
	}

	ordered := Ordered(ws)
	want := []string{"p1.jpg", "p2.jpg", "p10.jpg"}
	for i, page := range ordered {
		if page.SourceName != want[i] {
			t.Errorf("position %d = %q, want %q", i, page.SourceName, want[i])
		}
		if page.Confidence != ebook.ConfidenceInferred {
			t.Errorf("%s confidence = %q, want inferred", page.SourceName, page.Confidence)
		}
	}
}

func TestResolvePartialManifestFallsBack(t *testing.T) {
	ws := workingSet(
		&ebook.PageEntry{ManifestIndex: 0, SourceName: "b.jpg"},
		&ebook.PageEntry{ManifestIndex: ebook.NoManifestIndex, SourceName: "a.jpg"},
	)

	if err := New(0, nil).Resolve(ws); err != nil {
		t.Fatal(err)
	}
	ordered := Ordered(ws)
	if ordered[0].SourceName != "a.jpg" {
		t.Fatalf("first page = %q, want a.jpg (natural fallback)", ordered[0].SourceName)
	}
	for _, page := range ws.Pages {
		if page.Confidence != ebook.ConfidenceInferred {
			t.Errorf("%s confidence = %q, want inferred", page.SourceName, page.Confidence)
		}
	}
}

func TestResolveDuplicateManifestIndices(t *testing.T) {
	ws := workingSet(
		&ebook.PageEntry{ManifestIndex: 0, SourceName: "a.jpg"},
		&ebook.PageEntry{ManifestIndex: 0, SourceName: "b.jpg"},
		&ebook.PageEntry{ManifestIndex: 1, SourceName: "c.jpg"},
	)

	err := New(0, nil).Resolve(ws)
	if !errors.Is(err, services.ErrAmbiguousOrder) {
		t.Fatalf("err = %v, want ambiguous order", err)
	}
}

func TestResolveNonContiguousManifestFallsBack(t *testing.T) {
	ws := workingSet(
		&ebook.PageEntry{ManifestIndex: 3, SourceName: "b.jpg"},
		&ebook.PageEntry{ManifestIndex: 7, SourceName: "a.jpg"},
	)

	if err := New(0, nil).Resolve(ws); err != nil {
		t.Fatal(err)
	}
	ordered := Ordered(ws)
	if ordered[0].SourceName != "a.jpg" {
		t.Fatalf("first page = %q, want a.jpg", ordered[0].SourceName)
	}
}

func TestResolveConflictThresholdTolerates(t *testing.T) {
	// Two of four pages disagree: fraction 0.5 does not exceed a 0.5
	// threshold, so manifest order is adopted without flagging.
	ws := workingSet(
		&ebook.PageEntry{ManifestIndex: 0, SourceName: "p1.jpg"},
		&ebook.PageEntry{ManifestIndex: 1, SourceName: "p2.jpg"},
		&ebook.PageEntry{ManifestIndex: 3, SourceName: "p3.jpg"},
		&ebook.PageEntry{ManifestIndex: 2, SourceName: "p4.jpg"},
	)

	if err := New(0.5, nil).Resolve(ws); err != nil {
		t.Fatal(err)
	}
	for _, page := range ws.Pages {
		if page.Confidence == ebook.ConfidenceConflicted {
			t.Errorf("%s flagged conflicted below threshold", page.SourceName)
		}
	}
}

func TestResolveEmptyWorkingSet(t *testing.T) {
	err := New(0, nil).Resolve(&ebook.WorkingSet{})
	if !errors.Is(err, services.ErrAmbiguousOrder) {
		t.Fatalf("err = %v, want ambiguous order", err)
	}
}
