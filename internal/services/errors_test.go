package services_test

import (
	"errors"
	"strings"
	"testing"

	"rebind/internal/services"
)

func TestWrapIncludesStageContext(t *testing.T) {
	base := errors.New("disk full")
	err := services.Wrap(services.ErrExtractionIO, "extracting", "write page", "page 3 write failed", base)
	if !errors.Is(err, services.ErrExtractionIO) {
		t.Fatalf("expected extraction marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extracting", "write page", "page 3 write failed", "disk full"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("message %q missing %q", msg, fragment)
		}
	}
}

func TestWrapNilMarkerDefaultsToUncaught(t *testing.T) {
	err := services.Wrap(nil, "packaging", "", "", nil)
	if services.Classify(err) != services.KindUncaught {
		t.Fatalf("expected uncaught classification, got %s", services.Classify(err))
	}
}

func TestWithFieldSurvivesWrapping(t *testing.T) {
	base := services.Wrap(services.ErrPackagingFailed, "packaging", "package archive", "gave up", errors.New("truncated"))
	err := services.WithField(base, "attempts", "3")
	err = services.WithField(err, "output", "book.cbz")

	if services.Classify(err) != services.KindPackagingFailed {
		t.Fatalf("classification lost through fields: %s", services.Classify(err))
	}
	if !errors.Is(err, services.ErrPackagingFailed) {
		t.Fatalf("marker lost through fields: %v", err)
	}

	fields := services.Fields(err)
	if fields["attempts"] != "3" || fields["output"] != "book.cbz" {
		t.Fatalf("fields = %v", fields)
	}
	if err.Error() != base.Error() {
		t.Fatalf("fields changed the message: %q vs %q", err.Error(), base.Error())
	}
}

func TestFieldsEmptyWithoutAttachments(t *testing.T) {
	if fields := services.Fields(errors.New("plain")); fields != nil {
		t.Fatalf("fields = %v, want nil", fields)
	}
	if err := services.WithField(nil, "k", "v"); err != nil {
		t.Fatalf("WithField(nil) = %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"unsupported", services.Wrap(services.ErrUnsupportedFormat, "extracting", "open", "", nil), services.KindUnsupportedFormat},
		{"empty", services.ErrEmptyArchive, services.KindEmptyArchive},
		{"ambiguous", services.Wrap(services.ErrAmbiguousOrder, "reordering", "", "duplicate manifest index", nil), services.KindAmbiguousOrder},
		{"timeout wins over generic", services.Wrap(services.ErrEnhancementTimeout, "enhancing", "", "", services.ErrEnhancementFailed), services.KindEnhancementTimeout},
		{"packaging", services.Wrap(services.ErrPackagingFailed, "packaging", "verify", "", errors.New("short archive")), services.KindPackagingFailed},
		{"cancelled", services.ErrCancelled, services.KindCancelled},
		{"unknown", errors.New("boom"), services.KindUncaught},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify() = %s, want %s", got, tc.want)
			}
		})
	}
}
