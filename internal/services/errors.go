package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a conversion failure for error records and diagnostics.
type Kind string

const (
	KindUnsupportedFormat  Kind = "unsupported_format"
	KindEmptyArchive       Kind = "empty_archive"
	KindAmbiguousOrder     Kind = "ambiguous_order"
	KindExtractionIO       Kind = "extraction_io"
	KindEnhancementFailed  Kind = "enhancement_failed"
	KindEnhancementTimeout Kind = "enhancement_timeout"
	KindPackagingFailed    Kind = "packaging_failed"
	KindCancelled          Kind = "cancelled"
	KindUncaught           Kind = "uncaught_failure"
)

// Sentinel markers for the failure taxonomy. Stage code wraps errors with one
// of these via Wrap so callers can classify with errors.Is.
var (
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrEmptyArchive       = errors.New("empty archive")
	ErrAmbiguousOrder     = errors.New("ambiguous page order")
	ErrExtractionIO       = errors.New("extraction i/o error")
	ErrEnhancementFailed  = errors.New("enhancement failed")
	ErrEnhancementTimeout = errors.New("enhancement timeout")
	ErrPackagingFailed    = errors.New("packaging failed")
	ErrCancelled          = errors.New("conversion cancelled")
	ErrUncaught           = errors.New("uncaught failure")
)

var markerKinds = []struct {
	marker error
	kind   Kind
}{
	{ErrUnsupportedFormat, KindUnsupportedFormat},
	{ErrEmptyArchive, KindEmptyArchive},
	{ErrAmbiguousOrder, KindAmbiguousOrder},
	{ErrExtractionIO, KindExtractionIO},
	// Timeout before the generic enhancement marker so a doubly wrapped
	// timeout still classifies as a timeout.
	{ErrEnhancementTimeout, KindEnhancementTimeout},
	{ErrEnhancementFailed, KindEnhancementFailed},
	{ErrPackagingFailed, KindPackagingFailed},
	{ErrCancelled, KindCancelled},
}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUncaught
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps a stage error to its failure kind. Bare context errors from
// cooperative cancellation classify as cancelled; errors carrying no known
// marker classify as KindUncaught.
func Classify(err error) Kind {
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindEnhancementTimeout
	}
	return KindUncaught
}

// WithField attaches a contextual key/value pair to err, preserving the
// marker chain for Classify. Fields feed a failed job's error record and
// diagnostic log.
func WithField(err error, key, value string) error {
	if err == nil || strings.TrimSpace(key) == "" {
		return err
	}
	return &fieldedError{err: err, key: key, value: value}
}

type fieldedError struct {
	err   error
	key   string
	value string
}

func (e *fieldedError) Error() string { return e.err.Error() }

func (e *fieldedError) Unwrap() error { return e.err }

// Fields collects every key/value pair attached along err's chain, outermost
// value winning on duplicate keys. Returns nil when none are attached.
func Fields(err error) map[string]string {
	var fields map[string]string
	collectFields(err, &fields)
	return fields
}

func collectFields(err error, fields *map[string]string) {
	for err != nil {
		if fe, ok := err.(*fieldedError); ok {
			if *fields == nil {
				*fields = make(map[string]string)
			}
			if _, exists := (*fields)[fe.key]; !exists {
				(*fields)[fe.key] = fe.value
			}
		}
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		case interface{ Unwrap() []error }:
			for _, sub := range x.Unwrap() {
				collectFields(sub, fields)
			}
			return
		default:
			return
		}
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
