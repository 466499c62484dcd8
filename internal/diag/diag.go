// Package diag writes diagnostic failure logs to a discoverable location.
// When a conversion fails the user needs the log where they will actually
// look: the desktop first, then the system temp directory, then the
// directory holding the executable. The service is constructed explicitly so
// tests can inject their own candidate roots.
package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"rebind/internal/services"
)

// FailureClass prefixes a diagnostic log file name so the failure origin is
// visible at a glance.
type FailureClass string

const (
	// ClassConversion covers stage failures inside a conversion job.
	ClassConversion FailureClass = "conversion-failure"
	// ClassWorker covers failures of the job worker outside any stage.
	ClassWorker FailureClass = "worker-failure"
	// ClassUncaught covers top-level panics nothing else caught.
	ClassUncaught FailureClass = "uncaught-failure"
)

// Report is the material written into one diagnostic log.
type Report struct {
	Class      FailureClass
	JobID      int64
	SourcePath string
	Stage      string
	Kind       services.Kind
	Message    string
	Cause      error
	Context    map[string]string
}

// Service resolves writable log locations and renders reports.
type Service struct {
	roots []string
	now   func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithRoots overrides the candidate directories (primarily for tests).
func WithRoots(roots ...string) Option {
	return func(s *Service) { s.roots = roots }
}

// WithClock overrides the timestamp source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a diagnostics service with the default candidate roots:
// desktop, system temp directory, then the executable's directory.
func New(opts ...Option) *Service {
	s := &Service{roots: defaultRoots(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write renders the report into the first writable candidate root and
// returns the log path. Every candidate failing is itself an error; the
// caller decides whether that is fatal.
func (s *Service) Write(report Report) (string, error) {
	name := fmt.Sprintf("%s-%s.log", report.Class, s.now().UTC().Format("20060102-150405"))
	content := renderReport(report, s.now().UTC())

	var lastErr error
	for _, root := range s.roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		target := filepath.Join(root, name)
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			lastErr = err
			continue
		}
		return target, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate log directory configured")
	}
	return "", fmt.Errorf("write diagnostic log: %w", lastErr)
}

func renderReport(report Report, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rebind diagnostic report\n")
	fmt.Fprintf(&b, "time: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "class: %s\n", report.Class)
	if report.JobID > 0 {
		fmt.Fprintf(&b, "job: %d\n", report.JobID)
	}
	if report.SourcePath != "" {
		fmt.Fprintf(&b, "source: %s\n", report.SourcePath)
	}
	if report.Stage != "" {
		fmt.Fprintf(&b, "stage: %s\n", report.Stage)
	}
	if report.Kind != "" {
		fmt.Fprintf(&b, "kind: %s\n", report.Kind)
	}
	fmt.Fprintf(&b, "message: %s\n", report.Message)
	if report.Cause != nil {
		fmt.Fprintf(&b, "cause: %v\n", report.Cause)
	}

	if len(report.Context) > 0 {
		keys := make([]string, 0, len(report.Context))
		for k := range report.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "\ncontext:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, report.Context[k])
		}
	}

	fmt.Fprintf(&b, "\nenvironment:\n")
	fmt.Fprintf(&b, "  search_path: %s\n", os.Getenv("PATH"))
	if wd, err := os.Getwd(); err == nil {
		fmt.Fprintf(&b, "  working_dir: %s\n", wd)
	}
	return b.String()
}

func defaultRoots() []string {
	var roots []string
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, "Desktop"))
	}
	roots = append(roots, os.TempDir())
	if exe, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}
	return roots
}
