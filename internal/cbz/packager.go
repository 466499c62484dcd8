// Package cbz builds the output comic archive from a directory of enhanced
// page images. Every write is verified by reopening the archive; failed or
// unverifiable writes are retried a bounded number of times and partial
// output is never left on disk.
package cbz

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"rebind/internal/logging"
	"rebind/internal/services"
)

const packageStage = "packaging"

// Packager writes and verifies CBZ archives.
type Packager struct {
	// Attempts is the total number of write attempts before giving up.
	Attempts int
	// Backoff is the delay between attempts.
	Backoff time.Duration

	logger *slog.Logger

	// afterWrite runs after each write attempt, before verification. Tests
	// use it to corrupt the file and exercise the retry path.
	afterWrite func(attempt int, path string)
}

// Option configures a packager.
type Option func(*Packager)

// WithAfterWrite installs a post-write hook (primarily for tests).
func WithAfterWrite(hook func(attempt int, path string)) Option {
	return func(p *Packager) { p.afterWrite = hook }
}

// New returns a packager with the given retry policy.
func New(attempts int, backoff time.Duration, logger *slog.Logger, opts ...Option) *Packager {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Packager{Attempts: attempts, Backoff: backoff, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package builds outputPath from the named image files in imageDir, in the
// given order. After each write the archive is reopened and checked: it must
// parse, hold exactly len(names) entries, and every entry must read back in
// full. A failed attempt deletes its output before the next try. When all
// attempts fail, the last cause comes back wrapped as
// services.ErrPackagingFailed and no output file remains.
func (p *Packager) Package(ctx context.Context, imageDir string, names []string, outputPath string) error {
	if len(names) == 0 {
		return services.Wrap(services.ErrPackagingFailed, packageStage, "package archive", "no pages to package", nil)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return services.Wrap(services.ErrPackagingFailed, packageStage, "create output directory", "", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			removeIfPresent(outputPath)
			return services.Wrap(services.ErrCancelled, packageStage, "package archive", "", err)
		}
		if attempt > 1 && p.Backoff > 0 {
			select {
			case <-time.After(p.Backoff):
			case <-ctx.Done():
				removeIfPresent(outputPath)
				return services.Wrap(services.ErrCancelled, packageStage, "package archive", "", ctx.Err())
			}
		}

		err := p.writeArchive(imageDir, names, outputPath)
		if err == nil && p.afterWrite != nil {
			p.afterWrite(attempt, outputPath)
		}
		if err == nil {
			err = Verify(outputPath, len(names))
		}
		if err == nil {
			p.logger.Info("packaged archive",
				logging.String(logging.FieldStage, packageStage),
				logging.String("output", outputPath),
				logging.Int("pages", len(names)),
				logging.Int("attempt", attempt))
			return nil
		}

		lastErr = err
		removeIfPresent(outputPath)
		p.logger.Warn("packaging attempt failed",
			logging.String(logging.FieldStage, packageStage),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", p.Attempts),
			logging.Error(err))
	}

	failure := services.Wrap(services.ErrPackagingFailed, packageStage, "package archive",
		fmt.Sprintf("gave up after %d attempts", p.Attempts), lastErr)
	return services.WithField(failure, "attempts", strconv.Itoa(p.Attempts))
}

// writeArchive creates the CBZ with one stored-order entry per name. Images
// are already compressed, so entries are stored rather than deflated.
func (p *Packager) writeArchive(imageDir string, names []string, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(f)

	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			f.Close()
			return fmt.Errorf("create entry %s: %w", name, err)
		}
		src, err := os.Open(filepath.Join(imageDir, name))
		if err != nil {
			f.Close()
			return fmt.Errorf("open page %s: %w", name, err)
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			f.Close()
			return fmt.Errorf("write entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// Verify opens the archive and checks it holds exactly wantEntries fully
// readable entries in strictly increasing name order. Catches truncation the
// zip central directory alone would hide.
func Verify(path string, wantEntries int) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("reopen archive: %w", err)
	}
	defer zr.Close()

	if len(zr.File) != wantEntries {
		return fmt.Errorf("archive holds %d entries, want %d", len(zr.File), wantEntries)
	}
	if !sort.SliceIsSorted(zr.File, func(a, b int) bool {
		return zr.File[a].Name < zr.File[b].Name
	}) {
		return fmt.Errorf("archive entries out of order")
	}
	for _, entry := range zr.File {
		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", entry.Name, err)
		}
		n, err := io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("read entry %s: %w", entry.Name, err)
		}
		if uint64(n) != entry.UncompressedSize64 {
			return fmt.Errorf("entry %s truncated: read %d of %d bytes", entry.Name, n, entry.UncompressedSize64)
		}
	}
	return nil
}

// OutputName derives the CBZ file name from the source container path.
func OutputName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".cbz"
}

func removeIfPresent(path string) {
	_ = os.Remove(path)
}
