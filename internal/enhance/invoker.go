package enhance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"rebind/internal/profiles"
	"rebind/internal/services"
)

const enhanceStage = "enhancing"

// outputTailLines bounds the diagnostic output kept from a failed engine run.
const outputTailLines = 40

// Progress reports per-page engine progress.
type Progress struct {
	Done  int
	Total int
}

// Enhancer is the contract the orchestrator depends on.
type Enhancer interface {
	Enhance(ctx context.Context, inputDir, outputDir string, profile profiles.Profile, progress func(Progress)) error
}

// Executor abstracts engine process execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, env []string, onLine func(string)) error
}

// Option configures the invoker.
type Option func(*Invoker)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(inv *Invoker) {
		if exec != nil {
			inv.exec = exec
		}
	}
}

// Invoker runs the external enhancement engine binary.
type Invoker struct {
	binary    string
	timeout   time.Duration
	toolDir   string
	extraArgs []string
	exec      Executor
}

// New constructs an invoker for the given engine binary. toolDir, when
// non-empty, is prepended to the child's executable search path so a
// bundled engine and its helpers win over system installs.
func New(binary string, timeoutSeconds int, toolDir string, extraArgs []string, opts ...Option) (*Invoker, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("enhancement binary required")
	}
	inv := &Invoker{
		binary:    binary,
		timeout:   time.Duration(timeoutSeconds) * time.Second,
		toolDir:   toolDir,
		extraArgs: extraArgs,
		exec:      commandExecutor{},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Enhance runs the engine over inputDir, expecting one enhanced image per
// input in outputDir. A timeout fails with services.ErrEnhancementTimeout, a
// cancelled context with services.ErrCancelled, and any other engine failure
// with services.ErrEnhancementFailed carrying the tail of the captured
// output.
func (inv *Invoker) Enhance(ctx context.Context, inputDir, outputDir string, profile profiles.Profile, progress func(Progress)) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return services.Wrap(services.ErrEnhancementFailed, enhanceStage, "create output directory", outputDir, err)
	}

	runCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	args := []string{"--input", inputDir, "--output", outputDir}
	args = append(args, profile.Args()...)
	args = append(args, inv.extraArgs...)

	var tail outputTail
	err := inv.exec.Run(runCtx, inv.binary, args, inv.environment(), func(line string) {
		tail.append(line)
		if progress == nil {
			return
		}
		if update, ok := parseProgress(line); ok {
			progress(update)
		}
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return services.Wrap(services.ErrCancelled, enhanceStage, "run engine", "", ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			failure := services.Wrap(services.ErrEnhancementTimeout, enhanceStage, "run engine",
				fmt.Sprintf("engine exceeded %s", inv.timeout), err)
			return services.WithField(failure, "timeout", inv.timeout.String())
		default:
			return inv.engineFailure(err, &tail)
		}
	}

	if err := verifyOutputs(inputDir, outputDir); err != nil {
		return services.Wrap(services.ErrEnhancementFailed, enhanceStage, "verify outputs", tail.String(), err)
	}
	return nil
}

// engineFailure wraps a non-timeout engine error, attaching the exit code
// (when the process ran and exited) and the captured output tail as error
// record context.
func (inv *Invoker) engineFailure(err error, tail *outputTail) error {
	failure := services.Wrap(services.ErrEnhancementFailed, enhanceStage, "run engine", tail.String(), err)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure = services.WithField(failure, "exit_code", strconv.Itoa(exitErr.ExitCode()))
	}
	if out := tail.String(); out != "" {
		failure = services.WithField(failure, "output_tail", out)
	}
	return failure
}

// environment returns the child process environment with the bundled-tool
// directory prepended to the search path. The platform's own list separator
// must be used here; joining with the wrong one silently breaks lookup on
// the other platform.
func (inv *Invoker) environment() []string {
	env := os.Environ()
	if strings.TrimSpace(inv.toolDir) == "" {
		return env
	}
	sep := string(os.PathListSeparator)
	for i, kv := range env {
		if name, value, ok := strings.Cut(kv, "="); ok && strings.EqualFold(name, "PATH") {
			env[i] = name + "=" + inv.toolDir + sep + value
			return env
		}
	}
	return append(env, "PATH="+inv.toolDir)
}

// verifyOutputs checks that the engine produced exactly one file per input,
// under the same canonical names modulo extension.
func verifyOutputs(inputDir, outputDir string) error {
	inputs, err := imageStems(inputDir)
	if err != nil {
		return err
	}
	outputs, err := imageStems(outputDir)
	if err != nil {
		return err
	}
	if len(outputs) != len(inputs) {
		return fmt.Errorf("engine produced %d images for %d inputs", len(outputs), len(inputs))
	}
	for stem := range inputs {
		if _, ok := outputs[stem]; !ok {
			return fmt.Errorf("engine produced no output for %s", stem)
		}
	}
	return nil
}

func imageStems(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	stems := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stems[strings.TrimSuffix(name, filepath.Ext(name))] = name
	}
	return stems, nil
}

// parseProgress recognizes the engine's per-page progress lines of the form
// "PAGE <n>/<m>".
func parseProgress(line string) (Progress, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "PAGE ") {
		return Progress{}, false
	}
	payload := strings.TrimPrefix(line, "PAGE ")
	doneStr, totalStr, ok := strings.Cut(payload, "/")
	if !ok {
		return Progress{}, false
	}
	done, err := strconv.Atoi(strings.TrimSpace(doneStr))
	if err != nil {
		return Progress{}, false
	}
	totalFields := strings.Fields(totalStr)
	if len(totalFields) == 0 {
		return Progress{}, false
	}
	total, err := strconv.Atoi(totalFields[0])
	if err != nil || total <= 0 || done < 0 || done > total {
		return Progress{}, false
	}
	return Progress{Done: done, Total: total}, true
}

// outputTail keeps the last lines of engine output for diagnostics.
type outputTail struct {
	mu    sync.Mutex
	lines []string
}

func (t *outputTail) append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > outputTailLines {
		t.lines = t.lines[len(t.lines)-outputTailLines:]
	}
}

func (t *outputTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
