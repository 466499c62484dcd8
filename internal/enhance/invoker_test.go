package enhance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rebind/internal/profiles"
	"rebind/internal/services"
)

// stubExecutor fakes the engine: it emits scripted output lines, optionally
// copies inputs into the output directory, then returns runErr.
type stubExecutor struct {
	lines      []string
	copyImages bool
	runErr     error
	waitForCtx bool

	gotBinary string
	gotArgs   []string
	gotEnv    []string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, env []string, onLine func(string)) error {
	s.gotBinary = binary
	s.gotArgs = args
	s.gotEnv = env

	for _, line := range s.lines {
		onLine(line)
	}
	if s.copyImages {
		inputDir, outputDir := argValue(args, "--input"), argValue(args, "--output")
		entries, err := os.ReadDir(inputDir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			data, err := os.ReadFile(filepath.Join(inputDir, entry.Name()))
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(outputDir, entry.Name()), data, 0o644); err != nil {
				return err
			}
		}
	}
	if s.waitForCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.runErr
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func seedInputDir(t *testing.T, count int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("page_%04d.jpg", i)
		if err := os.WriteFile(filepath.Join(dir, name), []byte{0xFF, 0xD8, 0xFF}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestEnhanceReportsProgress(t *testing.T) {
	stub := &stubExecutor{
		lines:      []string{"starting", "PAGE 1/2", "noise", "PAGE 2/2"},
		copyImages: true,
	}
	inv, err := New("inkpress", 60, "", nil, WithExecutor(stub))
	if err != nil {
		t.Fatal(err)
	}

	inputDir := seedInputDir(t, 2)
	outputDir := filepath.Join(t.TempDir(), "out")

	var updates []Progress
	profile := profiles.Profile{Width: 100, Height: 200}
	if err := inv.Enhance(context.Background(), inputDir, outputDir, profile, func(p Progress) {
		updates = append(updates, p)
	}); err != nil {
		t.Fatal(err)
	}

	if len(updates) != 2 {
		t.Fatalf("updates = %v", updates)
	}
	if updates[0] != (Progress{Done: 1, Total: 2}) || updates[1] != (Progress{Done: 2, Total: 2}) {
		t.Fatalf("updates = %v", updates)
	}
	if stub.gotBinary != "inkpress" {
		t.Fatalf("binary = %q", stub.gotBinary)
	}
	if argValue(stub.gotArgs, "--width") != "100" {
		t.Fatalf("profile args missing: %v", stub.gotArgs)
	}
}

func TestEnhanceEngineFailureCarriesOutputTail(t *testing.T) {
	stub := &stubExecutor{
		lines:  []string{"loading model", "panic: out of memory"},
		runErr: errors.New("exit status 1"),
	}
	inv, err := New("inkpress", 60, "", nil, WithExecutor(stub))
	if err != nil {
		t.Fatal(err)
	}

	inputDir := seedInputDir(t, 1)
	err = inv.Enhance(context.Background(), inputDir, filepath.Join(t.TempDir(), "out"), profiles.Profile{}, nil)
	if !errors.Is(err, services.ErrEnhancementFailed) {
		t.Fatalf("err = %v, want enhancement failed", err)
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("error lost captured output: %v", err)
	}
	fields := services.Fields(err)
	if !strings.Contains(fields["output_tail"], "out of memory") {
		t.Fatalf("output tail missing from error fields: %v", fields)
	}
}

func TestEnhanceMissingOutputFails(t *testing.T) {
	stub := &stubExecutor{lines: []string{"PAGE 1/1"}} // exits zero, writes nothing
	inv, err := New("inkpress", 60, "", nil, WithExecutor(stub))
	if err != nil {
		t.Fatal(err)
	}

	inputDir := seedInputDir(t, 1)
	err = inv.Enhance(context.Background(), inputDir, filepath.Join(t.TempDir(), "out"), profiles.Profile{}, nil)
	if !errors.Is(err, services.ErrEnhancementFailed) {
		t.Fatalf("err = %v, want enhancement failed", err)
	}
}

func TestEnhanceTimeout(t *testing.T) {
	stub := &stubExecutor{waitForCtx: true}
	inv, err := New("inkpress", 1, "", nil, WithExecutor(stub))
	if err != nil {
		t.Fatal(err)
	}
	inv.timeout = 10 * time.Millisecond

	inputDir := seedInputDir(t, 1)
	err = inv.Enhance(context.Background(), inputDir, filepath.Join(t.TempDir(), "out"), profiles.Profile{}, nil)
	if !errors.Is(err, services.ErrEnhancementTimeout) {
		t.Fatalf("err = %v, want enhancement timeout", err)
	}
}

func TestEnhanceCancellation(t *testing.T) {
	stub := &stubExecutor{waitForCtx: true}
	inv, err := New("inkpress", 60, "", nil, WithExecutor(stub))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	inputDir := seedInputDir(t, 1)
	err = inv.Enhance(ctx, inputDir, filepath.Join(t.TempDir(), "out"), profiles.Profile{}, nil)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestEnvironmentPrependsToolDir(t *testing.T) {
	t.Setenv("PATH", "/usr/bin")
	inv, err := New("inkpress", 60, "/opt/rebind/tools", nil, WithExecutor(&stubExecutor{}))
	if err != nil {
		t.Fatal(err)
	}

	var got string
	for _, kv := range inv.environment() {
		if strings.HasPrefix(kv, "PATH=") {
			got = strings.TrimPrefix(kv, "PATH=")
		}
	}
	want := "/opt/rebind/tools" + string(os.PathListSeparator) + "/usr/bin"
	if got != want {
		t.Fatalf("PATH = %q, want %q", got, want)
	}
}

func TestParseProgress(t *testing.T) {
	cases := []struct {
		line string
		want Progress
		ok   bool
	}{
		{"PAGE 3/10", Progress{Done: 3, Total: 10}, true},
		{"  PAGE 10/10  ", Progress{Done: 10, Total: 10}, true},
		{"PAGE 10 of 12", Progress{}, false},
		{"PAGE 11/10", Progress{}, false},
		{"PAGES 1/2", Progress{}, false},
		{"done", Progress{}, false},
	}
	for _, tc := range cases {
		got, ok := parseProgress(tc.line)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseProgress(%q) = %v, %v", tc.line, got, ok)
		}
	}
}
