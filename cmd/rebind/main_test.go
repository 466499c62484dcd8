package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rebind/internal/config"
	"rebind/internal/queue"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TempRoot = filepath.Join(base, "tmp")
	cfgVal.Paths.ProfileDir = filepath.Join(base, "profiles")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, &cfgVal)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got %q", needle, haystack)
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nlog_dir = %q\ntemp_root = %q\nprofile_dir = %q\n",
		cfg.Paths.LogDir,
		cfg.Paths.TempRoot,
		cfg.Paths.ProfileDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// seedJobs inserts jobs directly and closes the store so CLI commands can
// take the queue lock afterwards.
func seedJobs(t *testing.T, cfg *config.Config, seed func(ctx context.Context, store *queue.Store)) {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	defer store.Close()
	seed(context.Background(), store)
}

func TestCLIQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	var pendingID, failedID int64
	seedJobs(t, env.cfg, func(ctx context.Context, store *queue.Store) {
		pending, err := store.NewJob(ctx, filepath.Join(env.baseDir, "alpha.epub"), env.baseDir, "kindle-paperwhite")
		if err != nil {
			t.Fatalf("NewJob pending: %v", err)
		}
		pendingID = pending.ID

		failed, err := store.NewJob(ctx, filepath.Join(env.baseDir, "beta.mobi"), env.baseDir, "kobo-clara")
		if err != nil {
			t.Fatalf("NewJob failed: %v", err)
		}
		failed.SetFailed("enhancement engine crashed")
		if err := store.UpdateJob(ctx, failed); err != nil {
			t.Fatalf("update failed job: %v", err)
		}
		failedID = failed.ID
	})

	out, _, err := runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "alpha.epub")
	requireContains(t, out, "beta.mobi")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list --status failed: %v", err)
	}
	requireContains(t, out, "beta.mobi")
	if strings.Contains(out, "alpha.epub") {
		t.Fatalf("status filter leaked pending job: %q", out)
	}

	out, _, err = runCLI(t, []string{"queue", "show", fmt.Sprintf("%d", failedID)}, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "beta.mobi")
	requireContains(t, out, "enhancement engine crashed")

	out, _, err = runCLI(t, []string{"queue", "health"}, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "1")

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Removed 1 finished job(s).")

	seedJobs(t, env.cfg, func(ctx context.Context, store *queue.Store) {
		if _, err := store.GetByID(ctx, pendingID); err != nil {
			t.Fatalf("pending job should survive clear: %v", err)
		}
		if _, err := store.GetByID(ctx, failedID); err == nil {
			t.Fatalf("failed job should have been cleared")
		}
	})
}

func TestCLIQueueShowRejectsBadID(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"queue", "show", "not-a-number"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid job id") {
		t.Fatalf("expected invalid job id error, got %v", err)
	}
}

func TestCLIProfilesCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"profiles"}, env.configPath)
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	requireContains(t, out, "kindle-paperwhite (default)")
	requireContains(t, out, "grayscale")
}

func TestCLIDoctorCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatalf("expected doctor to fail without the enhancement engine on PATH")
	}

	stubDir := filepath.Join(env.baseDir, "bin")
	if err := os.MkdirAll(stubDir, 0o755); err != nil {
		t.Fatalf("create stub dir: %v", err)
	}
	stub := filepath.Join(stubDir, "inkpress")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", stubDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor with stub: %v", err)
	}
	requireContains(t, out, "All required dependencies available.")
}
