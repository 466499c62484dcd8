package queue_test

import (
	"context"
	"errors"
	"testing"

	"rebind/internal/queue"
	"rebind/internal/testsupport"
)

func TestNewJobAndGet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	job := testsupport.NewJob(t, store, "/books/comic.epub", "/out", "kindle-paperwhite")
	if job.ID == 0 {
		t.Fatal("job id not assigned")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("status = %q, want pending", job.Status)
	}

	got, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SourcePath != "/books/comic.epub" || got.OutputDir != "/out" || got.DeviceProfile != "kindle-paperwhite" {
		t.Fatalf("job round trip mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps not persisted")
	}
}

func TestGetMissingJob(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	_, err := store.GetByID(context.Background(), 42)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestUpdateJobForwardOnly(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "/books/a.epub", "/out", "")

	job.Status = queue.StatusExtracting
	job.SetProgress("extracting", "reading container", 5)
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Status = queue.StatusEnhancing
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	// Backwards move is rejected.
	job.Status = queue.StatusExtracting
	if err := store.UpdateJob(ctx, job); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}

	// Failed is reachable from any non-terminal status.
	job.Status = queue.StatusFailed
	job.SetFailed("engine crashed")
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	// Terminal jobs never change again.
	job.Status = queue.StatusCompleted
	if err := store.UpdateJob(ctx, job); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
}

func TestErrorRecordsAppendOnly(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "/books/a.epub", "/out", "")

	first := &queue.ErrorRecord{
		JobID:   job.ID,
		Kind:    "packaging_failed",
		Stage:   "packaging",
		Message: "verification failed",
		Context: map[string]string{"attempt": "3"},
	}
	if err := store.AppendErrorRecord(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &queue.ErrorRecord{JobID: job.ID, Kind: "cancelled", Stage: "enhancing", Message: "stop requested"}
	if err := store.AppendErrorRecord(ctx, second); err != nil {
		t.Fatal(err)
	}

	records, err := store.ErrorRecords(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Kind != "packaging_failed" || records[0].Context["attempt"] != "3" {
		t.Fatalf("first record mismatch: %+v", records[0])
	}
	if records[1].Kind != "cancelled" {
		t.Fatalf("second record mismatch: %+v", records[1])
	}
}

func TestListByStatusAndClear(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	done := testsupport.NewJob(t, store, "/books/done.epub", "/out", "")
	done.Status = queue.StatusCompleted
	if err := store.UpdateJob(ctx, done); err != nil {
		t.Fatal(err)
	}
	testsupport.NewJob(t, store, "/books/waiting.epub", "/out", "")

	pending, err := store.ListByStatus(ctx, queue.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].SourcePath != "/books/waiting.epub" {
		t.Fatalf("pending = %+v", pending)
	}

	removed, err := store.ClearFinished(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("remaining = %d, want 1", len(all))
	}
}

func TestHealthSummary(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewJob(t, store, "/books/a.epub", "/out", "")
	active := testsupport.NewJob(t, store, "/books/b.epub", "/out", "")
	active.Status = queue.StatusEnhancing
	if err := store.UpdateJob(ctx, active); err != nil {
		t.Fatal(err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if health.Total != 2 || health.Pending != 1 || health.Processing != 1 {
		t.Fatalf("health = %+v", health)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" Enhancing "); !ok || status != queue.StatusEnhancing {
		t.Fatalf("ParseStatus = %q, %v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("unknown status accepted")
	}
}
