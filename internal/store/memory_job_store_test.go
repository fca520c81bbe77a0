package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/imaging"
)

var (
	_ JobStore   = (*MemoryJobStore)(nil)
	_ UsageStore = (*MemoryJobStore)(nil)
	_ JobStore   = (*PostgresJobStore)(nil)
	_ UsageStore = (*PostgresJobStore)(nil)
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	now := time.Now().UTC()
	job := domain.Job{
		ID:         "job-1",
		UserID:     "user-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeS3Presigned,
		Pipeline:   []domain.PipelineStep{{ID: "thumb", Options: imaging.Options{Width: 100}}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	job.Pipeline[0].ID = "mutated"

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Pipeline[0].ID != "thumb" {
		t.Fatal("store shares the caller's pipeline slice")
	}

	if _, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusQueued); err != nil {
		t.Fatalf("update status: %v", err)
	}

	done, err := s.Finish(ctx, "job-1", domain.JobStatusSucceeded, []domain.JobOutput{{StepID: "thumb", Format: "png"}}, "")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !done.Terminal() || len(done.Outputs) != 1 {
		t.Fatalf("unexpected finished job %+v", done)
	}

	if _, err := s.UpdateStatus(ctx, "missing", domain.JobStatusQueued); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected job not found, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing job")
	}
}

func TestMemoryJobStoreUsageLogs(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()
	_ = s.CreateUsageLog(ctx, domain.UsageLog{UserID: "a", JobID: "1"})
	_ = s.CreateUsageLog(ctx, domain.UsageLog{UserID: "b", JobID: "2"})
	_ = s.CreateUsageLog(ctx, domain.UsageLog{UserID: "a", JobID: "3"})

	logs := s.UsageLogs("a")
	if len(logs) != 2 || logs[0].JobID != "1" || logs[1].JobID != "3" {
		t.Fatalf("unexpected usage logs %+v", logs)
	}
}

func TestOpenWithoutDSNUsesMemory(t *testing.T) {
	s, err := Open(context.Background(), "  ")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.(*MemoryJobStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
