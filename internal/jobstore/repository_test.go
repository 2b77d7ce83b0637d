package jobstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/swrite/swrite-agent/internal/db"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func TestCreateAndGetJob(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := &Job{InputKind: InputKindFile, Filename: "invoice.pdf", PageEstimate: 3}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.ID == "" {
		t.Fatal("CreateJob() should assign an ID")
	}

	got, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetJob() returned nil")
	}
	if got.Status != StatusSubmitting {
		t.Errorf("Status = %q, want %q", got.Status, StatusSubmitting)
	}
	if got.StageIndex != -1 {
		t.Errorf("StageIndex = %d, want -1", got.StageIndex)
	}
	if got.Filename != "invoice.pdf" || got.PageEstimate != 3 {
		t.Errorf("got %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not persisted")
	}
}

func TestGetJob_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetJob(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetJob() = %+v, want nil", got)
	}
}

func TestCreateJob_DefaultsPageEstimate(t *testing.T) {
	repo := newTestRepo(t)

	job := &Job{InputKind: InputKindText}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.PageEstimate != 1 {
		t.Errorf("PageEstimate = %d, want 1", job.PageEstimate)
	}
}

func TestJobLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := &Job{InputKind: InputKindText}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := repo.MarkSubmitted(ctx, job.ID, "job-42", `{"pipeline":"doc"}`); err != nil {
		t.Fatalf("MarkSubmitted() error = %v", err)
	}

	active, err := repo.ListActiveJobs(ctx)
	if err != nil {
		t.Fatalf("ListActiveJobs() error = %v", err)
	}
	if len(active) != 1 || active[0].RemoteID != "job-42" {
		t.Fatalf("ListActiveJobs() = %+v", active)
	}

	byRemote, err := repo.GetJobByRemoteID(ctx, "job-42")
	if err != nil || byRemote == nil {
		t.Fatalf("GetJobByRemoteID() = %v, %v", byRemote, err)
	}
	if byRemote.Segregation != `{"pipeline":"doc"}` {
		t.Errorf("Segregation = %q", byRemote.Segregation)
	}

	for _, stage := range []int{1, 0, 2} {
		if err := repo.UpdateJobStage(ctx, job.ID, stage); err != nil {
			t.Fatalf("UpdateJobStage(%d) error = %v", stage, err)
		}
	}
	got, _ := repo.GetJob(ctx, job.ID)
	if got.StageIndex != 2 {
		t.Errorf("StageIndex = %d, want 2 (never decreases)", got.StageIndex)
	}

	if err := repo.MarkCompleted(ctx, job.ID); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	got, _ = repo.GetJob(ctx, job.ID)
	if !got.Terminal() {
		t.Errorf("job should be terminal, status = %q", got.Status)
	}

	active, _ = repo.ListActiveJobs(ctx)
	if len(active) != 0 {
		t.Errorf("completed job still active: %+v", active)
	}
}

func TestMarkFailed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := &Job{InputKind: InputKindFile, Filename: "big.pdf"}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := repo.MarkFailed(ctx, job.ID, "Error: file too large"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	got, _ := repo.GetJob(ctx, job.ID)
	if got.Status != StatusFailed || got.Error != "Error: file too large" {
		t.Errorf("got status=%q error=%q", got.Status, got.Error)
	}
}

func TestUpdate_MissingJob(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.MarkCompleted(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkCompleted() error = %v, want ErrNotFound", err)
	}
}

func TestListJobs_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		job := &Job{InputKind: InputKindFile, Filename: name, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
	}

	jobs, err := repo.ListJobs(ctx, 2)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].Filename != "c.pdf" || jobs[1].Filename != "b.pdf" {
		t.Errorf("order = %s, %s", jobs[0].Filename, jobs[1].Filename)
	}
}

func TestConfig(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}
	if err := repo.SetConfig(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetConfig() overwrite error = %v", err)
	}
	if v, _ := repo.GetConfig(ctx, "k"); v != "v2" {
		t.Errorf("GetConfig() = %q, want v2", v)
	}
	if err := repo.DeleteConfig(ctx, "k"); err != nil {
		t.Fatalf("DeleteConfig() error = %v", err)
	}
	if v, _ := repo.GetConfig(ctx, "k"); v != "" {
		t.Errorf("GetConfig() after delete = %q", v)
	}
}

func TestListJobs_QueryError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer conn.Close()

	repo := NewRepository(conn)
	mock.ExpectQuery("FROM jobs").
		WithArgs(50).
		WillReturnError(errors.New("disk I/O error"))

	if _, err := repo.ListJobs(context.Background(), 0); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListJobs_ScanError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer conn.Close()

	repo := NewRepository(conn)
	rows := sqlmock.NewRows([]string{"id", "status"}).AddRow("j-1", "submitted")
	mock.ExpectQuery("FROM jobs").WillReturnRows(rows)

	if _, err := repo.ListJobs(context.Background(), 10); err == nil {
		t.Fatal("expected scan error for short row")
	}
}

func TestMarkSubmitted_UsesFixedClock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer conn.Close()

	repo := NewRepository(conn)
	repo.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	mock.ExpectExec("UPDATE jobs SET status = 'submitted'").
		WithArgs("job-9", sqlmock.AnyArg(), "2026-03-01T12:00:00Z", "local-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkSubmitted(context.Background(), "local-1", "job-9", ""); err != nil {
		t.Fatalf("MarkSubmitted() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkFailed_NoRows(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer conn.Close()

	repo := NewRepository(conn)
	mock.ExpectExec("UPDATE jobs SET status = 'failed'").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkFailed(context.Background(), "gone", "boom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkFailed() error = %v, want ErrNotFound", err)
	}
}
