package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = errors.New("job not found")

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	GetJobByRemoteID(ctx context.Context, remoteID string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListActiveJobs(ctx context.Context) ([]*Job, error)
	MarkSubmitted(ctx context.Context, id, remoteID, segregation string) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
	MarkCompleted(ctx context.Context, id string) error
	UpdateJobStage(ctx context.Context, id string, stage int) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const jobColumns = `id, remote_id, status, stage_index, input_kind, filename, page_estimate, segregation, error, created_at, updated_at`

// CreateJob inserts job, filling in ID, status and timestamps when unset.
func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	if j.ID == "" {
		j.ID = NewID()
	}
	if j.Status == "" {
		j.Status = StatusSubmitting
	}
	if j.PageEstimate <= 0 {
		j.PageEstimate = 1
	}
	now := r.now().UTC().Truncate(time.Second)
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	// No stage has been observed for a new attempt.
	j.StageIndex = -1

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, nullString(j.RemoteID), j.Status, j.StageIndex, j.InputKind, nullString(j.Filename),
		j.PageEstimate, nullString(j.Segregation), nullString(j.Error),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (r *SQLiteRepository) GetJobByRemoteID(ctx context.Context, remoteID string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE remote_id = ?`, remoteID)
	return scanJob(row)
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListActiveJobs returns accepted jobs that have not reached a terminal state.
func (r *SQLiteRepository) ListActiveJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs WHERE status = 'submitted' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) MarkSubmitted(ctx context.Context, id, remoteID, segregation string) error {
	return r.exec(ctx, `
		UPDATE jobs SET status = 'submitted', remote_id = ?, segregation = ?, error = NULL, updated_at = ?
		WHERE id = ?
	`, remoteID, nullString(segregation), r.stamp(), id)
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, errorMsg string) error {
	return r.exec(ctx, `
		UPDATE jobs SET status = 'failed', error = ?, updated_at = ? WHERE id = ?
	`, nullString(errorMsg), r.stamp(), id)
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?
	`, r.stamp(), id)
}

// UpdateJobStage records stage for the job. The stored index never decreases.
func (r *SQLiteRepository) UpdateJobStage(ctx context.Context, id string, stage int) error {
	return r.exec(ctx, `
		UPDATE jobs SET stage_index = MAX(stage_index, ?), updated_at = ? WHERE id = ?
	`, stage, r.stamp(), id)
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *SQLiteRepository) DeleteConfig(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM config WHERE key = ?", key)
	return err
}

func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row *sql.Row) (*Job, error) {
	j, err := scanInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanInto(s scanner) (*Job, error) {
	var j Job
	var remoteID, filename, segregation, errMsg sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&j.ID, &remoteID, &j.Status, &j.StageIndex, &j.InputKind, &filename,
		&j.PageEstimate, &segregation, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.RemoteID = remoteID.String
	j.Filename = filename.String
	j.Segregation = segregation.String
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
