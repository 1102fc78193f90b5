package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bradenrollio/easycal-sub000/internal/outcome"
)

type JobKind string

const (
	JobProvision    JobKind = "provision"
	JobAvailability JobKind = "availability"
)

const defaultJobListLimit = 20

var ErrJobFinished = errors.New("job already finished")

// Job aggregates one provisioning or availability run.
type Job struct {
	ID         string         `json:"id"`
	LocationID string         `json:"locationId"`
	Kind       JobKind        `json:"kind"`
	Status     outcome.Status `json:"status"`
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	CreatedAt  time.Time      `json:"createdAt"`
	FinishedAt time.Time      `json:"finishedAt,omitzero"`
}

// JobItem is one row's or one calendar's outcome within a job.
type JobItem struct {
	JobID    string         `json:"jobId"`
	Seq      int            `json:"seq"`
	Ref      string         `json:"ref"`
	Name     string         `json:"name,omitempty"`
	Status   outcome.Status `json:"status"`
	RemoteID string         `json:"remoteId,omitempty"`
	IsUpdate bool           `json:"isUpdate"`
	Error    string         `json:"error,omitempty"`
}

// CreateJob starts a running job. total is the number of items expected.
func (s *Store) CreateJob(ctx context.Context, locationID string, kind JobKind, total int) (Job, error) {
	j := Job{
		ID:         uuid.NewString(),
		LocationID: locationID,
		Kind:       kind,
		Status:     outcome.StatusRunning,
		Total:      total,
		CreatedAt:  s.now(),
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO jobs (id, location_id, kind, status, total, succeeded, failed, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, '')`),
		j.ID, j.LocationID, string(j.Kind), string(j.Status), j.Total, formatTime(j.CreatedAt))
	if err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}

	return j, nil
}

// AddJobItem appends an outcome to a running job and bumps its counters.
func (s *Store) AddJobItem(ctx context.Context, jobID string, item JobItem) (JobItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return JobItem{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM jobs WHERE id = ?`), jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return JobItem{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return JobItem{}, fmt.Errorf("read job: %w", err)
	}
	if outcome.Status(status).Terminal() {
		return JobItem{}, fmt.Errorf("job %s: %w", jobID, ErrJobFinished)
	}

	if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(MAX(seq), 0) + 1 FROM job_items WHERE job_id = ?`), jobID).Scan(&item.Seq); err != nil {
		return JobItem{}, fmt.Errorf("next item seq: %w", err)
	}
	item.JobID = jobID
	if item.Status != outcome.StatusSuccess {
		item.Status = outcome.StatusError
	}

	isUpdate := 0
	if item.IsUpdate {
		isUpdate = 1
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO job_items (job_id, seq, ref, name, status, remote_id, is_update, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.JobID, item.Seq, item.Ref, item.Name, string(item.Status), item.RemoteID, isUpdate, item.Error, formatTime(s.now())); err != nil {
		return JobItem{}, fmt.Errorf("insert job item: %w", err)
	}

	counter := `UPDATE jobs SET failed = failed + 1 WHERE id = ?`
	if item.Status == outcome.StatusSuccess {
		counter = `UPDATE jobs SET succeeded = succeeded + 1 WHERE id = ?`
	}
	if _, err := tx.ExecContext(ctx, s.rebind(counter), jobID); err != nil {
		return JobItem{}, fmt.Errorf("update job counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return JobItem{}, err
	}

	return item, nil
}

// FinishJob derives the job's terminal status from its items. An aborted
// job, or one with fewer items than its total, is never a success.
// Finishing a terminal job is an error.
func (s *Store) FinishJob(ctx context.Context, jobID string, aborted bool) (Job, error) {
	j, err := s.getJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if j.Status.Terminal() {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ErrJobFinished)
	}

	if aborted || j.Succeeded+j.Failed < j.Total {
		j.Status = outcome.Aborted(j.Succeeded)
	} else {
		j.Status = outcome.Derive(j.Succeeded, j.Failed)
	}
	j.FinishedAt = s.now()

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE jobs SET status = ?, finished_at = ? WHERE id = ? AND status = ?`),
		string(j.Status), formatTime(j.FinishedAt), jobID, string(outcome.StatusRunning))
	if err != nil {
		return Job{}, fmt.Errorf("finish job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ErrJobFinished)
	}

	return j, nil
}

// GetJob returns a job and its items in order.
func (s *Store) GetJob(ctx context.Context, jobID string) (Job, []JobItem, error) {
	j, err := s.getJob(ctx, jobID)
	if err != nil {
		return Job{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT job_id, seq, ref, name, status, remote_id, is_update, error
		FROM job_items WHERE job_id = ? ORDER BY seq`), jobID)
	if err != nil {
		return Job{}, nil, fmt.Errorf("list job items: %w", err)
	}
	defer rows.Close()

	var items []JobItem
	for rows.Next() {
		var (
			it       JobItem
			status   string
			isUpdate int
		)
		if err := rows.Scan(&it.JobID, &it.Seq, &it.Ref, &it.Name, &status, &it.RemoteID, &isUpdate, &it.Error); err != nil {
			return Job{}, nil, err
		}
		it.Status = outcome.Status(status)
		it.IsUpdate = isUpdate != 0
		items = append(items, it)
	}

	return j, items, rows.Err()
}

// ListJobs returns the most recent jobs for a location, newest first. An
// empty location lists all.
func (s *Store) ListJobs(ctx context.Context, locationID string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = defaultJobListLimit
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if locationID != "" {
		query += ` WHERE location_id = ?`
		args = append(args, locationID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}

	return out, rows.Err()
}

const jobColumns = `id, location_id, kind, status, total, succeeded, failed, created_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (Job, error) {
	var (
		j                 Job
		kind, status      string
		created, finished string
	)
	if err := sc.Scan(&j.ID, &j.LocationID, &kind, &status, &j.Total, &j.Succeeded, &j.Failed, &created, &finished); err != nil {
		return Job{}, err
	}
	j.Kind = JobKind(kind)
	j.Status = outcome.Status(status)
	j.CreatedAt = parseTime(created)
	j.FinishedAt = parseTime(finished)

	return j, nil
}

func (s *Store) getJob(ctx context.Context, jobID string) (Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("read job: %w", err)
	}

	return j, nil
}
