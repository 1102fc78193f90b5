package cmd

import (
	"context"
	"fmt"

	"github.com/bradenrollio/easycal-sub000/internal/outcome"
	"github.com/bradenrollio/easycal-sub000/internal/provision"
	"github.com/bradenrollio/easycal-sub000/internal/store"
)

// provisionRecorder writes each row outcome to the job as it happens.
type provisionRecorder struct {
	store *store.Store
	jobID string
}

func (r provisionRecorder) Record(ctx context.Context, res provision.RowResult) error {
	ref := res.Slug
	if ref == "" {
		ref = fmt.Sprintf("row-%d", res.Row+1)
	}

	_, err := r.store.AddJobItem(context.WithoutCancel(ctx), r.jobID, store.JobItem{
		Ref:      ref,
		Name:     res.Name,
		Status:   itemStatus(res.Success),
		RemoteID: res.CalendarID,
		IsUpdate: res.IsUpdate,
		Error:    res.Error,
	})
	return err
}

// availabilityRecorder writes each calendar outcome to the job.
type availabilityRecorder struct {
	store *store.Store
	jobID string
}

func (r availabilityRecorder) RecordCalendar(ctx context.Context, id string, err error) error {
	item := store.JobItem{Ref: id, RemoteID: id, IsUpdate: true, Status: itemStatus(err == nil)}
	if err != nil {
		item.Error = err.Error()
	}

	_, aerr := r.store.AddJobItem(context.WithoutCancel(ctx), r.jobID, item)
	return aerr
}

func itemStatus(ok bool) outcome.Status {
	if ok {
		return outcome.StatusSuccess
	}
	return outcome.StatusError
}

// finishJob closes the job even when the run was cancelled.
func finishJob(ctx context.Context, st *store.Store, jobID string, aborted bool) (store.Job, error) {
	return st.FinishJob(context.WithoutCancel(ctx), jobID, aborted)
}
