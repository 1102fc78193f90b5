package cmd

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bradenrollio/easycal-sub000/internal/config"
	"github.com/bradenrollio/easycal-sub000/internal/outcome"
	"github.com/bradenrollio/easycal-sub000/internal/outfmt"
	"github.com/bradenrollio/easycal-sub000/internal/store"
	"github.com/bradenrollio/easycal-sub000/internal/ui"
)

type JobsCmd struct {
	List JobsListCmd `cmd:"" name:"ls" aliases:"list" help:"Recent jobs, newest first"`
	Show JobsShowCmd `cmd:"" aliases:"get" help:"One job with its per-row outcomes"`
}

type JobsListCmd struct {
	Limit        int  `name:"limit" aliases:"max" help:"Max jobs to list" default:"20"`
	AllLocations bool `name:"all-locations" help:"Jobs for every location, not just the selected one"`
}

func (c *JobsListCmd) Run(ctx context.Context, flags *RootFlags) error {
	var loc string
	if !c.AllLocations {
		cfg, err := config.Read()
		if err != nil {
			return err
		}
		loc, err = resolveLocation(flags, cfg)
		if err != nil {
			return err
		}
	}

	st, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	jobs, err := st.ListJobs(ctx, loc, c.Limit)
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		if jobs == nil {
			jobs = []store.Job{}
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"jobs": jobs})
	}

	header := []string{"ID", "LOCATION", "KIND", "STATUS", "OK", "FAILED", "TOTAL", "CREATED"}
	lines := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		lines = append(lines, []string{
			j.ID,
			j.LocationID,
			string(j.Kind),
			string(j.Status),
			strconv.Itoa(j.Succeeded),
			strconv.Itoa(j.Failed),
			strconv.Itoa(j.Total),
			j.CreatedAt.Local().Format(time.RFC3339),
		})
	}

	if outfmt.IsPlain(ctx) {
		return outfmt.WriteTSV(os.Stdout, header, lines)
	}

	u := ui.FromContext(ctx)
	if len(jobs) == 0 {
		u.Err().Println("No jobs")
		return nil
	}
	return writeTable(u, header, lines)
}

type JobsShowCmd struct {
	ID string `arg:"" name:"id" help:"Job id"`
}

func (c *JobsShowCmd) Run(ctx context.Context, _ *RootFlags) error {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return usage("empty job id")
	}

	st, err := openConfiguredStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	job, items, err := st.GetJob(ctx, id)
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		if items == nil {
			items = []store.JobItem{}
		}
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"job": job, "items": items})
	}

	header := []string{"SEQ", "REF", "NAME", "STATUS", "REMOTE_ID", "ACTION", "ERROR"}
	lines := make([][]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, []string{
			strconv.Itoa(it.Seq),
			it.Ref,
			it.Name,
			string(it.Status),
			it.RemoteID,
			itemAction(job.Kind, it),
			it.Error,
		})
	}

	if outfmt.IsPlain(ctx) {
		return outfmt.WriteTSV(os.Stdout, header, lines)
	}

	u := ui.FromContext(ctx)
	u.Out().Printf("id\t%s", job.ID)
	u.Out().Printf("location\t%s", job.LocationID)
	u.Out().Printf("kind\t%s", job.Kind)
	u.Out().Printf("status\t%s", job.Status)
	u.Out().Printf("progress\t%d ok, %d failed of %d", job.Succeeded, job.Failed, job.Total)
	u.Out().Printf("created\t%s", job.CreatedAt.Local().Format(time.RFC3339))
	if !job.FinishedAt.IsZero() {
		u.Out().Printf("finished\t%s", job.FinishedAt.Local().Format(time.RFC3339))
	}
	if len(items) == 0 {
		return nil
	}
	u.Out().Println("")
	return writeTable(u, header, lines)
}

func itemAction(kind store.JobKind, it store.JobItem) string {
	switch {
	case it.Status != outcome.StatusSuccess:
		return ""
	case kind == store.JobAvailability:
		return "updated"
	case it.IsUpdate:
		return "updated"
	default:
		return "created"
	}
}
