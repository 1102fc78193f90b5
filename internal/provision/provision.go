// Package provision creates or updates one calendar per CSV row, keyed by
// slug so that re-running the same file is safe.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/branding"
	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/groups"
	"github.com/bradenrollio/easycal-sub000/internal/outcome"
	"github.com/bradenrollio/easycal-sub000/internal/payload"
	"github.com/bradenrollio/easycal-sub000/internal/rows"
	"github.com/bradenrollio/easycal-sub000/internal/tenant"
	"github.com/bradenrollio/easycal-sub000/internal/validate"
)

const verifiedAfterAmbiguous = "create response was ambiguous; calendar found on re-read"

// Backend is the calendar API surface provisioning needs.
type Backend interface {
	groups.Backend
	ListCalendars(ctx context.Context, locationID string) ([]ghlapi.Calendar, error)
	CreateCalendar(ctx context.Context, p ghlapi.CalendarPayload) (ghlapi.Calendar, error)
	UpdateCalendar(ctx context.Context, id string, p ghlapi.CalendarPayload) (ghlapi.Calendar, error)
}

type Credentials interface {
	AccessToken(ctx context.Context, locationID string) (string, error)
}

// Recorder persists row outcomes as they happen.
type Recorder interface {
	Record(ctx context.Context, r RowResult) error
}

type Orchestrator struct {
	Backend     Backend
	Credentials Credentials
	Recorder    Recorder
	Logger      *slog.Logger
}

type Request struct {
	LocationID       string
	Rows             []rows.Row
	Brand            tenant.BrandConfig
	Defaults         *tenant.CalendarDefaults
	LocationTimezone string
	DryRun           bool
}

type RowResult struct {
	Row        int                     `json:"row"`
	Name       string                  `json:"name"`
	Slug       string                  `json:"slug,omitempty"`
	Success    bool                    `json:"success"`
	CalendarID string                  `json:"calendarId,omitempty"`
	IsUpdate   bool                    `json:"isUpdate"`
	Error      string                  `json:"error,omitempty"`
	Warnings   []string                `json:"warnings,omitempty"`
	Payload    *ghlapi.CalendarPayload `json:"payload,omitempty"`
}

type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
}

// Report is the outcome of a run. Aborted is set when a fatal error stopped
// the run before every row was attempted; such a run is never a success.
type Report struct {
	Results []RowResult    `json:"results"`
	Summary Summary        `json:"summary"`
	Status  outcome.Status `json:"status"`
	Aborted bool           `json:"aborted,omitempty"`
	DryRun  bool           `json:"dryRun,omitempty"`
}

// Run provisions every row in order. Row-level failures are recorded and
// the batch continues; a missing credential or cancellation stops it and
// returns what was done so far along with the error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Report, error) {
	rep := Report{Results: make([]RowResult, 0, len(req.Rows)), DryRun: req.DryRun}

	if o.Credentials != nil {
		if _, err := o.Credentials.AccessToken(ctx, req.LocationID); err != nil {
			return rep.abort(), err
		}
	}

	r := &run{
		o:        o,
		req:      req,
		resolver: &groups.Resolver{Backend: o.Backend, Logger: o.Logger},
		groups:   groups.NewCache(),
		index:    &slugIndex{backend: o.Backend, locationID: req.LocationID},
		seen:     make(map[string]int),
	}

	for i, row := range req.Rows {
		if err := ctx.Err(); err != nil {
			return rep.abort(), err
		}

		row.Index = i

		res, fatal := r.row(ctx, row)
		rep.Results = append(rep.Results, res)
		o.record(ctx, res)

		if fatal != nil {
			return rep.abort(), fatal
		}
	}

	return rep.finish(), nil
}

func (rep Report) finish() Report {
	s := Summary{Total: len(rep.Results)}
	for _, res := range rep.Results {
		switch {
		case !res.Success:
			s.Failed++
		case res.IsUpdate:
			s.Succeeded++
			s.Updated++
		default:
			s.Succeeded++
			s.Created++
		}
	}
	rep.Summary = s
	rep.Status = outcome.Derive(s.Succeeded, s.Failed)

	return rep
}

func (rep Report) abort() Report {
	rep = rep.finish()
	rep.Aborted = true
	rep.Status = outcome.Aborted(rep.Summary.Succeeded)

	return rep
}

type run struct {
	o        *Orchestrator
	req      Request
	resolver *groups.Resolver
	groups   *groups.Cache
	index    *slugIndex
	// seen maps slugs to the first row that used them in this file.
	seen map[string]int
}

func (r *run) row(ctx context.Context, row rows.Row) (RowResult, error) {
	res := RowResult{Row: row.Index, Name: strings.TrimSpace(row.CalendarName), Slug: payload.SlugFor(row)}
	log := r.o.logger().With("row", row.Index+1, "name", res.Name)

	issues := validate.Row(row, row.Index)
	var errs []string
	for _, is := range issues {
		if is.Severity == validate.SeverityError {
			errs = append(errs, is.Field+": "+is.Message)
		} else {
			res.Warnings = append(res.Warnings, is.Message)
		}
	}
	if len(errs) > 0 {
		res.Error = strings.Join(errs, "; ")
		log.Warn("row failed validation", "errors", len(errs))
		return res, nil
	}

	if first, dup := r.seen[res.Slug]; dup {
		res.Warnings = append(res.Warnings, fmt.Sprintf("slug %q already used by row %d; this row updates the same calendar", res.Slug, first+1))
	} else {
		r.seen[res.Slug] = row.Index
	}

	var groupID string
	if name := strings.TrimSpace(row.CalendarGroup); name != "" {
		var (
			id    string
			found bool
			err   error
		)
		if r.req.DryRun {
			id, found, err = r.resolver.Find(ctx, r.groups, name, r.req.LocationID)
			if err == nil && !found {
				res.Warnings = append(res.Warnings, fmt.Sprintf("group %q would be created", name))
			}
		} else {
			id, err = r.resolver.Ensure(ctx, r.groups, name, r.req.LocationID)
		}
		if err != nil {
			return failed(res, err)
		}
		groupID = id
	}

	b := branding.Resolve(row, r.req.Brand, r.req.Defaults, r.req.LocationTimezone)
	p, err := payload.Build(payload.Input{
		Row:        row,
		Branding:   b,
		Blocks:     validate.Blocks(row),
		GroupID:    groupID,
		LocationID: r.req.LocationID,
		Defaults:   r.req.Defaults,
	})
	if err != nil {
		return failed(res, err)
	}
	res.Slug = p.Slug

	existingID, found, err := r.index.lookup(ctx, p.Slug)
	if err != nil {
		return failed(res, fmt.Errorf("look up slug: %w", err))
	}

	if r.req.DryRun {
		res.Success = true
		res.IsUpdate = found
		res.CalendarID = existingID
		res.Payload = &p
		return res, nil
	}

	if found {
		if _, err := r.o.Backend.UpdateCalendar(ctx, existingID, p); err != nil {
			return failed(res, err)
		}

		res.Success = true
		res.IsUpdate = true
		res.CalendarID = existingID
		log.Info("updated calendar", "slug", p.Slug, "id", existingID)
		return res, nil
	}

	created, err := r.o.Backend.CreateCalendar(ctx, p)
	if err == nil && created.ID == "" {
		err = fmt.Errorf("%w: create returned no calendar id", ghlapi.ErrDecode)
	}
	if err != nil {
		if !ghlapi.IsAmbiguous(err) {
			return failed(res, err)
		}

		id, ok, verr := r.index.verify(ctx, p.Slug)
		if verr != nil || !ok {
			log.Warn("ambiguous create not confirmed", "slug", p.Slug, "err", err)
			return failed(res, err)
		}

		created.ID = id
		res.Warnings = append(res.Warnings, verifiedAfterAmbiguous)
	}

	r.index.put(p.Slug, created.ID)
	res.Success = true
	res.CalendarID = created.ID
	log.Info("created calendar", "slug", p.Slug, "id", created.ID)

	return res, nil
}

// failed records err on the row. Auth and cancellation errors are returned
// as fatal so the run stops.
func failed(res RowResult, err error) (RowResult, error) {
	res.Success = false
	res.Error = err.Error()

	var are *ghlauth.AuthRequiredError
	if errors.As(err, &are) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}

	return res, nil
}

func (o *Orchestrator) record(ctx context.Context, res RowResult) {
	if o.Recorder == nil {
		return
	}

	if err := o.Recorder.Record(ctx, res); err != nil {
		o.logger().Warn("failed to record row outcome", "row", res.Row+1, "err", err)
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}

	return slog.Default()
}
