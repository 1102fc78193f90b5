package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
	"github.com/bradenrollio/easycal-sub000/internal/outcome"
	"github.com/bradenrollio/easycal-sub000/internal/rows"
	"github.com/bradenrollio/easycal-sub000/internal/tenant"
)

// fakeBackend keeps calendars in memory, keyed by id.
type fakeBackend struct {
	cals   map[string]ghlapi.Calendar
	groups []ghlapi.Group
	nextID int

	lists, creates, updates, groupCreates int

	createErr func(p ghlapi.CalendarPayload) error
	updateErr error
	listErr   error
	// persistOnCreateErr stores the calendar even when createErr fires.
	persistOnCreateErr bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{cals: make(map[string]ghlapi.Calendar)}
}

func (f *fakeBackend) ListCalendars(context.Context, string) ([]ghlapi.Calendar, error) {
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]ghlapi.Calendar, 0, len(f.cals))
	for _, c := range f.cals {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeBackend) CreateCalendar(_ context.Context, p ghlapi.CalendarPayload) (ghlapi.Calendar, error) {
	f.creates++
	if f.createErr != nil {
		if err := f.createErr(p); err != nil {
			if f.persistOnCreateErr {
				f.store(p)
			}
			return ghlapi.Calendar{}, err
		}
	}
	return f.store(p), nil
}

func (f *fakeBackend) store(p ghlapi.CalendarPayload) ghlapi.Calendar {
	f.nextID++
	c := ghlapi.Calendar{ID: fmt.Sprintf("cal%d", f.nextID), CalendarPayload: p}
	f.cals[c.ID] = c
	return c
}

func (f *fakeBackend) UpdateCalendar(_ context.Context, id string, p ghlapi.CalendarPayload) (ghlapi.Calendar, error) {
	f.updates++
	if f.updateErr != nil {
		return ghlapi.Calendar{}, f.updateErr
	}
	c := ghlapi.Calendar{ID: id, CalendarPayload: p}
	f.cals[id] = c
	return c, nil
}

func (f *fakeBackend) ListGroups(context.Context, string) ([]ghlapi.Group, error) {
	return f.groups, nil
}

func (f *fakeBackend) CreateGroup(_ context.Context, in ghlapi.GroupInput) (ghlapi.Group, error) {
	f.groupCreates++
	g := ghlapi.Group{ID: "grp-" + in.Slug, Name: in.Name, Slug: in.Slug}
	f.groups = append(f.groups, g)
	return g, nil
}

type fakeCreds struct{ err error }

func (c fakeCreds) AccessToken(context.Context, string) (string, error) { return "tok", c.err }

type memRecorder struct{ got []RowResult }

func (m *memRecorder) Record(_ context.Context, r RowResult) error {
	m.got = append(m.got, r)
	return nil
}

func row(name, schedule string) rows.Row {
	return rows.Row{
		CalendarName:            name,
		ScheduleBlocks:          schedule,
		SlotIntervalMinutes:     "30",
		ClassDurationMinutes:    "60",
		MinSchedulingNoticeDays: "1",
		MaxBookingsPerDay:       "10",
	}
}

func request(rs ...rows.Row) Request {
	return Request{LocationID: "loc1", Rows: rs, Brand: tenant.NewBrandConfig("loc1")}
}

func TestRun_Idempotent(t *testing.T) {
	fb := newFakeBackend()
	o := &Orchestrator{Backend: fb, Credentials: fakeCreds{}}
	req := request(row("Yoga", "Mon 09:00-10:00; Wed 09:00-10:00"), row("Pilates", "Tue 18:00-19:00"))

	first, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Status != outcome.StatusSuccess || first.Summary.Created != 2 || first.Summary.Updated != 0 {
		t.Fatalf("unexpected first run: %#v", first.Summary)
	}

	second, err := o.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fb.cals) != 2 || fb.creates != 2 {
		t.Fatalf("second run must not create: cals=%d creates=%d", len(fb.cals), fb.creates)
	}
	for i, res := range second.Results {
		if !res.Success || !res.IsUpdate || res.CalendarID != first.Results[i].CalendarID || res.Slug != first.Results[i].Slug {
			t.Fatalf("row %d not an update of the same calendar: %#v", i, res)
		}
	}
	if second.Summary.Updated != 2 || second.Summary.Created != 0 {
		t.Fatalf("unexpected second summary: %#v", second.Summary)
	}
}

func TestRun_RowFailuresAreIsolated(t *testing.T) {
	fb := newFakeBackend()
	fb.createErr = func(p ghlapi.CalendarPayload) error {
		if p.Slug == "broken" {
			return &ghlapi.BackendError{Method: http.MethodPost, Path: "/calendars/", Status: 422, Message: "bad payload"}
		}
		return nil
	}
	rec := &memRecorder{}
	o := &Orchestrator{Backend: fb, Recorder: rec}

	invalid := row("", "Mon 09:00-10:00")
	rep, err := o.Run(context.Background(), request(row("Yoga", "Mon 09:00-10:00"), invalid, row("Broken", "Fri 09:00-10:00"), row("Spin", "Sat 08:00-09:00")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.Status != outcome.StatusPartial || rep.Summary.Succeeded != 2 || rep.Summary.Failed != 2 || rep.Summary.Total != 4 {
		t.Fatalf("unexpected summary: %#v %s", rep.Summary, rep.Status)
	}
	if rep.Results[1].Success || !strings.Contains(rep.Results[1].Error, "calendar_name") {
		t.Fatalf("validation failure not recorded: %#v", rep.Results[1])
	}
	if rep.Results[2].Success || !strings.Contains(rep.Results[2].Error, "bad payload") {
		t.Fatalf("backend failure not recorded: %#v", rep.Results[2])
	}
	if !rep.Results[3].Success {
		t.Fatalf("row after failure should still run: %#v", rep.Results[3])
	}
	if fb.creates != 3 {
		t.Fatalf("invalid row must not reach the backend, creates=%d", fb.creates)
	}
	if len(rec.got) != 4 {
		t.Fatalf("expected every row recorded, got %d", len(rec.got))
	}
}

func TestRun_AllFailedIsError(t *testing.T) {
	rep, err := (&Orchestrator{Backend: newFakeBackend()}).Run(context.Background(), request(row("", "")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Status != outcome.StatusError {
		t.Fatalf("expected error status, got %s", rep.Status)
	}
}

func TestRun_AuthPreflightAborts(t *testing.T) {
	fb := newFakeBackend()
	authErr := &ghlauth.AuthRequiredError{LocationID: "loc1"}
	o := &Orchestrator{Backend: fb, Credentials: fakeCreds{err: authErr}}

	rep, err := o.Run(context.Background(), request(row("Yoga", "Mon 09:00-10:00")))
	var are *ghlauth.AuthRequiredError
	if !errors.As(err, &are) {
		t.Fatalf("expected AuthRequiredError, got %v", err)
	}
	if len(rep.Results) != 0 || fb.lists != 0 || fb.creates != 0 {
		t.Fatalf("nothing should run without credentials: %#v", rep)
	}
	if rep.Status != outcome.StatusError || !rep.Aborted {
		t.Fatalf("aborted run reported as %s (aborted=%v)", rep.Status, rep.Aborted)
	}
}

func TestRun_AuthMidRunAborts(t *testing.T) {
	fb := newFakeBackend()
	calls := 0
	fb.createErr = func(ghlapi.CalendarPayload) error {
		calls++
		if calls == 2 {
			return &ghlauth.AuthRequiredError{LocationID: "loc1"}
		}
		return nil
	}
	o := &Orchestrator{Backend: fb}

	rep, err := o.Run(context.Background(), request(row("A", "Mon 09:00-10:00"), row("B", "Mon 10:00-11:00"), row("C", "Mon 11:00-12:00")))
	var are *ghlauth.AuthRequiredError
	if !errors.As(err, &are) {
		t.Fatalf("expected AuthRequiredError, got %v", err)
	}
	if len(rep.Results) != 2 || !rep.Results[0].Success || rep.Results[1].Success {
		t.Fatalf("unexpected partial report: %#v", rep.Results)
	}
	if rep.Status != outcome.StatusPartial || !rep.Aborted {
		t.Fatalf("unexpected status: %s (aborted=%v)", rep.Status, rep.Aborted)
	}
}

func TestRun_AmbiguousCreateVerified(t *testing.T) {
	fb := newFakeBackend()
	fb.persistOnCreateErr = true
	fb.createErr = func(ghlapi.CalendarPayload) error {
		return &ghlapi.BackendError{Method: http.MethodPost, Path: "/calendars/", Status: 502}
	}
	o := &Orchestrator{Backend: fb}

	rep, err := o.Run(context.Background(), request(row("Yoga", "Mon 09:00-10:00")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := rep.Results[0]
	if !res.Success || res.CalendarID != "cal1" || len(res.Warnings) == 0 {
		t.Fatalf("expected verified success, got %#v", res)
	}
	if fb.lists != 2 {
		t.Fatalf("expected a verification re-read, lists=%d", fb.lists)
	}
}

func TestRun_AmbiguousCreateNotFound(t *testing.T) {
	fb := newFakeBackend()
	fb.createErr = func(ghlapi.CalendarPayload) error {
		return &ghlapi.BackendError{Method: http.MethodPost, Path: "/calendars/", Status: 503}
	}
	o := &Orchestrator{Backend: fb}

	rep, err := o.Run(context.Background(), request(row("Yoga", "Mon 09:00-10:00")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Results[0].Success || !strings.Contains(rep.Results[0].Error, "503") {
		t.Fatalf("expected failure, got %#v", rep.Results[0])
	}
}

func TestRun_GroupsCachedAcrossRows(t *testing.T) {
	fb := newFakeBackend()
	a := row("A", "Mon 09:00-10:00")
	a.CalendarGroup = "Kids"
	b := row("B", "Tue 09:00-10:00")
	b.CalendarGroup = "kids"

	rep, err := (&Orchestrator{Backend: fb}).Run(context.Background(), request(a, b))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fb.groupCreates != 1 {
		t.Fatalf("expected one group create, got %d", fb.groupCreates)
	}
	for _, c := range fb.cals {
		if c.GroupID != "grp-kids" {
			t.Fatalf("unexpected group on %s: %q", c.Name, c.GroupID)
		}
	}
	if rep.Summary.Created != 2 {
		t.Fatalf("unexpected summary: %#v", rep.Summary)
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	fb := newFakeBackend()
	fb.store(ghlapiPayload("yoga"))

	r := row("Yoga", "Mon 09:00-10:00")
	r2 := row("New Class", "Mon 10:00-11:00")
	r2.CalendarGroup = "Adults"
	req := request(r, r2)
	req.DryRun = true

	rep, err := (&Orchestrator{Backend: fb}).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fb.creates != 0 || fb.updates != 0 || fb.groupCreates != 0 {
		t.Fatalf("dry run wrote: creates=%d updates=%d groups=%d", fb.creates, fb.updates, fb.groupCreates)
	}
	if !rep.DryRun || !rep.Results[0].IsUpdate || rep.Results[0].CalendarID != "cal1" || rep.Results[0].Payload == nil {
		t.Fatalf("unexpected dry run result: %#v", rep.Results[0])
	}
	if rep.Results[1].IsUpdate || len(rep.Results[1].Warnings) == 0 {
		t.Fatalf("expected planned create with group warning: %#v", rep.Results[1])
	}
}

func TestRun_DuplicateSlugInFile(t *testing.T) {
	fb := newFakeBackend()
	rep, err := (&Orchestrator{Backend: fb}).Run(context.Background(), request(row("Yoga", "Mon 09:00-10:00"), row("yoga", "Tue 09:00-10:00")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fb.cals) != 1 || !rep.Results[1].IsUpdate || len(rep.Results[1].Warnings) != 1 {
		t.Fatalf("second row should update the first: %#v", rep.Results[1])
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := (&Orchestrator{Backend: newFakeBackend()}).Run(ctx, request(row("Yoga", "Mon 09:00-10:00")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if rep.Status != outcome.StatusError || !rep.Aborted {
		t.Fatalf("cancelled run reported as %s (aborted=%v)", rep.Status, rep.Aborted)
	}
}

type cancelAfterFirst struct {
	cancel context.CancelFunc
}

func (c cancelAfterFirst) Record(context.Context, RowResult) error {
	c.cancel()
	return nil
}

func TestRun_CancelledMidRunIsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fb := newFakeBackend()
	o := &Orchestrator{Backend: fb, Recorder: cancelAfterFirst{cancel: cancel}}
	rep, err := o.Run(ctx, request(row("A", "Mon 09:00-10:00"), row("B", "Mon 10:00-11:00"), row("C", "Mon 11:00-12:00")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(rep.Results) != 1 || !rep.Results[0].Success {
		t.Fatalf("expected one processed row, got %#v", rep.Results)
	}
	if rep.Status != outcome.StatusPartial || !rep.Aborted {
		t.Fatalf("cancelled run reported as %s (aborted=%v)", rep.Status, rep.Aborted)
	}
}

func ghlapiPayload(slug string) ghlapi.CalendarPayload {
	return ghlapi.CalendarPayload{LocationID: "loc1", Name: slug, Slug: slug}
}
