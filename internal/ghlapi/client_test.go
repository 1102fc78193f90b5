package ghlapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/bradenrollio/easycal-sub000/internal/ghlauth"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		BaseURL:     srv.URL + "/",
		LocationID:  "loc1",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
		RetryDelay:  time.Millisecond,
	})
}

func TestListCalendars_HeadersAndQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendars/" || r.URL.Query().Get("locationId") != "loc1" {
			t.Errorf("unexpected request: %s", r.URL)
		}
		if r.Header.Get("Version") != APIVersion {
			t.Errorf("missing version header")
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("unexpected auth: %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"calendars":[{"id":"c1","name":"Yoga","slug":"yoga","availabilityType":1,"openHours":[{"daysOfTheWeek":[1],"hours":[{"openHour":9,"openMinute":0,"closeHour":10,"closeMinute":0}]}]}]}`))
	})

	cals, err := c.ListCalendars(context.Background(), "loc1")
	if err != nil {
		t.Fatalf("ListCalendars: %v", err)
	}
	if len(cals) != 1 || cals[0].ID != "c1" || cals[0].Slug != "yoga" {
		t.Fatalf("unexpected calendars: %#v", cals)
	}
	if cals[0].AvailabilityType == nil || *cals[0].AvailabilityType != 1 || len(cals[0].OpenHours) != 1 {
		t.Fatalf("unexpected availability fields: %#v", cals[0])
	}
}

func TestCreateCalendar_SendsPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calendars/" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["slug"] != "yoga" {
			t.Errorf("unexpected slug: %v", body["slug"])
		}
		if v, ok := body["appoinmentPerDay"]; !ok || v.(float64) != 0 {
			t.Errorf("appoinmentPerDay must always be sent, got %v", body)
		}
		_, _ = w.Write([]byte(`{"calendar":{"id":"new1","slug":"yoga"}}`))
	})

	cal, err := c.CreateCalendar(context.Background(), CalendarPayload{LocationID: "loc1", Name: "Yoga", Slug: "yoga"})
	if err != nil || cal.ID != "new1" {
		t.Fatalf("unexpected calendar %#v err=%v", cal, err)
	}
}

func TestUpdateAvailability_MinimalBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/calendars/c1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		var body map[string]json.RawMessage
		_ = json.Unmarshal(b, &body)
		if len(body) != 3 {
			t.Errorf("expected exactly three fields, got %s", b)
		}
		if string(body["availabilities"]) != "[]" || string(body["availabilityType"]) != "0" || string(body["openHours"]) != "[]" {
			t.Errorf("unexpected body: %s", b)
		}
		_, _ = w.Write([]byte(`{"calendar":{"id":"c1"}}`))
	})

	if _, err := c.UpdateAvailability(context.Background(), "c1", AvailabilityUpdate{}); err != nil {
		t.Fatalf("UpdateAvailability: %v", err)
	}
}

func TestGroupsAndLocation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/calendars/groups":
			_, _ = w.Write([]byte(`{"groups":[{"id":"g1","name":"Kids"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/calendars/groups":
			_, _ = w.Write([]byte(`{"group":{"id":"g2","name":"Adults","slug":"adults"}}`))
		case r.URL.Path == "/locations/loc1":
			_, _ = w.Write([]byte(`{"location":{"id":"loc1","timezone":"America/Chicago"}}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	gs, err := c.ListGroups(ctx, "loc1")
	if err != nil || len(gs) != 1 || gs[0].ID != "g1" {
		t.Fatalf("unexpected groups %#v err=%v", gs, err)
	}

	g, err := c.CreateGroup(ctx, GroupInput{LocationID: "loc1", Name: "Adults", Slug: "adults"})
	if err != nil || g.ID != "g2" {
		t.Fatalf("unexpected group %#v err=%v", g, err)
	}

	loc, err := c.GetLocation(ctx, "loc1")
	if err != nil || loc.Timezone != "America/Chicago" {
		t.Fatalf("unexpected location %#v err=%v", loc, err)
	}
}

func TestBackendErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/calendars/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"statusCode":404,"message":"Calendar not found"}`))
		case "/calendars/bad":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"statusCode":422,"message":["slug must be unique","name is required"]}`))
		case "/calendars/revoked":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid JWT"}`))
		}
	})
	ctx := context.Background()

	_, err := c.GetCalendar(ctx, "missing")
	if !IsNotFound(err) || !strings.Contains(err.Error(), "Calendar not found") {
		t.Fatalf("expected not found, got %v", err)
	}
	if IsAmbiguous(err) {
		t.Fatalf("404 is not ambiguous")
	}

	_, err = c.UpdateCalendar(ctx, "bad", CalendarPayload{})
	var be *BackendError
	if !errors.As(err, &be) || be.Status != 422 || be.Message != "slug must be unique; name is required" {
		t.Fatalf("unexpected error: %#v", err)
	}

	_, err = c.GetCalendar(ctx, "revoked")
	var are *ghlauth.AuthRequiredError
	if !errors.As(err, &are) || are.LocationID != "loc1" {
		t.Fatalf("expected AuthRequiredError, got %T %v", err, err)
	}
	if IsAmbiguous(err) {
		t.Fatalf("auth errors are not ambiguous")
	}

	if _, err := c.GetCalendar(ctx, ""); !errors.Is(err, errEmptyCalendarID) {
		t.Fatalf("expected empty id error, got %v", err)
	}
}

func TestRetry_GetRetriedOn5xx(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"calendar":{"id":"c1"}}`))
	})

	cal, err := c.GetCalendar(context.Background(), "c1")
	if err != nil || cal.ID != "c1" {
		t.Fatalf("unexpected %#v err=%v", cal, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestRetry_PutReplaysBody(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(b), `"availabilityType":2`) {
			t.Errorf("body not replayed: %q", b)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"calendar":{"id":"c1"}}`))
	})

	if _, err := c.UpdateAvailability(context.Background(), "c1", AvailabilityUpdate{AvailabilityType: 2}); err != nil {
		t.Fatalf("UpdateAvailability: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestRetry_PostNotRetriedOn5xx(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.CreateCalendar(context.Background(), CalendarPayload{Slug: "yoga"})
	if !IsAmbiguous(err) {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("POST must not be replayed on 5xx, got %d calls", calls.Load())
	}
}

func TestRetry_PostRetriedOn429(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"group":{"id":"g1"}}`))
	})

	g, err := c.CreateGroup(context.Background(), GroupInput{Name: "Kids"})
	if err != nil || g.ID != "g1" {
		t.Fatalf("unexpected %#v err=%v", g, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestDecodeErrorIsAmbiguous(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"calendar":`))
	})

	_, err := c.CreateCalendar(context.Background(), CalendarPayload{})
	if !errors.Is(err, ErrDecode) || !IsAmbiguous(err) {
		t.Fatalf("expected ambiguous decode error, got %v", err)
	}
}

func TestIsAmbiguous(t *testing.T) {
	if IsAmbiguous(nil) {
		t.Fatalf("nil is not ambiguous")
	}
	if !IsAmbiguous(&BackendError{Status: 503}) {
		t.Fatalf("5xx is ambiguous")
	}
	if IsAmbiguous(&BackendError{Status: 400}) {
		t.Fatalf("4xx is not ambiguous")
	}
	if IsAmbiguous(context.Canceled) {
		t.Fatalf("cancellation is not ambiguous")
	}
}

func TestNewBaseTransport_TLSMinimum(t *testing.T) {
	transport := newBaseTransport()
	if transport == nil || transport.Proxy == nil {
		t.Fatalf("expected transport with proxy func")
	}

	if transport.TLSClientConfig == nil || transport.TLSClientConfig.MinVersion < tls.VersionTLS12 {
		t.Fatalf("expected TLS min version >= 1.2")
	}
}

func TestLimitTransport(t *testing.T) {
	if rt := newLimitTransport(http.DefaultTransport, 0); rt != http.DefaultTransport {
		t.Fatalf("zero rate should not wrap")
	}

	rt := newLimitTransport(http.DefaultTransport, 2)
	lt, ok := rt.(*limitTransport)
	if !ok || lt.limiter.Burst() != 2 {
		t.Fatalf("unexpected limiter: %#v", rt)
	}
}

func TestAvailability_RoundTripKeepsOriginalBytes(t *testing.T) {
	const in = `[{"id":"a1","date":"2025-11-27T05:00:00.000Z","openHours":[{"openHour":12,"openMinute":0,"closeHour":13,"closeMinute":0}],"deleted":false,"source":"ui"}]`

	var avs []Availability
	if err := json.Unmarshal([]byte(in), &avs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := avs[0].Ranges(); len(got) != 1 || got[0].CloseHour != 13 {
		t.Fatalf("unexpected ranges: %#v", got)
	}

	out, err := json.Marshal(avs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(out) != in {
		t.Fatalf("entry changed on round trip:\n got %s\nwant %s", out, in)
	}

	built, err := json.Marshal(Availability{Date: "2025-12-25T00:00:00.000Z", Hours: []HourRange{}})
	if err != nil {
		t.Fatalf("encode built entry: %v", err)
	}
	if string(built) != `{"date":"2025-12-25T00:00:00.000Z","hours":[],"deleted":false}` {
		t.Fatalf("unexpected built entry: %s", built)
	}
}
