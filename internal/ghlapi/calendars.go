package ghlapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

var errEmptyCalendarID = errors.New("empty calendar id")

type calendarEnvelope struct {
	Calendar Calendar `json:"calendar"`
}

func (c *Client) ListCalendars(ctx context.Context, locationID string) ([]Calendar, error) {
	var out struct {
		Calendars []Calendar `json:"calendars"`
	}
	if err := c.do(ctx, http.MethodGet, "/calendars/", url.Values{"locationId": {locationID}}, nil, &out); err != nil {
		return nil, err
	}

	return out.Calendars, nil
}

func (c *Client) GetCalendar(ctx context.Context, id string) (Calendar, error) {
	if id == "" {
		return Calendar{}, errEmptyCalendarID
	}

	var out calendarEnvelope
	if err := c.do(ctx, http.MethodGet, "/calendars/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Calendar{}, err
	}

	return out.Calendar, nil
}

func (c *Client) CreateCalendar(ctx context.Context, p CalendarPayload) (Calendar, error) {
	var out calendarEnvelope
	if err := c.do(ctx, http.MethodPost, "/calendars/", nil, p, &out); err != nil {
		return Calendar{}, err
	}

	return out.Calendar, nil
}

func (c *Client) UpdateCalendar(ctx context.Context, id string, p CalendarPayload) (Calendar, error) {
	if id == "" {
		return Calendar{}, errEmptyCalendarID
	}

	var out calendarEnvelope
	if err := c.do(ctx, http.MethodPut, "/calendars/"+url.PathEscape(id), nil, p, &out); err != nil {
		return Calendar{}, err
	}

	return out.Calendar, nil
}

// UpdateAvailability sends only the weekly grid, availability type and
// date-specific entries.
func (c *Client) UpdateAvailability(ctx context.Context, id string, u AvailabilityUpdate) (Calendar, error) {
	if id == "" {
		return Calendar{}, errEmptyCalendarID
	}

	if u.OpenHours == nil {
		u.OpenHours = []OpenHour{}
	}
	if u.Availabilities == nil {
		u.Availabilities = []Availability{}
	}

	var out calendarEnvelope
	if err := c.do(ctx, http.MethodPut, "/calendars/"+url.PathEscape(id), nil, u, &out); err != nil {
		return Calendar{}, err
	}

	return out.Calendar, nil
}
