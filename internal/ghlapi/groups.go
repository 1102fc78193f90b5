package ghlapi

import (
	"context"
	"net/http"
	"net/url"
)

func (c *Client) ListGroups(ctx context.Context, locationID string) ([]Group, error) {
	var out struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/calendars/groups", url.Values{"locationId": {locationID}}, nil, &out); err != nil {
		return nil, err
	}

	return out.Groups, nil
}

func (c *Client) CreateGroup(ctx context.Context, in GroupInput) (Group, error) {
	var out struct {
		Group Group `json:"group"`
	}
	if err := c.do(ctx, http.MethodPost, "/calendars/groups", nil, in, &out); err != nil {
		return Group{}, err
	}

	return out.Group, nil
}

// GetLocation returns the location record; only the timezone is used.
func (c *Client) GetLocation(ctx context.Context, id string) (Location, error) {
	var out struct {
		Location Location `json:"location"`
	}
	if err := c.do(ctx, http.MethodGet, "/locations/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Location{}, err
	}

	return out.Location, nil
}
