package provision

import (
	"context"
	"strings"
)

// slugIndex maps slugs to calendar ids for one location. It is loaded on
// first use and kept current as the run creates calendars.
type slugIndex struct {
	backend    Backend
	locationID string
	ids        map[string]string
}

func (x *slugIndex) load(ctx context.Context) error {
	cals, err := x.backend.ListCalendars(ctx, x.locationID)
	if err != nil {
		return err
	}

	ids := make(map[string]string, len(cals))
	for _, c := range cals {
		if slug := strings.TrimSpace(c.Slug); slug != "" && c.ID != "" {
			ids[slug] = c.ID
		}
	}
	x.ids = ids

	return nil
}

func (x *slugIndex) lookup(ctx context.Context, slug string) (string, bool, error) {
	if x.ids == nil {
		if err := x.load(ctx); err != nil {
			return "", false, err
		}
	}

	id, ok := x.ids[slug]

	return id, ok, nil
}

// verify reloads the index from the platform and looks slug up again.
func (x *slugIndex) verify(ctx context.Context, slug string) (string, bool, error) {
	if err := x.load(ctx); err != nil {
		return "", false, err
	}

	id, ok := x.ids[slug]

	return id, ok, nil
}

func (x *slugIndex) put(slug, id string) {
	if x.ids == nil {
		x.ids = make(map[string]string)
	}
	x.ids[slug] = id
}
