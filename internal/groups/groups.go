// Package groups finds or creates calendar groups by name.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bradenrollio/easycal-sub000/internal/ghlapi"
	"github.com/bradenrollio/easycal-sub000/internal/payload"
)

var errEmptyGroupName = errors.New("empty group name")

// Backend is the part of the calendar API the resolver needs.
type Backend interface {
	ListGroups(ctx context.Context, locationID string) ([]ghlapi.Group, error)
	CreateGroup(ctx context.Context, in ghlapi.GroupInput) (ghlapi.Group, error)
}

// Cache maps group names to ids for one provisioning run. Keys are
// case-insensitive. Not safe for concurrent use.
type Cache struct {
	ids map[string]string
}

func NewCache() *Cache {
	return &Cache{ids: make(map[string]string)}
}

func cacheKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (c *Cache) Get(name string) (string, bool) {
	id, ok := c.ids[cacheKey(name)]
	return id, ok
}

func (c *Cache) Put(name, id string) {
	c.ids[cacheKey(name)] = id
}

type Resolver struct {
	Backend Backend
	Logger  *slog.Logger
}

// Ensure returns the id of the group called name, creating it when no group
// matches case-insensitively. Results land in cache.
func (r *Resolver) Ensure(ctx context.Context, cache *Cache, name string, locationID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errEmptyGroupName
	}

	id, found, err := r.Find(ctx, cache, name, locationID)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}

	created, err := r.Backend.CreateGroup(ctx, ghlapi.GroupInput{
		LocationID:  locationID,
		Name:        name,
		Description: name,
		Slug:        payload.Slugify(name),
		IsActive:    true,
	})
	if err != nil {
		return "", fmt.Errorf("create group %q: %w", name, err)
	}

	r.logger().Info("created calendar group", "name", name, "id", created.ID)
	cache.Put(name, created.ID)

	return created.ID, nil
}

// Find looks a group up by name without creating it.
func (r *Resolver) Find(ctx context.Context, cache *Cache, name string, locationID string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if id, ok := cache.Get(name); ok {
		return id, true, nil
	}

	existing, err := r.Backend.ListGroups(ctx, locationID)
	if err != nil {
		return "", false, fmt.Errorf("list groups: %w", err)
	}

	for _, g := range existing {
		if strings.EqualFold(strings.TrimSpace(g.Name), name) {
			cache.Put(name, g.ID)
			return g.ID, true, nil
		}
	}

	return "", false, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}
