package service

import (
	"fmt"

	"github.com/Kerhoff/rollcall/internal/models"
)

// Groups resolves group ids against the configured groups.
type Groups struct {
	byID      map[string]models.GroupConfig
	order     []string
	defaultID string
}

// NewGroups indexes groups. An empty defaultID selects the first group.
func NewGroups(groups []models.GroupConfig, defaultID string) *Groups {
	g := &Groups{byID: make(map[string]models.GroupConfig, len(groups))}
	for _, group := range groups {
		if _, dup := g.byID[group.ID]; dup {
			continue
		}
		g.byID[group.ID] = group
		g.order = append(g.order, group.ID)
	}
	if defaultID == "" && len(g.order) > 0 {
		defaultID = g.order[0]
	}
	g.defaultID = defaultID
	return g
}

// Resolve returns the group for id; an empty id means the default group.
func (g *Groups) Resolve(id string) (models.GroupConfig, error) {
	if id == "" {
		id = g.defaultID
	}
	group, ok := g.byID[id]
	if !ok {
		return models.GroupConfig{}, fmt.Errorf("%w: %q", ErrGroupNotFound, id)
	}
	return group, nil
}

// List returns the groups in configuration order.
func (g *Groups) List() []models.GroupConfig {
	out := make([]models.GroupConfig, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.byID[id])
	}
	return out
}

// DefaultID is the id used when a request names no group.
func (g *Groups) DefaultID() string {
	return g.defaultID
}
