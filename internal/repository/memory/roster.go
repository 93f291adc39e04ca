// Package memory provides in-process repositories. They back the test suite
// and PASS_STORE=memory deployments where durability is not wanted.
package memory

import (
	"context"
	"sync"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// RosterRepository keeps roster tables keyed by roster reference.
type RosterRepository struct {
	mu     sync.RWMutex
	tables map[string]*models.RosterTable
}

// NewRosterRepository creates an empty in-memory roster repository.
func NewRosterRepository() *RosterRepository {
	return &RosterRepository{tables: make(map[string]*models.RosterTable)}
}

// Put seeds a group's table, keyed by the group's roster reference.
func (r *RosterRepository) Put(rosterRef string, table *models.RosterTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[rosterRef] = copyTable(table)
}

func (r *RosterRepository) Load(ctx context.Context, group models.GroupConfig) (*models.RosterTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[group.RosterRef]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTable(t), nil
}

func (r *RosterRepository) Save(ctx context.Context, group models.GroupConfig, table *models.RosterTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Put(group.RosterRef, table)
	return nil
}

func copyTable(t *models.RosterTable) *models.RosterTable {
	if t == nil {
		return &models.RosterTable{}
	}
	c := &models.RosterTable{Header: append([]string(nil), t.Header...)}
	for _, row := range t.Rows {
		c.Rows = append(c.Rows, append([]string(nil), row...))
	}
	return c
}

var _ repository.RosterRepository = (*RosterRepository)(nil)
