package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

const rosterSheet = "Roster"

type rosterRepository struct {
	dir string
	mu  sync.Mutex
}

// NewRosterRepository reads roster workbooks relative to dir. A group's
// RosterRef is the workbook path inside dir.
func NewRosterRepository(dir string) repository.RosterRepository {
	return &rosterRepository{dir: dir}
}

func (r *rosterRepository) path(group models.GroupConfig) (string, error) {
	if group.RosterRef == "" {
		return "", fmt.Errorf("group %s has no roster configured: %w", group.ID, repository.ErrNotFound)
	}
	if filepath.IsAbs(group.RosterRef) {
		return filepath.Clean(group.RosterRef), nil
	}
	return filepath.Join(r.dir, filepath.Clean(group.RosterRef)), nil
}

func (r *rosterRepository) Load(ctx context.Context, group models.GroupConfig) (*models.RosterTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.path(group)
	if err != nil {
		return nil, err
	}

	rows, err := readRows(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("roster %s: %w", group.RosterRef, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read roster %s: %w", group.RosterRef, errors.Join(repository.ErrUnavailable, err))
	}

	table := &models.RosterTable{}
	if len(rows) > 0 {
		table.Header = rows[0]
		table.Rows = rows[1:]
	}
	return table, nil
}

func (r *rosterRepository) Save(ctx context.Context, group models.GroupConfig, table *models.RosterTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := r.path(group)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := newWorkbook(rosterSheet)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeRow(f, rosterSheet, 1, table.Header); err != nil {
		return fmt.Errorf("failed to write roster header: %w", err)
	}
	for i, row := range table.Rows {
		if err := writeRow(f, rosterSheet, i+2, row); err != nil {
			return fmt.Errorf("failed to write roster row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(rosterSheet, "A", "A", 28)
	_ = f.SetColWidth(rosterSheet, "B", "B", 14)

	if err := writeAtomic(path, f); err != nil {
		return fmt.Errorf("failed to save roster %s: %w", group.RosterRef, errors.Join(repository.ErrUnavailable, err))
	}
	return nil
}
