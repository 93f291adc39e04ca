package xlsx

import (
	"context"
	"errors"
	"testing"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

func TestRosterSaveLoad(t *testing.T) {
	repo := NewRosterRepository(t.TempDir())
	ctx := context.Background()
	group := models.GroupConfig{ID: "p1", RosterRef: "rosters/p1.xlsx"}

	table := &models.RosterTable{
		Header: []string{"Student", "S Number"},
		Rows: [][]string{
			{"Ada Lovelace", "000123"},
			{"Bob", "456"},
		},
	}
	if err := repo.Save(ctx, group, table); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := repo.Load(ctx, group)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Header) != 2 || loaded.Header[1] != "S Number" {
		t.Fatalf("unexpected header %v", loaded.Header)
	}
	if len(loaded.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(loaded.Rows))
	}
	if loaded.Rows[0][1] != "000123" {
		t.Errorf("expected text id 000123, got %q", loaded.Rows[0][1])
	}
}

func TestRosterLoadMissing(t *testing.T) {
	repo := NewRosterRepository(t.TempDir())

	_, err := repo.Load(context.Background(), models.GroupConfig{ID: "p1", RosterRef: "nope.xlsx"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRosterNoRef(t *testing.T) {
	repo := NewRosterRepository(t.TempDir())

	_, err := repo.Load(context.Background(), models.GroupConfig{ID: "p1"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
