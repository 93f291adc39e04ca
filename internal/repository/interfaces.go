package repository

import (
	"context"
	"time"

	"github.com/Kerhoff/rollcall/internal/models"
)

// RosterRepository defines the interface for roster source operations.
// Implementations hand back raw tables; column resolution happens in the core.
type RosterRepository interface {
	// Load returns ErrNotFound when the group's roster source does not exist.
	Load(ctx context.Context, group models.GroupConfig) (*models.RosterTable, error)
	Save(ctx context.Context, group models.GroupConfig, table *models.RosterTable) error
}

// LedgerRepository defines the interface for daily attendance ledgers.
// Save must replace the whole day atomically: a concurrent Load observes
// either the previous set or the new one.
type LedgerRepository interface {
	// Load returns an empty slice when no ledger exists for the day.
	Load(ctx context.Context, groupID string, day models.Day) ([]models.AttendanceRecord, error)
	Save(ctx context.Context, groupID string, day models.Day, records []models.AttendanceRecord) error
	// ListDays returns the days that have a ledger, most recent first.
	ListDays(ctx context.Context, groupID string) ([]models.Day, error)
}

// PassRepository defines the interface for hall pass storage
type PassRepository interface {
	// Create assigns an ID. It returns ErrConflict when the member already
	// holds an open pass in the group.
	Create(ctx context.Context, pass *models.HallPass) (*models.HallPass, error)
	GetByID(ctx context.Context, id int64) (*models.HallPass, error)
	// GetOpen returns the member's active or overdue pass, or ErrNotFound.
	GetOpen(ctx context.Context, groupID, memberID string) (*models.HallPass, error)
	// Complete stores the check-in fields of pass. It returns ErrConflict
	// when the stored pass is no longer open and ErrNotFound when it is gone.
	Complete(ctx context.Context, pass *models.HallPass) error
	// MarkOverdue flips active passes whose deadline is before now and
	// returns the flipped passes. An empty groupID covers every group.
	MarkOverdue(ctx context.Context, groupID string, now time.Time) ([]*models.HallPass, error)
	List(ctx context.Context, filters PassFilters) ([]*models.HallPass, error)
}

// PassFilters represents filters for querying hall passes. Results are
// ordered by checkout time, most recent first.
type PassFilters struct {
	GroupID  string
	Statuses []models.HallPassStatus
	// From and To bound the checkout instant as [From, To).
	From *time.Time
	To   *time.Time
}

// Matches reports whether pass satisfies the filters. In-process stores use
// it; SQL stores translate the same fields into WHERE clauses.
func (f PassFilters) Matches(pass *models.HallPass) bool {
	if f.GroupID != "" && pass.GroupID != f.GroupID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if pass.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && pass.CheckOutTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !pass.CheckOutTime.Before(*f.To) {
		return false
	}
	return true
}
