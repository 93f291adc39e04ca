package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

type hallPassRepository struct {
	mu     sync.RWMutex
	nextID int64
	passes map[int64]*models.HallPass
}

// NewHallPassRepository creates an empty in-memory hall pass repository.
func NewHallPassRepository() repository.PassRepository {
	return &hallPassRepository{nextID: 1, passes: make(map[int64]*models.HallPass)}
}

func (r *hallPassRepository) Create(ctx context.Context, pass *models.HallPass) (*models.HallPass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.passes {
		if p.GroupID == pass.GroupID && p.MemberID == pass.MemberID && p.IsOpen() {
			return nil, fmt.Errorf("member %s already holds pass %d: %w", pass.MemberID, p.ID, repository.ErrConflict)
		}
	}
	pass.ID = r.nextID
	r.nextID++
	r.passes[pass.ID] = pass.Clone()
	return pass, nil
}

func (r *hallPassRepository) GetByID(ctx context.Context, id int64) (*models.HallPass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.passes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *hallPassRepository) GetOpen(ctx context.Context, groupID, memberID string) (*models.HallPass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *models.HallPass
	for _, p := range r.passes {
		if p.GroupID != groupID || p.MemberID != memberID || !p.IsOpen() {
			continue
		}
		if latest == nil || p.CheckOutTime.After(latest.CheckOutTime) {
			latest = p
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest.Clone(), nil
}

func (r *hallPassRepository) Complete(ctx context.Context, pass *models.HallPass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.passes[pass.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if !stored.IsOpen() {
		return fmt.Errorf("pass %d is %s: %w", pass.ID, stored.Status, repository.ErrConflict)
	}
	stored.CheckInTime = pass.CheckInTime
	stored.CheckInEvidenceRef = pass.CheckInEvidenceRef
	stored.CheckInNotes = pass.CheckInNotes
	stored.ActualDurationMinutes = pass.ActualDurationMinutes
	stored.Status = models.HallPassCompleted
	r.passes[pass.ID] = stored.Clone()
	return nil
}

func (r *hallPassRepository) MarkOverdue(ctx context.Context, groupID string, now time.Time) ([]*models.HallPass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var flipped []*models.HallPass
	for _, p := range r.passes {
		if groupID != "" && p.GroupID != groupID {
			continue
		}
		if p.IsOverdueAt(now) {
			p.Status = models.HallPassOverdue
			flipped = append(flipped, p.Clone())
		}
	}
	sortByCheckOutDesc(flipped)
	return flipped, nil
}

func (r *hallPassRepository) List(ctx context.Context, filters repository.PassFilters) ([]*models.HallPass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var passes []*models.HallPass
	for _, p := range r.passes {
		if filters.Matches(p) {
			passes = append(passes, p.Clone())
		}
	}
	sortByCheckOutDesc(passes)
	return passes, nil
}

func sortByCheckOutDesc(passes []*models.HallPass) {
	sort.Slice(passes, func(i, j int) bool {
		if passes[i].CheckOutTime.Equal(passes[j].CheckOutTime) {
			return passes[i].ID > passes[j].ID
		}
		return passes[i].CheckOutTime.After(passes[j].CheckOutTime)
	})
}
