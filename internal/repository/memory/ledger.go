package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// LedgerRepository keeps ledgers keyed by group and day.
type LedgerRepository struct {
	mu   sync.RWMutex
	days map[string]map[models.Day][]models.AttendanceRecord
}

// NewLedgerRepository creates an empty in-memory ledger repository.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{days: make(map[string]map[models.Day][]models.AttendanceRecord)}
}

func (r *LedgerRepository) Load(ctx context.Context, groupID string, day models.Day) ([]models.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.AttendanceRecord{}, r.days[groupID][day]...), nil
}

func (r *LedgerRepository) Save(ctx context.Context, groupID string, day models.Day, records []models.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.days[groupID] == nil {
		r.days[groupID] = make(map[models.Day][]models.AttendanceRecord)
	}
	r.days[groupID][day] = append([]models.AttendanceRecord(nil), records...)
	return nil
}

func (r *LedgerRepository) ListDays(ctx context.Context, groupID string) ([]models.Day, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	days := make([]models.Day, 0, len(r.days[groupID]))
	for d := range r.days[groupID] {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })
	return days, nil
}

var _ repository.LedgerRepository = (*LedgerRepository)(nil)
