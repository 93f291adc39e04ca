package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/metrics"
	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// DailyLedger records the first check-in of each member per group and day.
type DailyLedger struct {
	repo    repository.LedgerRepository
	rosters *RosterStore
	groups  *Groups
	locks   *keyedMutex
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewDailyLedger creates a DailyLedger over repo.
func NewDailyLedger(repo repository.LedgerRepository, rosters *RosterStore, groups *Groups, m *metrics.Metrics, logger *logrus.Logger) *DailyLedger {
	return &DailyLedger{
		repo:    repo,
		rosters: rosters,
		groups:  groups,
		locks:   newKeyedMutex(),
		metrics: m,
		logger:  logger,
	}
}

func validDay(day models.Day) error {
	if _, err := models.ParseDay(string(day)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDay, string(day))
	}
	return nil
}

// CheckIn records member as present on day unless they already are. The
// existing record is never changed: later check-ins report CheckInAlready
// and hand back the first record.
func (l *DailyLedger) CheckIn(ctx context.Context, groupID string, day models.Day, member models.Member, timestamp time.Time, evidenceRef string) (models.CheckInResult, error) {
	group, err := l.groups.Resolve(groupID)
	if err != nil {
		return models.CheckInResult{}, err
	}
	if err := validDay(day); err != nil {
		return models.CheckInResult{}, err
	}
	memberID := strings.TrimSpace(member.ID)
	if memberID == "" {
		return models.CheckInResult{}, ErrEmptyMemberID
	}

	enrolled, err := l.rosters.Lookup(ctx, group.ID, memberID)
	if err != nil {
		return models.CheckInResult{}, err
	}

	log := l.logger.WithFields(logrus.Fields{
		"group_id":  group.ID,
		"member_id": memberID,
		"day":       day,
	})

	unlock := l.locks.Lock(group.ID + "|" + string(day))
	defer unlock()

	records, err := l.repo.Load(ctx, group.ID, day)
	if err != nil {
		l.metrics.StorageError("ledger.load")
		return models.CheckInResult{}, &PersistenceError{Op: "load ledger", Err: err}
	}

	for i := range records {
		if records[i].MemberID == memberID {
			existing := records[i]
			log.Debug("Member already checked in")
			l.metrics.CheckIn(group.ID, string(models.CheckInAlready))
			return models.CheckInResult{Status: models.CheckInAlready, Record: &existing}, nil
		}
	}

	record := models.AttendanceRecord{
		MemberID:    memberID,
		MemberName:  enrolled.DisplayName,
		GroupID:     group.ID,
		Day:         day,
		Timestamp:   timestamp.UTC(),
		EvidenceRef: evidenceRef,
	}

	// records is a fresh copy from the repository; dropping it on failure
	// leaves nothing behind.
	if err := l.repo.Save(ctx, group.ID, day, append(records, record)); err != nil {
		l.metrics.StorageError("ledger.save")
		log.WithError(err).Error("Failed to save ledger")
		return models.CheckInResult{}, &PersistenceError{Op: "save ledger", Err: err}
	}

	log.Info("Member checked in")
	l.metrics.CheckIn(group.ID, string(models.CheckInNew))
	return models.CheckInResult{Status: models.CheckInNew, Record: &record}, nil
}

// ListDay returns the day's records in check-in order. A day without a
// ledger yields an empty slice.
func (l *DailyLedger) ListDay(ctx context.Context, groupID string, day models.Day) ([]models.AttendanceRecord, error) {
	group, err := l.groups.Resolve(groupID)
	if err != nil {
		return nil, err
	}
	if err := validDay(day); err != nil {
		return nil, err
	}
	records, err := l.repo.Load(ctx, group.ID, day)
	if err != nil {
		return nil, &PersistenceError{Op: "load ledger", Err: err}
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

// ListAvailableDays returns the days with a ledger, most recent first.
func (l *DailyLedger) ListAvailableDays(ctx context.Context, groupID string) ([]models.Day, error) {
	group, err := l.groups.Resolve(groupID)
	if err != nil {
		return nil, err
	}
	days, err := l.repo.ListDays(ctx, group.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "list ledger days", Err: err}
	}
	return days, nil
}
