package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/clock"
	"github.com/Kerhoff/rollcall/internal/metrics"
	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// DefaultPassMinutes is used when no default is configured.
const DefaultPassMinutes = 10

// HallPassTracker runs the hall pass lifecycle: checkout, overdue
// reclassification and checkin. A member holds at most one open pass per
// group.
type HallPassTracker struct {
	repo           repository.PassRepository
	rosters        *RosterStore
	groups         *Groups
	clock          clock.Clock
	loc            *time.Location
	defaultMinutes int
	locks          *keyedMutex
	metrics        *metrics.Metrics
	logger         *logrus.Logger
}

// NewHallPassTracker creates a tracker. Durations of zero minutes fall back
// to defaultMinutes.
func NewHallPassTracker(repo repository.PassRepository, rosters *RosterStore, groups *Groups, clk clock.Clock, loc *time.Location, defaultMinutes int, m *metrics.Metrics, logger *logrus.Logger) *HallPassTracker {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultPassMinutes
	}
	if loc == nil {
		loc = time.UTC
	}
	return &HallPassTracker{
		repo:           repo,
		rosters:        rosters,
		groups:         groups,
		clock:          clk,
		loc:            loc,
		defaultMinutes: defaultMinutes,
		locks:          newKeyedMutex(),
		metrics:        m,
		logger:         logger,
	}
}

// storedPrecision is the finest time unit every pass store keeps.
const storedPrecision = time.Millisecond

func (t *HallPassTracker) now() time.Time {
	return t.clock.Now().In(t.loc)
}

// observe reports pass with the status it has at now, without writing.
func (t *HallPassTracker) observe(pass *models.HallPass, now time.Time) *models.HallPass {
	if pass.IsOverdueAt(now) {
		pass.Status = models.HallPassOverdue
	}
	return pass
}

// Checkout issues a pass to the member. It fails with *PassAlreadyActiveError
// carrying the open pass when the member already has one.
func (t *HallPassTracker) Checkout(ctx context.Context, groupID, memberID, reason string, durationMinutes int, evidenceRef string) (*models.HallPass, error) {
	group, err := t.groups.Resolve(groupID)
	if err != nil {
		return nil, err
	}
	if durationMinutes < 0 {
		return nil, ErrInvalidDuration
	}
	if durationMinutes == 0 {
		durationMinutes = t.defaultMinutes
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, ErrEmptyMemberID
	}

	member, err := t.rosters.Lookup(ctx, group.ID, memberID)
	if err != nil {
		return nil, err
	}

	log := t.logger.WithFields(logrus.Fields{
		"group_id":  group.ID,
		"member_id": memberID,
	})

	unlock := t.locks.Lock(group.ID + "|" + memberID)
	defer unlock()

	now := t.now().Truncate(storedPrecision)
	open, err := t.repo.GetOpen(ctx, group.ID, memberID)
	switch {
	case err == nil:
		log.WithField("pass_id", open.ID).Warn("Member already has an open hall pass")
		return nil, &PassAlreadyActiveError{Pass: t.observe(open, now)}
	case !errors.Is(err, repository.ErrNotFound):
		t.metrics.StorageError("hallpass.get_open")
		return nil, &PersistenceError{Op: "look up open hall pass", Err: err}
	}

	pass := &models.HallPass{
		GroupID:                 group.ID,
		MemberID:                memberID,
		MemberName:              member.DisplayName,
		CheckOutTime:            now.UTC(),
		ExpectedDurationMinutes: durationMinutes,
		CheckOutEvidenceRef:     evidenceRef,
		CheckOutReason:          strings.TrimSpace(reason),
		Status:                  models.HallPassActive,
	}

	created, err := t.repo.Create(ctx, pass)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// another process won the race
			if open, getErr := t.repo.GetOpen(ctx, group.ID, memberID); getErr == nil {
				return nil, &PassAlreadyActiveError{Pass: t.observe(open, now)}
			}
			return nil, &PassAlreadyActiveError{}
		}
		t.metrics.StorageError("hallpass.create")
		log.WithError(err).Error("Failed to create hall pass")
		return nil, &PersistenceError{Op: "create hall pass", Err: err}
	}

	log.WithFields(logrus.Fields{
		"pass_id":  created.ID,
		"duration": durationMinutes,
	}).Info("Hall pass checked out")
	t.metrics.PassCheckout(group.ID)

	return created, nil
}

// Checkin completes an open pass and returns the whole minutes the member
// was out.
func (t *HallPassTracker) Checkin(ctx context.Context, passID int64, evidenceRef, notes string) (int, error) {
	pass, err := t.getPass(ctx, passID)
	if err != nil {
		return 0, err
	}

	unlock := t.locks.Lock(pass.GroupID + "|" + pass.MemberID)
	defer unlock()

	// reread under the lock so a concurrent checkin is seen
	pass, err = t.getPass(ctx, passID)
	if err != nil {
		return 0, err
	}
	if !pass.IsOpen() {
		return 0, fmt.Errorf("%w: pass %d is %s", ErrPassNotActive, passID, pass.Status)
	}

	now := t.now().Truncate(storedPrecision)
	minutes := elapsedMinutes(pass.CheckOutTime.In(t.loc), now)

	checkIn := now.UTC()
	pass.CheckInTime = &checkIn
	pass.ActualDurationMinutes = &minutes
	if evidenceRef != "" {
		pass.CheckInEvidenceRef = &evidenceRef
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		pass.CheckInNotes = &notes
	}

	if err := t.repo.Complete(ctx, pass); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return 0, fmt.Errorf("%w: pass %d", ErrPassNotActive, passID)
		case errors.Is(err, repository.ErrNotFound):
			return 0, fmt.Errorf("%w: %d", ErrPassNotFound, passID)
		}
		t.metrics.StorageError("hallpass.complete")
		return 0, &PersistenceError{Op: "complete hall pass", Err: err}
	}
	pass.Status = models.HallPassCompleted

	t.logger.WithFields(logrus.Fields{
		"group_id":  pass.GroupID,
		"member_id": pass.MemberID,
		"pass_id":   pass.ID,
		"minutes":   minutes,
	}).Info("Hall pass checked in")
	t.metrics.PassCheckin(pass.GroupID)

	return minutes, nil
}

// elapsedMinutes floors the time between two instants to whole minutes.
// Instants are compared absolutely so DST shifts do not skew the result.
func elapsedMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

func (t *HallPassTracker) getPass(ctx context.Context, passID int64) (*models.HallPass, error) {
	pass, err := t.repo.GetByID(ctx, passID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPassNotFound, passID)
		}
		return nil, &PersistenceError{Op: "get hall pass", Err: err}
	}
	return pass, nil
}

// Get returns one pass with its current status.
func (t *HallPassTracker) Get(ctx context.Context, passID int64) (*models.HallPass, error) {
	pass, err := t.getPass(ctx, passID)
	if err != nil {
		return nil, err
	}
	return t.observe(pass, t.now()), nil
}

// ReclassifyOverdue flips active passes past their deadline to overdue and
// returns how many changed. An empty groupID covers every group.
func (t *HallPassTracker) ReclassifyOverdue(ctx context.Context, groupID string) (int, error) {
	flipped, err := t.reclassify(ctx, groupID)
	return len(flipped), err
}

func (t *HallPassTracker) reclassify(ctx context.Context, groupID string) ([]*models.HallPass, error) {
	if groupID != "" {
		group, err := t.groups.Resolve(groupID)
		if err != nil {
			return nil, err
		}
		groupID = group.ID
	}

	flipped, err := t.repo.MarkOverdue(ctx, groupID, t.now())
	if err != nil {
		t.metrics.StorageError("hallpass.mark_overdue")
		return nil, &PersistenceError{Op: "mark overdue hall passes", Err: err}
	}

	perGroup := make(map[string]int)
	for _, p := range flipped {
		perGroup[p.GroupID]++
		t.logger.WithFields(logrus.Fields{
			"group_id":  p.GroupID,
			"member_id": p.MemberID,
			"pass_id":   p.ID,
		}).Info("Hall pass is overdue")
	}
	for g, n := range perGroup {
		t.metrics.Overdue(g, n)
	}
	return flipped, nil
}

// ActiveOrOverdue returns the group's open passes, most recent checkout
// first. Overdue passes are reclassified before the read.
func (t *HallPassTracker) ActiveOrOverdue(ctx context.Context, groupID string) ([]*models.HallPass, error) {
	group, err := t.groups.Resolve(groupID)
	if err != nil {
		return nil, err
	}
	if _, err := t.reclassify(ctx, group.ID); err != nil {
		return nil, err
	}

	passes, err := t.repo.List(ctx, repository.PassFilters{
		GroupID:  group.ID,
		Statuses: models.OpenStatuses,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "list open hall passes", Err: err}
	}

	now := t.now()
	active, overdue := 0, 0
	for _, p := range passes {
		t.observe(p, now)
		if p.Status == models.HallPassOverdue {
			overdue++
		} else {
			active++
		}
	}
	t.metrics.SetOpenPasses(group.ID, active, overdue)

	return passes, nil
}

// History returns the group's passes, most recent checkout first. A non-nil
// day keeps only passes checked out on that civil date.
func (t *HallPassTracker) History(ctx context.Context, groupID string, day *models.Day) ([]*models.HallPass, error) {
	group, err := t.groups.Resolve(groupID)
	if err != nil {
		return nil, err
	}

	filters := repository.PassFilters{GroupID: group.ID}
	if day != nil {
		start, end, err := day.Bounds(t.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDay, string(*day))
		}
		start, end = start.UTC(), end.UTC()
		filters.From = &start
		filters.To = &end
	}

	if _, err := t.reclassify(ctx, group.ID); err != nil {
		return nil, err
	}

	passes, err := t.repo.List(ctx, filters)
	if err != nil {
		return nil, &PersistenceError{Op: "list hall passes", Err: err}
	}
	now := t.now()
	for _, p := range passes {
		t.observe(p, now)
	}
	return passes, nil
}
