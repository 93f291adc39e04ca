package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kerhoff/rollcall/internal/analytics"
	"github.com/Kerhoff/rollcall/internal/clock"
	"github.com/Kerhoff/rollcall/internal/metrics"
	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// Settings carries the non-repository dependencies of a Service.
type Settings struct {
	Clock              clock.Clock
	Location           *time.Location
	DefaultPassMinutes int
	Metrics            *metrics.Metrics
}

// Service is the central business logic layer that holds the roster, ledger
// and hall pass components and the glue the hosts call.
type Service struct {
	logger  *logrus.Logger
	clock   clock.Clock
	loc     *time.Location
	Groups  *Groups
	Rosters *RosterStore
	Ledger  *DailyLedger
	Passes  *HallPassTracker
	Sweeper *OverdueSweeper
	Chats   *ChatBindings
	Metrics *metrics.Metrics
}

// New creates a new Service with all required dependencies.
func New(logger *logrus.Logger, groups *Groups,
	rosters repository.RosterRepository,
	ledgers repository.LedgerRepository,
	passes repository.PassRepository,
	settings Settings,
) *Service {
	if settings.Clock == nil {
		settings.Clock = clock.Real()
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}

	rosterStore := NewRosterStore(rosters, groups, logger)
	tracker := NewHallPassTracker(passes, rosterStore, groups, settings.Clock, settings.Location,
		settings.DefaultPassMinutes, settings.Metrics, logger)

	return &Service{
		logger:  logger,
		clock:   settings.Clock,
		loc:     settings.Location,
		Groups:  groups,
		Rosters: rosterStore,
		Ledger:  NewDailyLedger(ledgers, rosterStore, groups, settings.Metrics, logger),
		Passes:  tracker,
		Sweeper: NewOverdueSweeper(tracker, logger),
		Chats:   NewChatBindings(groups.List()),
		Metrics: settings.Metrics,
	}
}

// Location is the civil time zone of the service.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Now is the current instant according to the service clock.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Today is the current civil date.
func (s *Service) Today() models.Day {
	return models.DayOf(s.clock.Now(), s.loc)
}

// CheckInNow checks the member in for today and returns the result together
// with the member's first name for greeting.
func (s *Service) CheckInNow(ctx context.Context, groupID, memberID, evidenceRef string) (models.CheckInResult, string, error) {
	member, err := s.Rosters.Lookup(ctx, groupID, memberID)
	if err != nil {
		return models.CheckInResult{}, "", err
	}
	now := s.clock.Now()
	result, err := s.Ledger.CheckIn(ctx, groupID, models.DayOf(now, s.loc), member, now, evidenceRef)
	if err != nil {
		return models.CheckInResult{}, "", err
	}
	return result, member.FirstName(), nil
}

// DaySummary lists who checked in on day, in check-in order, and which roster
// members did not, sorted by name.
func (s *Service) DaySummary(ctx context.Context, groupID string, day models.Day) (*models.DaySummary, error) {
	group, err := s.Groups.Resolve(groupID)
	if err != nil {
		return nil, err
	}
	roster, err := s.Rosters.Load(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	present, err := s.Ledger.ListDay(ctx, group.ID, day)
	if err != nil {
		return nil, err
	}

	seen := analytics.NewPresentSet(present)
	absent := make([]models.Member, 0, len(roster))
	for _, m := range roster {
		if _, ok := seen[m.ID]; !ok {
			absent = append(absent, m)
		}
	}
	sort.SliceStable(absent, func(i, j int) bool {
		return absent[i].DisplayName < absent[j].DisplayName
	})

	return &models.DaySummary{
		GroupID: group.ID,
		Day:     day,
		Present: present,
		Absent:  absent,
	}, nil
}

// GroupAnalytics runs the attendance analysis over every stored day of the
// group against its current roster.
func (s *Service) GroupAnalytics(ctx context.Context, groupID string) (models.Report, error) {
	group, err := s.Groups.Resolve(groupID)
	if err != nil {
		return models.Report{}, err
	}
	roster, err := s.Rosters.Load(ctx, group.ID)
	if err != nil {
		return models.Report{}, err
	}
	days, err := s.Ledger.ListAvailableDays(ctx, group.ID)
	if err != nil {
		return models.Report{}, err
	}

	perDay := make(map[models.Day]analytics.PresentSet, len(days))
	for _, day := range days {
		records, err := s.Ledger.ListDay(ctx, group.ID, day)
		if err != nil {
			return models.Report{}, fmt.Errorf("failed to load ledger for %s: %w", day, err)
		}
		perDay[day] = analytics.NewPresentSet(records)
	}

	return analytics.Analyze(roster, perDay), nil
}

// VerifyGroupSecret reports whether secret opens the group. A group without
// a configured secret is open.
func (s *Service) VerifyGroupSecret(groupID, secret string) (bool, error) {
	group, err := s.Groups.Resolve(groupID)
	if err != nil {
		return false, err
	}
	if group.AccessSecret == "" {
		return true, nil
	}
	ok := CheckSecret(group.AccessSecret, secret)
	if !ok {
		s.logger.WithField("group_id", group.ID).Warn("Rejected group secret")
	}
	return ok, nil
}

// LinkChat makes chatID the alert chat of the group once secret opens it.
func (s *Service) LinkChat(groupID string, chatID int64, secret string) (models.GroupConfig, error) {
	group, err := s.Groups.Resolve(groupID)
	if err != nil {
		return models.GroupConfig{}, err
	}
	ok, err := s.VerifyGroupSecret(group.ID, secret)
	if err != nil {
		return models.GroupConfig{}, err
	}
	if !ok {
		return models.GroupConfig{}, fmt.Errorf("%w: group %s", ErrInvalidSecret, group.ID)
	}

	s.Chats.Bind(group.ID, chatID)
	s.logger.WithFields(logrus.Fields{
		"group_id": group.ID,
		"chat_id":  chatID,
	}).Info("Linked chat to group")
	return group, nil
}

// CheckSecret compares a supplied secret against a stored one. Stored values
// that look like bcrypt hashes are verified with bcrypt; anything else is
// compared in constant time.
func CheckSecret(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
