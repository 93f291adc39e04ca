package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// Canonical roster headers written when a roster is created from scratch.
const (
	rosterNameHeader = "Name"
	rosterIDHeader   = "s-number"
)

var (
	nameAliases = []string{"name", "student", "student-name", "full-name"}
	idAliases   = []string{"s-number", "snumber", "s-no", "id", "student-id", "student-number"}
)

// normalizeHeader folds case, whitespace and separators so that "S Number",
// "s_number" and "S-Number" compare equal.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Join(strings.Fields(h), "-")
	return strings.ReplaceAll(h, "_", "-")
}

// resolveColumns returns the indexes of the name and id columns, or -1.
func resolveColumns(header []string) (nameIdx, idIdx int) {
	find := func(aliases []string) int {
		for _, alias := range aliases {
			for i, h := range header {
				if normalizeHeader(h) == alias {
					return i
				}
			}
		}
		return -1
	}
	return find(nameAliases), find(idAliases)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// membersFromTable converts a raw table into canonical members. Rows with an
// empty id are skipped and the first occurrence of an id wins.
func membersFromTable(table *models.RosterTable) ([]models.Member, error) {
	nameIdx, idIdx := resolveColumns(table.Header)
	if nameIdx < 0 || idIdx < 0 {
		return nil, fmt.Errorf("%w: header %q", ErrRosterMalformed, table.Header)
	}
	members := make([]models.Member, 0, len(table.Rows))
	seen := make(map[string]bool, len(table.Rows))
	for _, row := range table.Rows {
		id := cell(row, idIdx)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, models.Member{ID: id, DisplayName: cell(row, nameIdx)})
	}
	return members, nil
}

// RosterStore loads and extends group rosters. Reads run concurrently;
// AddMembers is serialized.
type RosterStore struct {
	repo   repository.RosterRepository
	groups *Groups
	logger *logrus.Logger
	mu     sync.RWMutex
}

// NewRosterStore creates a RosterStore over repo.
func NewRosterStore(repo repository.RosterRepository, groups *Groups, logger *logrus.Logger) *RosterStore {
	return &RosterStore{repo: repo, groups: groups, logger: logger}
}

// Load returns the group's members in roster order.
func (s *RosterStore) Load(ctx context.Context, groupID string) ([]models.Member, error) {
	group, err := s.groups.Resolve(groupID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.repo.Load(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("%w: group %s: %w", ErrRosterUnavailable, group.ID, err)
	}
	return membersFromTable(table)
}

// Lookup finds one member of the group by exact id match after trimming.
func (s *RosterStore) Lookup(ctx context.Context, groupID, memberID string) (models.Member, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return models.Member{}, ErrEmptyMemberID
	}
	members, err := s.Load(ctx, groupID)
	if err != nil {
		return models.Member{}, err
	}
	for _, m := range members {
		if m.ID == memberID {
			return m, nil
		}
	}
	return models.Member{}, fmt.Errorf("%w: %s", ErrMemberNotInRoster, memberID)
}

// AddMembers appends entries whose id is not yet in the roster and returns
// the ones that were added. Entries with an empty id or name are skipped.
// A group without a roster file gets a new one.
func (s *RosterStore) AddMembers(ctx context.Context, groupID string, entries []models.Member) ([]models.Member, error) {
	group, err := s.groups.Resolve(groupID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.repo.Load(ctx, group)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		table = &models.RosterTable{Header: []string{rosterNameHeader, rosterIDHeader}}
	case err != nil:
		return nil, fmt.Errorf("%w: group %s: %w", ErrRosterUnavailable, group.ID, err)
	}

	nameIdx, idIdx := resolveColumns(table.Header)
	if nameIdx < 0 {
		table.Header = append(table.Header, rosterNameHeader)
		nameIdx = len(table.Header) - 1
	}
	if idIdx < 0 {
		table.Header = append(table.Header, rosterIDHeader)
		idIdx = len(table.Header) - 1
	}

	existing := make(map[string]bool, len(table.Rows))
	for _, row := range table.Rows {
		if id := cell(row, idIdx); id != "" {
			existing[id] = true
		}
	}

	var added []models.Member
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		name := strings.TrimSpace(e.DisplayName)
		if id == "" || name == "" || existing[id] {
			continue
		}
		existing[id] = true
		row := make([]string, len(table.Header))
		row[nameIdx] = name
		row[idIdx] = id
		table.Rows = append(table.Rows, row)
		added = append(added, models.Member{ID: id, DisplayName: name})
	}

	if len(added) == 0 {
		return nil, nil
	}

	if err := s.repo.Save(ctx, group, table); err != nil {
		return nil, &PersistenceError{Op: "save roster", Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"group_id": group.ID,
		"added":    len(added),
	}).Info("Roster updated")

	return added, nil
}
