package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

const ledgerSheet = "Attendance"

// legacyTimestampLayout is the layout older ledgers wrote, with the zone
// abbreviation instead of an offset.
const legacyTimestampLayout = "2006-01-02 15:04:05 MST"

var ledgerHeader = []string{"S-Number", "Name", "Timestamp", "PhotoPath"}

type ledgerRepository struct {
	dir string
	loc *time.Location
}

// NewLedgerRepository stores one workbook per group and day in dir, named
// attendance_<group>_<YYYY-MM-DD>.xlsx. loc interprets legacy timestamps
// that carry only a zone abbreviation.
func NewLedgerRepository(dir string, loc *time.Location) repository.LedgerRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &ledgerRepository{dir: dir, loc: loc}
}

func (r *ledgerRepository) prefix(groupID string) string {
	return fmt.Sprintf("attendance_%s_", groupID)
}

func (r *ledgerRepository) path(groupID string, day models.Day) string {
	return filepath.Join(r.dir, r.prefix(groupID)+day.String()+".xlsx")
}

func (r *ledgerRepository) Load(ctx context.Context, groupID string, day models.Day) ([]models.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := readRows(r.path(groupID, day))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.AttendanceRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger %s/%s: %w", groupID, day, errors.Join(repository.ErrUnavailable, err))
	}

	records := []models.AttendanceRecord{}
	if len(rows) == 0 {
		return records, nil
	}

	idx := headerIndex(rows[0])
	col := func(name string, fallback int) int {
		if i, ok := idx[name]; ok {
			return i
		}
		return fallback
	}
	idCol := col("s-number", 0)
	nameCol := col("name", 1)
	tsCol := col("timestamp", 2)
	photoCol := col("photopath", -1)

	for _, row := range rows[1:] {
		id := cellAt(row, idCol)
		if id == "" {
			continue
		}
		ts, err := r.parseTimestamp(cellAt(row, tsCol))
		if err != nil {
			return nil, fmt.Errorf("ledger %s/%s member %s: %w", groupID, day, id, errors.Join(repository.ErrInvalid, err))
		}
		records = append(records, models.AttendanceRecord{
			MemberID:    id,
			MemberName:  cellAt(row, nameCol),
			GroupID:     groupID,
			Day:         day,
			Timestamp:   ts,
			EvidenceRef: cellAt(row, photoCol),
		})
	}
	return records, nil
}

func (r *ledgerRepository) parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(legacyTimestampLayout, s, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	return t, nil
}

func (r *ledgerRepository) Save(ctx context.Context, groupID string, day models.Day, records []models.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := newWorkbook(ledgerSheet)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeRow(f, ledgerSheet, 1, ledgerHeader); err != nil {
		return fmt.Errorf("failed to write ledger header: %w", err)
	}
	for i, rec := range records {
		row := []string{rec.MemberID, rec.MemberName, rec.Timestamp.Format(time.RFC3339Nano), rec.EvidenceRef}
		if err := writeRow(f, ledgerSheet, i+2, row); err != nil {
			return fmt.Errorf("failed to write ledger row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(ledgerSheet, "A", "A", 14)
	_ = f.SetColWidth(ledgerSheet, "B", "B", 24)
	_ = f.SetColWidth(ledgerSheet, "C", "C", 26)
	_ = f.SetColWidth(ledgerSheet, "D", "D", 36)

	if err := writeAtomic(r.path(groupID, day), f); err != nil {
		return fmt.Errorf("failed to save ledger %s/%s: %w", groupID, day, errors.Join(repository.ErrUnavailable, err))
	}
	return nil
}

func (r *ledgerRepository) ListDays(ctx context.Context, groupID string) ([]models.Day, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Day{}, nil
		}
		return nil, fmt.Errorf("failed to list ledgers: %w", errors.Join(repository.ErrUnavailable, err))
	}

	prefix := r.prefix(groupID)
	days := []models.Day{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || filepath.Ext(name) != ".xlsx" {
			continue
		}
		day, err := models.ParseDay(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".xlsx"))
		if err != nil {
			// another group whose id extends this one, e.g. "p1" vs "p1_b"
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })
	return days, nil
}
