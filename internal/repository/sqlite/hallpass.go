// Package sqlite stores hall passes in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

const hallPassColumns = `id, group_id, member_id, member_name, check_out_time, expected_duration,
	check_out_photo, check_out_reason, check_in_time, check_in_photo, check_in_notes,
	actual_duration, status`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

type hallPassRepository struct {
	db *sql.DB
}

// NewHallPassRepository returns a PassRepository over a migrated SQLite handle.
func NewHallPassRepository(db *sql.DB) repository.PassRepository {
	return &hallPassRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHallPass(row rowScanner) (*models.HallPass, error) {
	pass := &models.HallPass{}
	var (
		checkOut       int64
		status         string
		checkInTime    sql.NullInt64
		checkInPhoto   sql.NullString
		checkInNotes   sql.NullString
		actualDuration sql.NullInt64
	)
	err := row.Scan(
		&pass.ID,
		&pass.GroupID,
		&pass.MemberID,
		&pass.MemberName,
		&checkOut,
		&pass.ExpectedDurationMinutes,
		&pass.CheckOutEvidenceRef,
		&pass.CheckOutReason,
		&checkInTime,
		&checkInPhoto,
		&checkInNotes,
		&actualDuration,
		&status,
	)
	if err != nil {
		return nil, err
	}
	pass.CheckOutTime = fromMillis(checkOut)
	pass.Status = models.HallPassStatus(status)
	if checkInTime.Valid {
		t := fromMillis(checkInTime.Int64)
		pass.CheckInTime = &t
	}
	if checkInPhoto.Valid {
		pass.CheckInEvidenceRef = &checkInPhoto.String
	}
	if checkInNotes.Valid {
		pass.CheckInNotes = &checkInNotes.String
	}
	if actualDuration.Valid {
		n := int(actualDuration.Int64)
		pass.ActualDurationMinutes = &n
	}
	return pass, nil
}

func scanHallPasses(rows *sql.Rows) ([]*models.HallPass, error) {
	defer rows.Close()
	var passes []*models.HallPass
	for rows.Next() {
		pass, err := scanHallPass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hall pass: %w", err)
		}
		passes = append(passes, pass)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hall passes: %w", err)
	}
	return passes, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(repository.ErrUnavailable, err))
}

func (r *hallPassRepository) Create(ctx context.Context, pass *models.HallPass) (*models.HallPass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pass.Status == "" {
		pass.Status = models.HallPassActive
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO hall_passes (group_id, member_id, member_name, check_out_time, expected_duration, due_at,
			check_out_photo, check_out_reason, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pass.GroupID,
		pass.MemberID,
		pass.MemberName,
		toMillis(pass.CheckOutTime),
		pass.ExpectedDurationMinutes,
		toMillis(pass.Deadline()),
		pass.CheckOutEvidenceRef,
		pass.CheckOutReason,
		string(pass.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("member %s already holds an open pass: %w", pass.MemberID, repository.ErrConflict)
		}
		return nil, unavailable("insert hall pass", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, unavailable("read hall pass id", err)
	}
	pass.ID = id
	pass.CheckOutTime = pass.CheckOutTime.UTC()
	return pass, nil
}

func (r *hallPassRepository) GetByID(ctx context.Context, id int64) (*models.HallPass, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+hallPassColumns+` FROM hall_passes WHERE id = ?`, id)
	pass, err := scanHallPass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, unavailable("get hall pass", err)
	}
	return pass, nil
}

func (r *hallPassRepository) GetOpen(ctx context.Context, groupID, memberID string) (*models.HallPass, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+hallPassColumns+` FROM hall_passes
		WHERE group_id = ? AND member_id = ? AND status IN ('active', 'overdue')
		ORDER BY check_out_time DESC
		LIMIT 1`, groupID, memberID)
	pass, err := scanHallPass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, unavailable("get open hall pass", err)
	}
	return pass, nil
}

func (r *hallPassRepository) Complete(ctx context.Context, pass *models.HallPass) error {
	var checkIn sql.NullInt64
	if pass.CheckInTime != nil {
		checkIn = sql.NullInt64{Int64: toMillis(*pass.CheckInTime), Valid: true}
	}
	var actual sql.NullInt64
	if pass.ActualDurationMinutes != nil {
		actual = sql.NullInt64{Int64: int64(*pass.ActualDurationMinutes), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE hall_passes
		SET check_in_time = ?, check_in_photo = ?, check_in_notes = ?, actual_duration = ?, status = 'completed'
		WHERE id = ? AND status IN ('active', 'overdue')`,
		checkIn,
		pass.CheckInEvidenceRef,
		pass.CheckInNotes,
		actual,
		pass.ID,
	)
	if err != nil {
		return unavailable("complete hall pass", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("complete hall pass", err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, pass.ID); err != nil {
			return err
		}
		return fmt.Errorf("hall pass %d is not open: %w", pass.ID, repository.ErrConflict)
	}
	return nil
}

func (r *hallPassRepository) MarkOverdue(ctx context.Context, groupID string, now time.Time) ([]*models.HallPass, error) {
	query := `UPDATE hall_passes SET status = 'overdue' WHERE status = 'active' AND due_at < ?`
	args := []any{toMillis(now)}
	if groupID != "" {
		query += ` AND group_id = ?`
		args = append(args, groupID)
	}
	query += ` RETURNING ` + hallPassColumns

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("mark overdue", err)
	}
	return scanHallPasses(rows)
}

func (r *hallPassRepository) List(ctx context.Context, filters repository.PassFilters) ([]*models.HallPass, error) {
	query := `SELECT ` + hallPassColumns + ` FROM hall_passes WHERE 1 = 1`
	var args []any

	if filters.GroupID != "" {
		query += ` AND group_id = ?`
		args = append(args, filters.GroupID)
	}
	if len(filters.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(filters.Statuses)-1) + `)`
		for _, s := range filters.Statuses {
			args = append(args, string(s))
		}
	}
	if filters.From != nil {
		query += ` AND check_out_time >= ?`
		args = append(args, toMillis(*filters.From))
	}
	if filters.To != nil {
		query += ` AND check_out_time < ?`
		args = append(args, toMillis(*filters.To))
	}
	query += ` ORDER BY check_out_time DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list hall passes", err)
	}
	return scanHallPasses(rows)
}
