package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

const hallPassColumns = `id, group_id, member_id, member_name, check_out_time, expected_duration,
	check_out_photo, check_out_reason, check_in_time, check_in_photo, check_in_notes,
	actual_duration, status`

// uniqueViolation is the SQLSTATE postgres reports for a unique index breach.
const uniqueViolation = "23505"

type hallPassRepository struct {
	db *sql.DB
}

// NewHallPassRepository creates a new hall pass repository
func NewHallPassRepository(db *sql.DB) repository.PassRepository {
	return &hallPassRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHallPass(row rowScanner) (*models.HallPass, error) {
	pass := &models.HallPass{}
	var (
		checkInTime    sql.NullTime
		checkInPhoto   sql.NullString
		checkInNotes   sql.NullString
		actualDuration sql.NullInt64
	)
	err := row.Scan(
		&pass.ID,
		&pass.GroupID,
		&pass.MemberID,
		&pass.MemberName,
		&pass.CheckOutTime,
		&pass.ExpectedDurationMinutes,
		&pass.CheckOutEvidenceRef,
		&pass.CheckOutReason,
		&checkInTime,
		&checkInPhoto,
		&checkInNotes,
		&actualDuration,
		&pass.Status,
	)
	if err != nil {
		return nil, err
	}
	pass.CheckOutTime = pass.CheckOutTime.UTC()
	if checkInTime.Valid {
		t := checkInTime.Time.UTC()
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

func (r *hallPassRepository) Create(ctx context.Context, pass *models.HallPass) (*models.HallPass, error) {
	query := `
		INSERT INTO hall_passes (group_id, member_id, member_name, check_out_time, expected_duration, due_at,
			check_out_photo, check_out_reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	if pass.Status == "" {
		pass.Status = models.HallPassActive
	}

	err := r.db.QueryRowContext(ctx, query,
		pass.GroupID,
		pass.MemberID,
		pass.MemberName,
		pass.CheckOutTime.UTC(),
		pass.ExpectedDurationMinutes,
		pass.Deadline().UTC(),
		pass.CheckOutEvidenceRef,
		pass.CheckOutReason,
		pass.Status,
	).Scan(&pass.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, fmt.Errorf("member %s already holds an open pass: %w", pass.MemberID, repository.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create hall pass: %w", errors.Join(repository.ErrUnavailable, err))
	}

	return pass, nil
}

func (r *hallPassRepository) GetByID(ctx context.Context, id int64) (*models.HallPass, error) {
	query := `SELECT ` + hallPassColumns + ` FROM hall_passes WHERE id = $1`

	pass, err := scanHallPass(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get hall pass: %w", errors.Join(repository.ErrUnavailable, err))
	}
	return pass, nil
}

func (r *hallPassRepository) GetOpen(ctx context.Context, groupID, memberID string) (*models.HallPass, error) {
	query := `SELECT ` + hallPassColumns + ` FROM hall_passes
		WHERE group_id = $1 AND member_id = $2 AND status IN ('active', 'overdue')
		ORDER BY check_out_time DESC
		LIMIT 1`

	pass, err := scanHallPass(r.db.QueryRowContext(ctx, query, groupID, memberID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get open hall pass: %w", errors.Join(repository.ErrUnavailable, err))
	}
	return pass, nil
}

func (r *hallPassRepository) Complete(ctx context.Context, pass *models.HallPass) error {
	query := `
		UPDATE hall_passes
		SET check_in_time = $2, check_in_photo = $3, check_in_notes = $4, actual_duration = $5, status = 'completed'
		WHERE id = $1 AND status IN ('active', 'overdue')`

	var checkInTime *time.Time
	if pass.CheckInTime != nil {
		t := pass.CheckInTime.UTC()
		checkInTime = &t
	}

	result, err := r.db.ExecContext(ctx, query,
		pass.ID,
		checkInTime,
		pass.CheckInEvidenceRef,
		pass.CheckInNotes,
		pass.ActualDurationMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to complete hall pass: %w", errors.Join(repository.ErrUnavailable, err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, pass.ID); err != nil {
			return err
		}
		return fmt.Errorf("hall pass %d is not open: %w", pass.ID, repository.ErrConflict)
	}

	return nil
}

func (r *hallPassRepository) MarkOverdue(ctx context.Context, groupID string, now time.Time) ([]*models.HallPass, error) {
	query := `
		UPDATE hall_passes SET status = 'overdue'
		WHERE status = 'active' AND due_at < $1`
	args := []interface{}{now.UTC()}
	if groupID != "" {
		query += ` AND group_id = $2`
		args = append(args, groupID)
	}
	query += ` RETURNING ` + hallPassColumns

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to mark overdue hall passes: %w", errors.Join(repository.ErrUnavailable, err))
	}
	defer rows.Close()

	var passes []*models.HallPass
	for rows.Next() {
		pass, err := scanHallPass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overdue hall pass: %w", err)
		}
		passes = append(passes, pass)
	}
	return passes, rows.Err()
}

func (r *hallPassRepository) List(ctx context.Context, filters repository.PassFilters) ([]*models.HallPass, error) {
	query := `SELECT ` + hallPassColumns + ` FROM hall_passes WHERE 1 = 1`
	var args []interface{}
	argIdx := 1

	if filters.GroupID != "" {
		query += fmt.Sprintf(" AND group_id = $%d", argIdx)
		args = append(args, filters.GroupID)
		argIdx++
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args = append(args, string(s))
			argIdx++
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if filters.From != nil {
		query += fmt.Sprintf(" AND check_out_time >= $%d", argIdx)
		args = append(args, filters.From.UTC())
		argIdx++
	}
	if filters.To != nil {
		query += fmt.Sprintf(" AND check_out_time < $%d", argIdx)
		args = append(args, filters.To.UTC())
	}
	query += " ORDER BY check_out_time DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hall passes: %w", errors.Join(repository.ErrUnavailable, err))
	}
	defer rows.Close()

	var passes []*models.HallPass
	for rows.Next() {
		pass, err := scanHallPass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hall pass: %w", err)
		}
		passes = append(passes, pass)
	}
	return passes, rows.Err()
}
