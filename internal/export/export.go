// Package export renders attendance data as downloadable xlsx workbooks.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Kerhoff/rollcall/internal/models"
)

// ContentType is the MIME type of every workbook produced here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	timeLayout = "2006-01-02 15:04:05 MST"
	absentFill = "#FFEFEF"
)

// sheet wraps a single-sheet workbook being filled row by row.
type sheet struct {
	f      *excelize.File
	name   string
	row    int
	header int
	absent int
	widths []int
}

func newSheet(name string, header []string) (*sheet, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	absentStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{absentFill}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create absent style: %w", err)
	}

	s := &sheet{f: f, name: name, header: headerStyle, absent: absentStyle}
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := s.append(cells...); err != nil {
		f.Close()
		return nil, err
	}
	if err := s.styleRow(s.row, len(header), headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *sheet) append(values ...interface{}) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	for i, v := range values {
		if i >= len(s.widths) {
			s.widths = append(s.widths, 0)
		}
		if n := len(fmt.Sprint(v)); n > s.widths[i] {
			s.widths[i] = n
		}
	}
	if err := s.f.SetSheetRow(s.name, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", s.row, err)
	}
	return nil
}

func (s *sheet) styleRow(row, cols, style int) error {
	from, _ := excelize.CoordinatesToCellName(1, row)
	to, _ := excelize.CoordinatesToCellName(cols, row)
	return s.f.SetCellStyle(s.name, from, to, style)
}

// finish sizes the columns to their content and renders the workbook.
func (s *sheet) finish() (*bytes.Buffer, error) {
	defer s.f.Close()
	for i, w := range s.widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := s.f.SetColWidth(s.name, col, col, float64(w+2)); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	buf, err := s.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf, nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(timeLayout)
}

// Attendance lists the whole roster for one day, absent members first and
// shaded.
func Attendance(summary *models.DaySummary, loc *time.Location) (*bytes.Buffer, string, error) {
	header := []string{"S-Number", "Name", "Timestamp", "Present", "PhotoPath"}
	s, err := newSheet("Attendance_"+string(summary.Day), header)
	if err != nil {
		return nil, "", err
	}

	for _, m := range summary.Absent {
		if err := s.append(m.ID, m.DisplayName, "", "No", ""); err != nil {
			s.f.Close()
			return nil, "", err
		}
		if err := s.styleRow(s.row, len(header), s.absent); err != nil {
			s.f.Close()
			return nil, "", fmt.Errorf("shade absent row: %w", err)
		}
	}
	for _, r := range summary.Present {
		if err := s.append(r.MemberID, r.MemberName, formatTime(r.Timestamp, loc), "Yes", r.EvidenceRef); err != nil {
			s.f.Close()
			return nil, "", err
		}
	}

	buf, err := s.finish()
	if err != nil {
		return nil, "", err
	}
	return buf, fmt.Sprintf("attendance_%s_%s.xlsx", summary.GroupID, summary.Day), nil
}

// Analytics writes one row per roster member with their counts and rate.
func Analytics(groupID string, report models.Report) (*bytes.Buffer, string, error) {
	s, err := newSheet("Analytics", []string{"Name", "S-Number", "Present Count", "Absent Count", "Attendance Rate"})
	if err != nil {
		return nil, "", err
	}
	for _, m := range report.Members {
		if err := s.append(m.DisplayName, m.MemberID, m.PresentCount, m.AbsentCount, m.AttendanceRate); err != nil {
			s.f.Close()
			return nil, "", err
		}
	}
	buf, err := s.finish()
	if err != nil {
		return nil, "", err
	}
	return buf, fmt.Sprintf("analytics_%s.xlsx", groupID), nil
}

// Roster writes the group's members in roster order.
func Roster(groupID string, members []models.Member) (*bytes.Buffer, string, error) {
	s, err := newSheet("Students", []string{"Name", "s-number"})
	if err != nil {
		return nil, "", err
	}
	for _, m := range members {
		if err := s.append(m.DisplayName, m.ID); err != nil {
			s.f.Close()
			return nil, "", err
		}
	}
	buf, err := s.finish()
	if err != nil {
		return nil, "", err
	}
	return buf, fmt.Sprintf("students_%s.xlsx", groupID), nil
}

// HallPasses writes the pass log. Open passes show "Not returned" and "N/A"
// in place of the check-in time and duration.
func HallPasses(groupID string, day *models.Day, passes []*models.HallPass, loc *time.Location) (*bytes.Buffer, string, error) {
	s, err := newSheet("Hall Pass Log", []string{
		"Student ID", "Name", "Check Out Time", "Check In Time",
		"Duration (min)", "Reason", "Notes", "Status",
	})
	if err != nil {
		return nil, "", err
	}

	for _, p := range passes {
		var checkIn, duration interface{} = "Not returned", "N/A"
		if p.CheckInTime != nil {
			checkIn = formatTime(*p.CheckInTime, loc)
		}
		if p.ActualDurationMinutes != nil {
			duration = *p.ActualDurationMinutes
		}
		notes := ""
		if p.CheckInNotes != nil {
			notes = *p.CheckInNotes
		}
		if err := s.append(p.MemberID, p.MemberName, formatTime(p.CheckOutTime, loc), checkIn,
			duration, p.CheckOutReason, notes, string(p.Status)); err != nil {
			s.f.Close()
			return nil, "", err
		}
	}

	buf, err := s.finish()
	if err != nil {
		return nil, "", err
	}
	name := "hall_pass_log_" + groupID
	if day != nil {
		name += "_" + string(*day)
	}
	return buf, name + ".xlsx", nil
}
