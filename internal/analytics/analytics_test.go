package analytics

import (
	"math"
	"testing"

	"github.com/Kerhoff/rollcall/internal/models"
)

func set(ids ...string) PresentSet {
	s := make(PresentSet)
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func TestAnalyze_TwoDays(t *testing.T) {
	roster := []models.Member{
		{ID: "102", DisplayName: "Bob"},
		{ID: "101", DisplayName: "Ada"},
	}
	perDay := map[models.Day]PresentSet{
		"2025-10-27": set("101"),
		"2025-10-28": set("101", "102"),
	}

	report := Analyze(roster, perDay)

	if report.TotalSessions != 2 || report.TotalMembers != 2 {
		t.Fatalf("expected 2 sessions and 2 members, got %d and %d", report.TotalSessions, report.TotalMembers)
	}
	if report.AvgAttendance != 75 {
		t.Errorf("expected avg 75, got %v", report.AvgAttendance)
	}

	ada, bob := report.Members[0], report.Members[1]
	if ada.DisplayName != "Ada" || bob.DisplayName != "Bob" {
		t.Fatalf("expected members sorted by name, got %q then %q", ada.DisplayName, bob.DisplayName)
	}
	if ada.PresentCount != 2 || ada.AbsentCount != 0 || ada.AttendanceRate != 100 {
		t.Errorf("unexpected Ada line: %+v", ada)
	}
	if bob.PresentCount != 1 || bob.AbsentCount != 1 || bob.AttendanceRate != 50 {
		t.Errorf("unexpected Bob line: %+v", bob)
	}
}

func TestAnalyze_NoSessions(t *testing.T) {
	roster := []models.Member{{ID: "1", DisplayName: "Ada"}}

	report := Analyze(roster, nil)

	if report.TotalSessions != 0 {
		t.Fatalf("expected 0 sessions, got %d", report.TotalSessions)
	}
	if report.AvgAttendance != 0 {
		t.Errorf("expected avg 0, got %v", report.AvgAttendance)
	}
	m := report.Members[0]
	if m.AttendanceRate != 0 || m.PresentCount != 0 || m.AbsentCount != 0 {
		t.Errorf("expected zero line, got %+v", m)
	}
	if math.IsNaN(m.AttendanceRate) {
		t.Error("rate must not be NaN")
	}
}

func TestAnalyze_EmptyRoster(t *testing.T) {
	report := Analyze(nil, map[models.Day]PresentSet{"2025-10-27": set("1")})

	if report.TotalMembers != 0 || len(report.Members) != 0 {
		t.Fatalf("expected no members, got %+v", report.Members)
	}
	if report.AvgAttendance != 0 || math.IsNaN(report.AvgAttendance) {
		t.Errorf("expected avg 0, got %v", report.AvgAttendance)
	}
	if report.TotalSessions != 1 {
		t.Errorf("expected 1 session, got %d", report.TotalSessions)
	}
}

func TestAnalyze_IgnoresMembersMissingFromRoster(t *testing.T) {
	roster := []models.Member{{ID: "101", DisplayName: "Ada"}}
	perDay := map[models.Day]PresentSet{
		"2025-10-27": set("101", "999"),
	}

	report := Analyze(roster, perDay)

	if len(report.Members) != 1 || report.Members[0].MemberID != "101" {
		t.Fatalf("expected only roster members, got %+v", report.Members)
	}
}

func TestAnalyze_Totals(t *testing.T) {
	roster := []models.Member{
		{ID: "1", DisplayName: "Cy"},
		{ID: "2", DisplayName: "Ada"},
		{ID: "3", DisplayName: "Bo"},
	}
	perDay := map[models.Day]PresentSet{
		"2025-01-06": set("1", "2"),
		"2025-01-07": set("2"),
		"2025-01-08": set("2", "3"),
		"2025-01-09": set(),
	}

	report := Analyze(roster, perDay)

	var sum float64
	for _, m := range report.Members {
		if m.PresentCount+m.AbsentCount != len(perDay) {
			t.Errorf("%s: present+absent = %d, want %d", m.DisplayName, m.PresentCount+m.AbsentCount, len(perDay))
		}
		sum += m.AttendanceRate
	}
	if diff := math.Abs(sum/float64(len(roster)) - report.AvgAttendance); diff > 1e-9 {
		t.Errorf("avg mismatch: %v vs %v", sum/float64(len(roster)), report.AvgAttendance)
	}
}

func TestNewPresentSet(t *testing.T) {
	s := NewPresentSet([]models.AttendanceRecord{{MemberID: "007"}, {MemberID: "7"}})
	if _, ok := s["007"]; !ok {
		t.Error("expected 007 to be present")
	}
	if len(s) != 2 {
		t.Errorf("expected 2 distinct ids, got %d", len(s))
	}
}
