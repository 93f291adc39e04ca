// Package analytics aggregates attendance over many days. It does no I/O:
// callers load the roster and the ledgers and pass them in.
package analytics

import (
	"sort"

	"github.com/Kerhoff/rollcall/internal/models"
)

// PresentSet is the set of member IDs present on one day.
type PresentSet map[string]struct{}

// NewPresentSet builds a PresentSet from a day's ledger.
func NewPresentSet(records []models.AttendanceRecord) PresentSet {
	set := make(PresentSet, len(records))
	for _, r := range records {
		set[r.MemberID] = struct{}{}
	}
	return set
}

// Analyze computes per-member present/absent counts and rates over every day
// in perDay. The report is driven by the roster: IDs that appear in a ledger
// but not in the roster are ignored.
func Analyze(roster []models.Member, perDay map[models.Day]PresentSet) models.Report {
	totalSessions := len(perDay)
	report := models.Report{
		TotalSessions: totalSessions,
		TotalMembers:  len(roster),
		Members:       make([]models.MemberAttendance, 0, len(roster)),
	}

	var rateSum float64
	for _, m := range roster {
		present := 0
		for _, ids := range perDay {
			if _, ok := ids[m.ID]; ok {
				present++
			}
		}

		var rate float64
		if totalSessions > 0 {
			rate = 100 * float64(present) / float64(totalSessions)
		}
		rateSum += rate

		report.Members = append(report.Members, models.MemberAttendance{
			MemberID:       m.ID,
			DisplayName:    m.DisplayName,
			PresentCount:   present,
			AbsentCount:    totalSessions - present,
			AttendanceRate: rate,
		})
	}

	if len(roster) > 0 {
		report.AvgAttendance = rateSum / float64(len(roster))
	}

	sort.SliceStable(report.Members, func(i, j int) bool {
		return report.Members[i].DisplayName < report.Members[j].DisplayName
	})
	return report
}
