package models

import "time"

// CheckInStatus reports whether a check-in created a record.
type CheckInStatus string

const (
	CheckInNew     CheckInStatus = "new"
	CheckInAlready CheckInStatus = "already"
)

// AttendanceRecord is the first check-in of a member in a group on a day.
type AttendanceRecord struct {
	MemberID    string    `json:"s_number"`
	MemberName  string    `json:"name"`
	GroupID     string    `json:"group_id"`
	Day         Day       `json:"day"`
	Timestamp   time.Time `json:"timestamp"`
	EvidenceRef string    `json:"photo_path,omitempty"`
}

// CheckInResult is the outcome of a single check-in attempt. Record is the
// new record for CheckInNew and the existing one for CheckInAlready.
type CheckInResult struct {
	Status CheckInStatus     `json:"status"`
	Record *AttendanceRecord `json:"record,omitempty"`
}

// DaySummary splits a group's roster into who was present and who was absent
// on one day.
type DaySummary struct {
	GroupID string             `json:"group_id"`
	Day     Day                `json:"day"`
	Present []AttendanceRecord `json:"present"`
	Absent  []Member           `json:"absent"`
}
