package models

// MemberAttendance is one roster member's line in an attendance report.
type MemberAttendance struct {
	MemberID       string  `json:"s_number"`
	DisplayName    string  `json:"name"`
	PresentCount   int     `json:"present_count"`
	AbsentCount    int     `json:"absent_count"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// Report aggregates attendance of a roster over many sessions.
type Report struct {
	TotalSessions int                `json:"total_sessions"`
	TotalMembers  int                `json:"total_students"`
	AvgAttendance float64            `json:"avg_attendance"`
	Members       []MemberAttendance `json:"students"`
}
