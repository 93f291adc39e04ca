package models

import "time"

// HallPassStatus represents where a hall pass is in its lifecycle
type HallPassStatus string

const (
	HallPassActive    HallPassStatus = "active"
	HallPassOverdue   HallPassStatus = "overdue"
	HallPassCompleted HallPassStatus = "completed"
)

// OpenStatuses are the statuses of a pass whose holder has not returned.
var OpenStatuses = []HallPassStatus{HallPassActive, HallPassOverdue}

// HallPass represents a temporary absence from the room.
type HallPass struct {
	ID                      int64          `json:"id" db:"id"`
	GroupID                 string         `json:"group_id" db:"group_id"`
	MemberID                string         `json:"s_number" db:"member_id"`
	MemberName              string         `json:"name" db:"member_name"`
	CheckOutTime            time.Time      `json:"check_out_time" db:"check_out_time"`
	ExpectedDurationMinutes int            `json:"expected_duration" db:"expected_duration"`
	CheckOutEvidenceRef     string         `json:"check_out_photo,omitempty" db:"check_out_photo"`
	CheckOutReason          string         `json:"check_out_reason" db:"check_out_reason"`
	CheckInTime             *time.Time     `json:"check_in_time,omitempty" db:"check_in_time"`
	CheckInEvidenceRef      *string        `json:"check_in_photo,omitempty" db:"check_in_photo"`
	CheckInNotes            *string        `json:"check_in_notes,omitempty" db:"check_in_notes"`
	ActualDurationMinutes   *int           `json:"actual_duration,omitempty" db:"actual_duration"`
	Status                  HallPassStatus `json:"status" db:"status"`
}

// Deadline is the instant after which an unreturned pass is overdue.
func (p *HallPass) Deadline() time.Time {
	return p.CheckOutTime.Add(time.Duration(p.ExpectedDurationMinutes) * time.Minute)
}

// IsOpen returns true while the holder has not checked back in
func (p *HallPass) IsOpen() bool {
	return p.Status == HallPassActive || p.Status == HallPassOverdue
}

// IsOverdueAt reports whether an active pass has passed its deadline at now.
// Overdue and completed passes never report true.
func (p *HallPass) IsOverdueAt(now time.Time) bool {
	return p.Status == HallPassActive && now.After(p.Deadline())
}

// Clone returns a deep copy so stores never share pointers with callers.
func (p *HallPass) Clone() *HallPass {
	if p == nil {
		return nil
	}
	c := *p
	if p.CheckInTime != nil {
		t := *p.CheckInTime
		c.CheckInTime = &t
	}
	if p.CheckInEvidenceRef != nil {
		s := *p.CheckInEvidenceRef
		c.CheckInEvidenceRef = &s
	}
	if p.CheckInNotes != nil {
		s := *p.CheckInNotes
		c.CheckInNotes = &s
	}
	if p.ActualDurationMinutes != nil {
		n := *p.ActualDurationMinutes
		c.ActualDurationMinutes = &n
	}
	return &c
}
