package models

import "strings"

// Member is one enrolled person in a group's roster. ID is the s-number and
// is always compared as a string.
type Member struct {
	ID          string `json:"s_number"`
	DisplayName string `json:"name"`
}

// FirstName returns the first word of the display name.
func (m Member) FirstName() string {
	fields := strings.Fields(m.DisplayName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// RosterTable is the raw tabular form a roster source hands to the core:
// a header row plus data rows, every cell already rendered as text.
type RosterTable struct {
	Header []string
	Rows   [][]string
}
