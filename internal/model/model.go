package model

import "time"

// Status of a member on a given day. ABSENT is only ever synthesized for reports.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
)

// Member is a person who can be scanned for attendance.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	QRCode    string    `json:"qrCode"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttendanceRecord is persisted proof a member was present on a calendar day.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	MemberID   string    `json:"memberId"`
	MemberName string    `json:"memberName"` // copied at creation time
	Date       string    `json:"date"`       // YYYY-MM-DD
	Timestamp  time.Time `json:"timestamp"`
	Status     Status    `json:"status"`
}

// AttendanceEntry is one row of a daily report. Timestamp and ID are empty for
// synthesized absences.
type AttendanceEntry struct {
	ID         string     `json:"id,omitempty"`
	MemberID   string     `json:"memberId"`
	MemberName string     `json:"memberName"`
	Date       string     `json:"date"`
	Status     Status     `json:"status"`
	Timestamp  *time.Time `json:"timestamp"`
}
