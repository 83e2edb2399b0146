// Package attendance lets members mark their weekly attendance and read
// their recent history. Marking is only open on one configured weekday,
// judged in the school's time zone rather than the server's.
package attendance

import (
	"strings"
	"time"
)

// Attendance statuses.
const (
	StatusPresent = "present"
	StatusExcused = "excused"
	StatusAbsent  = "absent"
)

// dateLayout is how attendance dates are stored and returned.
const dateLayout = "2006-01-02"

// historyLimit is how many records History returns.
const historyLimit = 10

// Record is one member's attendance on one date.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MemberNo  string    `json:"member_no"`
	Date      string    `json:"date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	// Name is the member's display name, filled only by the admin listing.
	Name string `json:"name,omitempty"`
}

// MarkRequest is the body of POST /api/attendance/mark.
type MarkRequest struct {
	Status string `json:"status"`
}

// memberStatus maps what a member asked for onto what members may set.
// Only admins record absences; anything unknown becomes present.
func memberStatus(requested string) string {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case StatusExcused:
		return StatusExcused
	default:
		return StatusPresent
	}
}
