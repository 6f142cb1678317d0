package attendance

import (
	"math"

	"trennkal/internal/model"
)

// Presence bands used for presentation. The numbers themselves are the
// contract; the band is a derived classification and never stored.
const (
	BandGood     = "good"     // >= 90%
	BandWarning  = "warning"  // >= 70%
	BandCritical = "critical" // below 70%
)

// Band classifies a percentage into a presentation band.
func Band(percentage int) string {
	switch {
	case percentage >= 90:
		return BandGood
	case percentage >= 70:
		return BandWarning
	default:
		return BandCritical
	}
}

// Stats derives the attendance summary of one student over the given
// session set: attended count, total count and a rounded percentage.
// An empty session set yields all zeroes, never a division error.
func (s *Store) Stats(studentID string, sessions []model.Session) model.AttendanceStats {
	attended := 0
	for _, session := range sessions {
		if s.Present(session.ID, studentID) {
			attended++
		}
	}
	return model.AttendanceStats{
		StudentID:  studentID,
		Attended:   attended,
		Total:      len(sessions),
		Percentage: percentage(attended, len(sessions)),
	}
}

// percentage rounds half up, matching spreadsheet expectations
// (e.g. 5 of 8 sessions is 63%, not 62%).
func percentage(attended, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Floor(float64(attended)/float64(total)*100 + 0.5))
}
