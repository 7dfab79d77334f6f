package participation

import (
	"sort"
	"time"

	"github.com/conorfennell/attendance/internal/attendance"
	"github.com/conorfennell/attendance/internal/domain"
	"github.com/conorfennell/attendance/internal/schedule"
)

// Report is the participation of one user up to a cutoff date.
type Report struct {
	Username   string
	Expected   int
	Attended   int
	Percentage float64
	Courses    []attendance.CourseCount
}

// Percentage returns 100*attended/expected, or 0 when nothing was expected.
func Percentage(attended, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	return 100 * float64(attended) / float64(expected)
}

// Calculator combines attendance counts with expected occurrences.
type Calculator struct {
	Counter Counter
}

// Report computes the participation of username. Attended counts every record
// up to cutoff with no lower bound; the course breakdown ignores the cutoff.
func (c Calculator) Report(username string, entries []domain.ScheduleEntry, records []domain.AttendanceRecord, cutoff time.Time) Report {
	mine := schedule.Filter(entries, username)
	expected := c.Counter.Expected(mine, cutoff)
	attended := attendance.CountTotal(records, username, cutoff)
	return Report{
		Username:   username,
		Expected:   expected,
		Attended:   attended,
		Percentage: Percentage(attended, expected),
		Courses:    attendance.Summary(records, username),
	}
}

// Ranking reports every user present in the schedule, highest percentage
// first. Ties keep the order in which users first appear in the schedule.
func (c Calculator) Ranking(entries []domain.ScheduleEntry, records []domain.AttendanceRecord, cutoff time.Time) []Report {
	var users []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if !seen[e.Username] {
			seen[e.Username] = true
			users = append(users, e.Username)
		}
	}

	reports := make([]Report, 0, len(users))
	for _, u := range users {
		reports = append(reports, c.Report(u, entries, records, cutoff))
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].Percentage > reports[j].Percentage
	})
	return reports
}
