package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/conorfennell/attendance/internal/domain"
	"github.com/conorfennell/attendance/internal/storage"
)

// Store is the part of the record store the ledger needs.
type Store interface {
	LoadAttendance(ctx context.Context) ([]domain.AttendanceRecord, error)
	UpdateAttendance(ctx context.Context, fn func([]domain.AttendanceRecord) ([]domain.AttendanceRecord, error)) error
}

// CourseCount is the number of distinct days a course was attended.
type CourseCount struct {
	Course string
	Days   int
}

// Ledger records which courses a user attended on which dates.
type Ledger struct {
	store Store
}

// NewLedger returns a Ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Toggle sets whether username attended course on date. It reports whether the
// table changed; setting the state it is already in writes nothing.
func (l *Ledger) Toggle(ctx context.Context, username, course string, date time.Time, desired bool) (bool, error) {
	date = domain.Date(date)
	changed := false
	err := l.store.UpdateAttendance(ctx, func(records []domain.AttendanceRecord) ([]domain.AttendanceRecord, error) {
		kept := records[:0:0]
		exists := false
		for _, r := range records {
			if matches(r, username, course, date) {
				exists = true
				if !desired {
					continue
				}
			}
			kept = append(kept, r)
		}

		switch {
		case desired && !exists:
			changed = true
			return append(records, domain.AttendanceRecord{Username: username, Course: course, Date: date}), nil
		case !desired && exists:
			changed = true
			return kept, nil
		default:
			return nil, storage.ErrNoChange
		}
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark %s on %s: %w", course, domain.FormatDate(date), err)
	}
	return changed, nil
}

// ForUser returns every record of username.
func (l *Ledger) ForUser(ctx context.Context, username string) ([]domain.AttendanceRecord, error) {
	records, err := l.store.LoadAttendance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance: %w", err)
	}
	return Filter(records, username), nil
}

// MarkedOn returns the set of courses username attended on date.
func (l *Ledger) MarkedOn(ctx context.Context, username string, date time.Time) (map[string]bool, error) {
	records, err := l.ForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	date = domain.Date(date)
	marked := make(map[string]bool)
	for _, r := range records {
		if r.Date.Equal(date) {
			marked[r.Course] = true
		}
	}
	return marked, nil
}

// Filter returns the records belonging to username.
func Filter(records []domain.AttendanceRecord, username string) []domain.AttendanceRecord {
	var mine []domain.AttendanceRecord
	for _, r := range records {
		if r.Username == username {
			mine = append(mine, r)
		}
	}
	return mine
}

// CountDistinctDays returns the number of unique dates username attended course.
func CountDistinctDays(records []domain.AttendanceRecord, username, course string) int {
	days := make(map[string]bool)
	for _, r := range records {
		if r.Username == username && r.Course == course {
			days[domain.FormatDate(r.Date)] = true
		}
	}
	return len(days)
}

// CountTotal returns the number of records of username dated on or before cutoff.
// Later records stay stored but are not counted.
func CountTotal(records []domain.AttendanceRecord, username string, cutoff time.Time) int {
	cutoff = domain.Date(cutoff)
	n := 0
	for _, r := range records {
		if r.Username == username && !r.Date.After(cutoff) {
			n++
		}
	}
	return n
}

// Summary returns the distinct-day count of every course username attended,
// sorted by course name.
func Summary(records []domain.AttendanceRecord, username string) []CourseCount {
	var courses []string
	seen := make(map[string]bool)
	for _, r := range records {
		if r.Username == username && !seen[r.Course] {
			seen[r.Course] = true
			courses = append(courses, r.Course)
		}
	}
	sort.Strings(courses)

	summary := make([]CourseCount, 0, len(courses))
	for _, c := range courses {
		summary = append(summary, CourseCount{Course: c, Days: CountDistinctDays(records, username, c)})
	}
	return summary
}

func matches(r domain.AttendanceRecord, username, course string, date time.Time) bool {
	return r.Username == username && r.Course == course && r.Date.Equal(date)
}
