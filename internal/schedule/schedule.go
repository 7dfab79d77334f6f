package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/attendance/internal/domain"
	"github.com/conorfennell/attendance/internal/storage"
)

// Store is the part of the record store the schedule needs.
type Store interface {
	LoadSchedule(ctx context.Context) ([]domain.ScheduleEntry, error)
	UpdateSchedule(ctx context.Context, fn func([]domain.ScheduleEntry) ([]domain.ScheduleEntry, error)) error
}

// Service manages the weekly course blocks of each user.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService returns a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Add validates and appends one course block for username.
// The course name is trimmed before validation; the store is untouched on failure.
func (s *Service) Add(ctx context.Context, username, course string, day domain.Weekday, start, end domain.Clock) (domain.ScheduleEntry, error) {
	ne := newEntry{
		Username: username,
		Course:   strings.TrimSpace(course),
		Day:      day,
		Start:    start,
		End:      end,
	}
	if err := check(ne); err != nil {
		return domain.ScheduleEntry{}, err
	}

	entry := domain.ScheduleEntry{
		Username: ne.Username,
		Course:   ne.Course,
		Day:      ne.Day,
		Start:    ne.Start,
		End:      ne.End,
		Added:    domain.Date(s.now()),
	}
	err := s.store.UpdateSchedule(ctx, func(entries []domain.ScheduleEntry) ([]domain.ScheduleEntry, error) {
		return append(entries, entry), nil
	})
	if err != nil {
		return domain.ScheduleEntry{}, fmt.Errorf("failed to add course %s: %w", entry.Course, err)
	}
	return entry, nil
}

// Remove deletes every block of username whose course matches exactly,
// whatever its day or time, and returns how many were deleted. Nothing is
// written when no block matches.
func (s *Service) Remove(ctx context.Context, username, course string) (int, error) {
	removed := 0
	err := s.store.UpdateSchedule(ctx, func(entries []domain.ScheduleEntry) ([]domain.ScheduleEntry, error) {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.Username == username && e.Course == course {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == len(entries) {
			return nil, storage.ErrNoChange
		}
		removed = len(entries) - len(kept)
		return kept, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to remove course %s: %w", course, err)
	}
	return removed, nil
}

// ListFor returns the blocks of username in store order.
func (s *Service) ListFor(ctx context.Context, username string) ([]domain.ScheduleEntry, error) {
	entries, err := s.store.LoadSchedule(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	return Filter(entries, username), nil
}

// Filter returns the entries belonging to username.
func Filter(entries []domain.ScheduleEntry, username string) []domain.ScheduleEntry {
	var mine []domain.ScheduleEntry
	for _, e := range entries {
		if e.Username == username {
			mine = append(mine, e)
		}
	}
	return mine
}

// Sort orders entries by day, then start time, then course name.
func Sort(entries []domain.ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Course < b.Course
	})
}

// ForDay returns the entries held on day, sorted by start time.
func ForDay(entries []domain.ScheduleEntry, day domain.Weekday) []domain.ScheduleEntry {
	var out []domain.ScheduleEntry
	for _, e := range entries {
		if e.Day == day {
			out = append(out, e)
		}
	}
	Sort(out)
	return out
}

// Courses returns the distinct course names in first-seen order.
func Courses(entries []domain.ScheduleEntry) []string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if !seen[e.Course] {
			seen[e.Course] = true
			names = append(names, e.Course)
		}
	}
	return names
}
