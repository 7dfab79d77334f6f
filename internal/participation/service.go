package participation

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/attendance/internal/domain"
)

// Store is the read side of the record store.
type Store interface {
	LoadSchedule(ctx context.Context) ([]domain.ScheduleEntry, error)
	LoadAttendance(ctx context.Context) ([]domain.AttendanceRecord, error)
}

// Service recomputes participation from persisted state on every call.
type Service struct {
	store Store
	calc  Calculator
}

// NewService returns a Service that counts with counter.
func NewService(store Store, counter Counter) *Service {
	return &Service{store: store, calc: Calculator{Counter: counter}}
}

// Stats returns the report of username up to cutoff.
func (s *Service) Stats(ctx context.Context, username string, cutoff time.Time) (Report, error) {
	entries, records, err := s.load(ctx)
	if err != nil {
		return Report{}, err
	}
	return s.calc.Report(username, entries, records, cutoff), nil
}

// Ranking returns the reports of all scheduled users, best first.
func (s *Service) Ranking(ctx context.Context, cutoff time.Time) ([]Report, error) {
	entries, records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.calc.Ranking(entries, records, cutoff), nil
}

func (s *Service) load(ctx context.Context) ([]domain.ScheduleEntry, []domain.AttendanceRecord, error) {
	entries, err := s.store.LoadSchedule(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	records, err := s.store.LoadAttendance(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load attendance: %w", err)
	}
	return entries, records, nil
}
