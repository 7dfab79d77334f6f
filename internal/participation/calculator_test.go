package participation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/conorfennell/attendance/internal/attendance"
	"github.com/conorfennell/attendance/internal/auth"
	"github.com/conorfennell/attendance/internal/domain"
	"github.com/conorfennell/attendance/internal/schedule"
	"github.com/conorfennell/attendance/internal/storage"
)

func TestPercentage(t *testing.T) {
	testCases := []struct {
		attended, expected int
		want               float64
	}{
		{attended: 0, expected: 0, want: 0},
		{attended: 3, expected: 0, want: 0},
		{attended: 5, expected: 10, want: 50},
		{attended: 10, expected: 10, want: 100},
	}
	for _, tc := range testCases {
		if got := Percentage(tc.attended, tc.expected); got != tc.want {
			t.Errorf("Percentage(%d, %d): expected %v, got %v", tc.attended, tc.expected, tc.want, got)
		}
	}
}

func TestReportCountsAttendanceWithoutLowerBound(t *testing.T) {
	calc := Calculator{Counter: Counter{SchoolStart: day("2025-09-29")}}
	entries := []domain.ScheduleEntry{entry("Math", time.Monday)}
	records := []domain.AttendanceRecord{
		{Username: "alice", Course: "Math", Date: day("2025-09-01")},
		{Username: "alice", Course: "Math", Date: day("2025-09-29")},
		{Username: "alice", Course: "Math", Date: day("2025-11-03")},
	}

	r := calc.Report("alice", entries, records, day("2025-09-29"))
	if r.Expected != 1 || r.Attended != 2 || r.Percentage != 200 {
		t.Errorf("Expected 2 of 1 attended (200%%), got %+v", r)
	}
	if len(r.Courses) != 1 || r.Courses[0].Days != 3 {
		t.Errorf("Expected the course breakdown to ignore the cutoff, got %+v", r.Courses)
	}
}

func TestRanking(t *testing.T) {
	calc := Calculator{Counter: Counter{SchoolStart: day("2025-09-29")}}
	monday := func(user string) domain.ScheduleEntry {
		e := entry("Math", time.Monday)
		e.Username = user
		return e
	}
	mark := func(user, date string) domain.AttendanceRecord {
		return domain.AttendanceRecord{Username: user, Course: "Math", Date: day(date)}
	}

	entries := []domain.ScheduleEntry{monday("carol"), monday("alice"), monday("bob"), monday("alice")}
	records := []domain.AttendanceRecord{
		mark("bob", "2025-09-29"), mark("bob", "2025-10-06"), mark("bob", "2025-10-13"),
		mark("alice", "2025-09-29"),
		mark("dave", "2025-09-29"),
	}

	ranking := calc.Ranking(entries, records, day("2025-10-13"))
	want := []string{"bob", "alice", "carol"}
	if len(ranking) != len(want) {
		t.Fatalf("Expected %d users, got %+v", len(want), ranking)
	}
	for i, u := range want {
		if ranking[i].Username != u {
			t.Errorf("Position %d: expected %s, got %s", i, u, ranking[i].Username)
		}
	}
	if ranking[0].Percentage != 100 {
		t.Errorf("Expected bob at 100%%, got %v", ranking[0].Percentage)
	}
	if math.Abs(ranking[1].Percentage-100.0/6) > 0.001 {
		t.Errorf("Expected alice at 16.7%%, got %v", ranking[1].Percentage)
	}

	t.Run("ties keep first-seen order", func(t *testing.T) {
		ranking := calc.Ranking([]domain.ScheduleEntry{monday("zed"), monday("amy")}, nil, day("2025-10-13"))
		if ranking[0].Username != "zed" || ranking[1].Username != "amy" {
			t.Errorf("Expected zed before amy, got %+v", ranking)
		}
	})
}

func TestAttendanceScenario(t *testing.T) {
	ctx := context.Background()
	store, err := storage.OpenCSV(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	users := auth.NewService(store)
	if err := users.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("Register returned an unexpected error: %v", err)
	}
	if err := users.Login(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("Expected login to succeed, got %v", err)
	}
	if err := users.Login(ctx, "alice", "wrong"); err == nil {
		t.Fatal("Expected login with the wrong password to fail")
	}

	courses := schedule.NewService(store)
	if _, err := courses.Add(ctx, "alice", "Math", domain.Weekday(time.Monday), 540, 600); err != nil {
		t.Fatalf("Add returned an unexpected error: %v", err)
	}

	ledger := attendance.NewLedger(store)
	for _, d := range []string{"2025-09-29", "2025-10-06"} {
		if _, err := ledger.Toggle(ctx, "alice", "Math", day(d), true); err != nil {
			t.Fatalf("Toggle returned an unexpected error: %v", err)
		}
	}

	svc := NewService(store, Counter{SchoolStart: day("2025-09-29"), Policy: PolicyRetroactive})
	report, err := svc.Stats(ctx, "alice", day("2025-10-13"))
	if err != nil {
		t.Fatalf("Stats returned an unexpected error: %v", err)
	}
	if report.Expected != 3 || report.Attended != 2 {
		t.Errorf("Expected 2 of 3 classes, got %+v", report)
	}
	if math.Abs(report.Percentage-66.667) > 0.01 {
		t.Errorf("Expected about 66.7%%, got %v", report.Percentage)
	}

	ranking, err := svc.Ranking(ctx, day("2025-10-13"))
	if err != nil {
		t.Fatalf("Ranking returned an unexpected error: %v", err)
	}
	if len(ranking) != 1 || ranking[0].Username != "alice" {
		t.Errorf("Expected alice alone in the ranking, got %+v", ranking)
	}
}
