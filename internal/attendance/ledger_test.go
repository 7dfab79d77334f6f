package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/conorfennell/attendance/internal/domain"
	"github.com/conorfennell/attendance/internal/storage"
)

func day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestLedger(t *testing.T) (*Ledger, *storage.CSVStore, *int) {
	t.Helper()
	writes := 0
	store, err := storage.OpenCSV(t.TempDir(), storage.WithChangeFunc(func(storage.Change) { writes++ }))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return NewLedger(store), store, &writes
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	ledger, store, writes := newTestLedger(t)
	date := day("2025-09-29")

	t.Run("insert is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			changed, err := ledger.Toggle(ctx, "alice", "Math", date, true)
			if err != nil {
				t.Fatalf("Toggle returned an unexpected error: %v", err)
			}
			if changed != (i == 0) {
				t.Errorf("Call %d: expected changed=%v, got %v", i, i == 0, changed)
			}
		}
		records, _ := store.LoadAttendance(ctx)
		if len(records) != 1 {
			t.Fatalf("Expected exactly one record, got %+v", records)
		}
		if *writes != 1 {
			t.Errorf("Expected one write, got %d", *writes)
		}
	})

	t.Run("time of day is ignored", func(t *testing.T) {
		changed, err := ledger.Toggle(ctx, "alice", "Math", date.Add(10*time.Hour), true)
		if err != nil || changed {
			t.Errorf("Expected the same calendar day to be a no-op, got changed=%v err=%v", changed, err)
		}
	})

	t.Run("delete removes the record", func(t *testing.T) {
		changed, err := ledger.Toggle(ctx, "alice", "Math", date, false)
		if err != nil || !changed {
			t.Fatalf("Expected the record to be removed, got changed=%v err=%v", changed, err)
		}
		records, _ := store.LoadAttendance(ctx)
		if len(records) != 0 {
			t.Errorf("Expected no records, got %+v", records)
		}
	})

	t.Run("delete of a missing record is a no-op", func(t *testing.T) {
		before := *writes
		changed, err := ledger.Toggle(ctx, "alice", "Math", date, false)
		if err != nil || changed {
			t.Errorf("Expected a no-op, got changed=%v err=%v", changed, err)
		}
		if *writes != before {
			t.Error("Expected no write for a no-op toggle")
		}
	})

	t.Run("delete removes duplicates", func(t *testing.T) {
		dup := domain.AttendanceRecord{Username: "alice", Course: "Art", Date: date}
		other := domain.AttendanceRecord{Username: "bob", Course: "Art", Date: date}
		if err := store.SaveAttendance(ctx, []domain.AttendanceRecord{dup, other, dup}); err != nil {
			t.Fatalf("SaveAttendance returned an unexpected error: %v", err)
		}
		if _, err := ledger.Toggle(ctx, "alice", "Art", date, false); err != nil {
			t.Fatalf("Toggle returned an unexpected error: %v", err)
		}
		records, _ := store.LoadAttendance(ctx)
		if len(records) != 1 || records[0].Username != "bob" {
			t.Errorf("Expected only bob's record to remain, got %+v", records)
		}
	})
}

func TestMarkedOn(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger(t)
	for _, course := range []string{"Math", "Art"} {
		if _, err := ledger.Toggle(ctx, "alice", course, day("2025-10-06"), true); err != nil {
			t.Fatalf("Toggle returned an unexpected error: %v", err)
		}
	}
	if _, err := ledger.Toggle(ctx, "alice", "Math", day("2025-10-07"), true); err != nil {
		t.Fatalf("Toggle returned an unexpected error: %v", err)
	}

	marked, err := ledger.MarkedOn(ctx, "alice", day("2025-10-06"))
	if err != nil {
		t.Fatalf("MarkedOn returned an unexpected error: %v", err)
	}
	if len(marked) != 2 || !marked["Math"] || !marked["Art"] {
		t.Errorf("Expected Math and Art to be marked, got %v", marked)
	}

	mine, err := ledger.ForUser(ctx, "alice")
	if err != nil || len(mine) != 3 {
		t.Errorf("Expected 3 records for alice, got %d (err=%v)", len(mine), err)
	}
}

func TestCounts(t *testing.T) {
	records := []domain.AttendanceRecord{
		{Username: "alice", Course: "Math", Date: day("2025-09-29")},
		{Username: "alice", Course: "Math", Date: day("2025-09-29")},
		{Username: "alice", Course: "Math", Date: day("2025-10-06")},
		{Username: "alice", Course: "Art", Date: day("2025-10-10")},
		{Username: "alice", Course: "Art", Date: day("2025-12-01")},
		{Username: "bob", Course: "Math", Date: day("2025-09-29")},
	}

	if n := CountDistinctDays(records, "alice", "Math"); n != 2 {
		t.Errorf("Expected 2 distinct Math days, got %d", n)
	}

	testCases := []struct {
		cutoff string
		want   int
	}{
		{cutoff: "2025-09-28", want: 0},
		{cutoff: "2025-09-29", want: 2},
		{cutoff: "2025-10-13", want: 4},
		{cutoff: "2026-01-01", want: 5},
	}
	for _, tc := range testCases {
		t.Run(tc.cutoff, func(t *testing.T) {
			if n := CountTotal(records, "alice", day(tc.cutoff)); n != tc.want {
				t.Errorf("Expected %d records up to %s, got %d", tc.want, tc.cutoff, n)
			}
		})
	}

	summary := Summary(records, "alice")
	want := []CourseCount{{Course: "Art", Days: 2}, {Course: "Math", Days: 2}}
	if len(summary) != len(want) || summary[0] != want[0] || summary[1] != want[1] {
		t.Errorf("Expected summary %v, got %v", want, summary)
	}
}
