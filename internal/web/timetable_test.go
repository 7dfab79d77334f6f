package web

import (
	"testing"
	"time"

	"github.com/conorfennell/attendance/internal/domain"
)

func TestBuildTimetable(t *testing.T) {
	entries := []domain.ScheduleEntry{
		{Course: "Math", Day: domain.Weekday(time.Monday), Start: 8 * 60, End: 9 * 60},
		{Course: "Bio", Day: domain.Weekday(time.Monday), Start: 18 * 60, End: 20 * 60},
		{Course: "Math", Day: domain.Weekday(time.Wednesday), Start: 10 * 60, End: 10 * 60},
		{Course: "Art", Day: domain.Weekday(time.Friday), Start: 6 * 60, End: 7 * 60},
	}
	tt := buildTimetable(entries)

	if len(tt.Columns) != 5 || tt.Columns[0].Day != "Monday" || tt.Columns[4].Day != "Friday" {
		t.Fatalf("unexpected columns %+v", tt.Columns)
	}
	if len(tt.Hours) != 11 || tt.Hours[0] != "08:00" || tt.Hours[10] != "18:00" {
		t.Errorf("unexpected hours %v", tt.Hours)
	}

	mon := tt.Columns[0].Blocks
	if len(mon) != 2 {
		t.Fatalf("expected 2 Monday blocks, got %d", len(mon))
	}
	if mon[0].Color != palette[0] || mon[1].Color != palette[1] {
		t.Errorf("unexpected colours %q %q", mon[0].Color, mon[1].Color)
	}
	if mon[0].Top != "0.00%" || mon[0].Height != "9.09%" {
		t.Errorf("Math block at %s/%s", mon[0].Top, mon[0].Height)
	}
	// clipped at 19:00
	if mon[1].Height != "9.09%" {
		t.Errorf("Bio block height %s", mon[1].Height)
	}
	if n := len(tt.Columns[2].Blocks); n != 0 {
		t.Errorf("zero-length block should be skipped, got %d", n)
	}
	if n := len(tt.Columns[4].Blocks); n != 0 {
		t.Errorf("block before 08:00 should be skipped, got %d", n)
	}
}

func TestPaletteWraps(t *testing.T) {
	var entries []domain.ScheduleEntry
	for i := 0; i < len(palette)+1; i++ {
		entries = append(entries, domain.ScheduleEntry{
			Course: string(rune('A' + i)),
			Day:    domain.Weekday(time.Tuesday),
			Start:  domain.Clock(9*60 + i),
			End:    domain.Clock(10*60 + i),
		})
	}
	blocks := buildTimetable(entries).Columns[1].Blocks
	if blocks[len(blocks)-1].Color != palette[0] {
		t.Errorf("expected the 11th course to reuse the first colour")
	}
}
