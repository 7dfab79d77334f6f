package web

import (
	"fmt"

	"github.com/conorfennell/attendance/internal/domain"
	"github.com/conorfennell/attendance/internal/schedule"
)

// visible hours of the weekly grid
const (
	firstHour = 8
	lastHour  = 19
)

var palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

type timetable struct {
	Hours   []string
	Columns []dayColumn
}

type dayColumn struct {
	Day    string
	Blocks []block
}

type block struct {
	Course string
	Start  string
	End    string
	Top    string
	Height string
	Color  string
}

// buildTimetable lays out entries on a Monday to Friday grid.
// Each course gets one colour, assigned in first-seen order.
func buildTimetable(entries []domain.ScheduleEntry) timetable {
	tt := timetable{}
	for h := firstHour; h < lastHour; h++ {
		tt.Hours = append(tt.Hours, fmt.Sprintf("%02d:00", h))
	}

	colors := make(map[string]string)
	for i, c := range schedule.Courses(entries) {
		colors[c] = palette[i%len(palette)]
	}

	for _, day := range domain.SchoolDays {
		col := dayColumn{Day: day.String()}
		for _, e := range schedule.ForDay(entries, day) {
			top, height, ok := span(e.Start, e.End)
			if !ok {
				continue
			}
			col.Blocks = append(col.Blocks, block{
				Course: e.Course,
				Start:  e.Start.String(),
				End:    e.End.String(),
				Top:    fmt.Sprintf("%.2f%%", top),
				Height: fmt.Sprintf("%.2f%%", height),
				Color:  colors[e.Course],
			})
		}
		tt.Columns = append(tt.Columns, col)
	}
	return tt
}

// span returns the vertical offset and height of a block as percentages of
// the visible range, clipped to it. ok is false when nothing is visible.
func span(start, end domain.Clock) (top, height float64, ok bool) {
	const total = lastHour - firstHour
	from := clamp(start.Hours()-firstHour, 0, total)
	to := clamp(end.Hours()-firstHour, 0, total)
	if to <= from {
		return 0, 0, false
	}
	return 100 * from / total, 100 * (to - from) / total, true
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
