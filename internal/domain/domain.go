package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the on-disk format of calendar dates.
const DateLayout = "2006-01-02"

// User is a registered account.
type User struct {
	Username     string
	PasswordHash string
}

// ScheduleEntry is one weekly course block of a user.
// Added is the local date the entry was created and may be zero for legacy rows.
type ScheduleEntry struct {
	Username string
	Course   string
	Day      Weekday
	Start    Clock
	End      Clock
	Added    time.Time
}

// AttendanceRecord marks that a user attended a course on a date.
type AttendanceRecord struct {
	Username string
	Course   string
	Date     time.Time
}

// Weekday is a school day, Monday through Friday.
type Weekday time.Weekday

// SchoolDays lists the weekdays a schedule may use, in display order.
var SchoolDays = []Weekday{
	Weekday(time.Monday),
	Weekday(time.Tuesday),
	Weekday(time.Wednesday),
	Weekday(time.Thursday),
	Weekday(time.Friday),
}

// turkishDays maps the day names of older data files, with and without
// diacritics, to school days.
var turkishDays = map[string]Weekday{
	"pazartesi": Weekday(time.Monday),
	"salı":      Weekday(time.Tuesday),
	"sali":      Weekday(time.Tuesday),
	"çarşamba":  Weekday(time.Wednesday),
	"carsamba":  Weekday(time.Wednesday),
	"perşembe":  Weekday(time.Thursday),
	"persembe":  Weekday(time.Thursday),
	"cuma":      Weekday(time.Friday),
}

// ParseWeekday accepts full or three-letter English day names, or Turkish
// day names, in any case.
func ParseWeekday(s string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if d, ok := turkishDays[name]; ok {
		return d, nil
	}
	for _, d := range SchoolDays {
		full := strings.ToLower(time.Weekday(d).String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid school day %q", s)
}

// WeekdayOf returns the school day of t and false for weekends.
func WeekdayOf(t time.Time) (Weekday, bool) {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return 0, false
	}
	return Weekday(wd), true
}

// Valid reports whether d is Monday through Friday.
func (d Weekday) Valid() bool {
	return time.Weekday(d) >= time.Monday && time.Weekday(d) <= time.Friday
}

// Index is the zero-based column of d in SchoolDays.
func (d Weekday) Index() int {
	return int(d) - int(time.Monday)
}

func (d Weekday) String() string {
	return time.Weekday(d).String()
}

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses an HH:MM time of day.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	// Tolerate a seconds suffix such as "09:30:00".
	mm, _, _ = strings.Cut(mm, ":")
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(h*60 + m), nil
}

// Hours returns the clock as fractional hours, e.g. 13:30 is 13.5.
func (c Clock) Hours() float64 {
	return float64(c) / 60
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Date truncates t to its calendar day in UTC, keeping the year, month and day of t.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO-8601 date. Anything after the first ten characters,
// such as a time component, is ignored.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
