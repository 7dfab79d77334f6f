package participation

import (
	"fmt"
	"time"

	"github.com/conorfennell/attendance/internal/domain"
)

// Policy decides from which date a schedule entry is expected to take place.
type Policy string

const (
	// PolicyRetroactive counts every entry from the school start date,
	// however recently it was added.
	PolicyRetroactive Policy = "retroactive"
	// PolicyFromCreation counts an entry from the later of the school start
	// date and the day it was added. Entries without an added date fall back
	// to retroactive counting.
	PolicyFromCreation Policy = "from-creation"
)

// ParsePolicy accepts "retroactive" or "from-creation"; "" means retroactive.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyRetroactive:
		return PolicyRetroactive, nil
	case PolicyFromCreation:
		return PolicyFromCreation, nil
	}
	return "", fmt.Errorf("unknown counting policy %q", s)
}

// Counter computes how many class instances should have taken place.
type Counter struct {
	SchoolStart time.Time
	Policy      Policy
}

// Expected returns the number of expected class occurrences of schedule over
// every weekday from SchoolStart to cutoff inclusive. A course meeting twice a
// week contributes twice per week.
func (c Counter) Expected(schedule []domain.ScheduleEntry, cutoff time.Time) int {
	start := domain.Date(c.SchoolStart)
	cutoff = domain.Date(cutoff)
	if len(schedule) == 0 || cutoff.Before(start) {
		return 0
	}

	total := 0
	for d := start; !d.After(cutoff); d = d.AddDate(0, 0, 1) {
		wd, ok := domain.WeekdayOf(d)
		if !ok {
			continue
		}
		for _, e := range schedule {
			if e.Day == wd && c.counts(e, d) {
				total++
			}
		}
	}
	return total
}

func (c Counter) counts(e domain.ScheduleEntry, d time.Time) bool {
	if c.Policy != PolicyFromCreation || e.Added.IsZero() {
		return true
	}
	return !d.Before(domain.Date(e.Added))
}
