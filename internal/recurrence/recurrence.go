// Package recurrence computes the next occurrence of a recurring
// schedule entry. All functions are pure and deterministic so the
// expansion logic can be tested independently of the dispatcher.
package recurrence

import (
	"time"

	"github.com/jwalitptl/engage-scheduler/internal/model"
)

// Next returns the first occurrence of rule strictly after from, in
// from's location. The second return value is false when the rule is
// malformed; callers surface that as an invalid-recurrence error.
func Next(rule *model.RecurrenceRule, from time.Time) (time.Time, bool) {
	if rule == nil || rule.Validate() != nil {
		return time.Time{}, false
	}

	hour, minute, second := from.Clock()
	if rule.TimeOfDay != "" {
		tod, err := time.Parse("15:04", rule.TimeOfDay)
		if err != nil {
			return time.Time{}, false
		}
		hour, minute, second = tod.Hour(), tod.Minute(), 0
	}

	switch rule.Frequency {
	case model.FrequencyDaily:
		next := from.AddDate(0, 0, 1)
		return at(next, hour, minute, second), true

	case model.FrequencyWeekly:
		allowed := make(map[time.Weekday]bool, len(rule.Weekdays))
		for _, wd := range rule.Weekdays {
			allowed[wd] = true
		}
		for days := 1; days <= 7; days++ {
			cand := at(from.AddDate(0, 0, days), hour, minute, second)
			if allowed[cand.Weekday()] {
				return cand, true
			}
		}
		return time.Time{}, false

	case model.FrequencyMonthly:
		day := rule.DayOfMonth
		if day == 0 {
			day = from.Day()
		}
		year, month, _ := from.Date()
		month++
		if last := daysIn(year, month, from.Location()); day > last {
			day = last
		}
		return time.Date(year, month, day, hour, minute, second, 0, from.Location()), true
	}

	return time.Time{}, false
}

func at(t time.Time, hour, minute, second int) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, hour, minute, second, 0, t.Location())
}

// daysIn relies on Date normalizing day zero to the last day of the
// previous month.
func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
