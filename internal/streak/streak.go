// Package streak computes longitudinal engagement metrics over the set
// of calendar days on which a user completed at least one session.
//
// Day boundaries are UTC throughout: activity day keys are derived from
// UTC timestamps and "today" is the caller's reference time truncated
// to its UTC date. Mixing local-time day keys into the same set would
// silently split or merge streaks across the boundary.
package streak

import (
	"sort"
	"time"
)

// Result holds the engagement metrics for one user.
type Result struct {
	Current int `json:"current"`
	Best    int `json:"best"`
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Calc computes the current and best streaks over the given activity
// days, evaluated as of asOf. Days may arrive unsorted and with
// duplicates; both are handled here. An empty set yields {0, 0}.
//
// The current streak is the consecutive run ending at asOf's day, or at
// the day before it: a day without activity does not zero the streak
// when checked before that day ends. Best is never reported smaller
// than current.
func Calc(days []time.Time, asOf time.Time) Result {
	if len(days) == 0 {
		return Result{}
	}

	uniq := make(map[time.Time]bool, len(days))
	for _, d := range days {
		uniq[DayOf(d)] = true
	}
	sorted := make([]time.Time, 0, len(uniq))
	for d := range uniq {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	// Longest run of consecutive days anywhere in the set.
	best := 1
	run := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Equal(sorted[i-1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}

	// Run ending at today, or at yesterday if today has no activity yet.
	today := DayOf(asOf)
	yesterday := today.AddDate(0, 0, -1)
	var anchor time.Time
	switch {
	case uniq[today]:
		anchor = today
	case uniq[yesterday]:
		anchor = yesterday
	default:
		return Result{Current: 0, Best: best}
	}

	current := 0
	for d := anchor; uniq[d]; d = d.AddDate(0, 0, -1) {
		current++
	}

	if current > best {
		best = current
	}
	return Result{Current: current, Best: best}
}
