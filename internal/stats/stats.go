// Package stats computes derived gamification state from the in-memory
// habit list and completion history.
//
// Every function here is pure: no hidden counters, no side effects, identical
// inputs produce identical outputs. Callers recompute on every relevant
// change instead of maintaining incremental state.
package stats

import (
	"time"

	"optimal-protocol-sync/internal/model"
)

// maxStreakDays bounds the backward walk. A streak can never exceed this.
const maxStreakDays = 365

// Streak counts consecutive days, walking backward from today, on which
// every habit that existed that day was completed.
//
// Day 0 (today) gets leniency: an incomplete today does not break the chain,
// the walk just continues into yesterday. A day with no relevant habits
// neither breaks nor extends the streak.
func Streak(habits []model.Habit, history model.History, today time.Time) int {
	streak := 0

	for offset := 0; offset < maxStreakDays; offset++ {
		day := today.AddDate(0, 0, -offset)
		dayStr := model.DayString(day)

		var relevant []model.Habit
		for _, h := range habits {
			// A just-created habit counts immediately for today.
			if offset == 0 || h.ExistedOn(day) {
				relevant = append(relevant, h)
			}
		}

		if len(relevant) == 0 {
			continue
		}

		allCompleted := true
		for _, h := range relevant {
			if !history.Completed(dayStr, h.ID.Value) {
				allCompleted = false
				break
			}
		}

		switch {
		case allCompleted:
			streak++
		case offset == 0:
			// Today is still in progress.
			continue
		default:
			return streak
		}
	}

	return streak
}

// HabitStreak counts consecutive completed days for a single habit, walking
// backward from today and stopping once the day predates the habit's
// creation. Today gets the same leniency as Streak.
func HabitStreak(habit model.Habit, history model.History, today time.Time) int {
	streak := 0

	for offset := 0; offset < maxStreakDays; offset++ {
		day := today.AddDate(0, 0, -offset)

		if offset > 0 && !habit.ExistedOn(day) {
			break
		}

		if history.Completed(model.DayString(day), habit.ID.Value) {
			streak++
		} else if offset == 0 {
			continue
		} else {
			break
		}
	}

	return streak
}

// CategoryStats holds the per-category completion ratio for a single day,
// in [0, 1]. Categories with no habits report 0.
type CategoryStats map[model.Category]float64

// CategoryRatios computes today's completion ratio per category over the
// current habit set. A removed habit contributes nothing: ratios reflect
// only habits present in the list at call time.
func CategoryRatios(habits []model.Habit, history model.History, today time.Time) CategoryStats {
	type tally struct{ done, total int }
	counts := make(map[model.Category]*tally, 4)
	for _, cat := range model.Categories() {
		counts[cat] = &tally{}
	}

	dayStr := model.DayString(today)
	for _, h := range habits {
		cat := model.ParseCategory(string(h.Category))
		counts[cat].total++
		if history.Completed(dayStr, h.ID.Value) {
			counts[cat].done++
		}
	}

	out := make(CategoryStats, 4)
	for cat, t := range counts {
		if t.total > 0 {
			out[cat] = float64(t.done) / float64(t.total)
		} else {
			out[cat] = 0
		}
	}
	return out
}

// Integrity is the arithmetic mean of the four category ratios. It is not
// weighted by habit count: each category contributes a quarter.
func Integrity(ratios CategoryStats) float64 {
	sum := 0.0
	for _, cat := range model.Categories() {
		sum += ratios[cat]
	}
	return sum / 4
}

// AllDoneToday reports whether the habit list is non-empty and every habit
// was completed today.
func AllDoneToday(habits []model.Habit, history model.History, today time.Time) bool {
	if len(habits) == 0 {
		return false
	}
	dayStr := model.DayString(today)
	for _, h := range habits {
		if !history.Completed(dayStr, h.ID.Value) {
			return false
		}
	}
	return true
}
