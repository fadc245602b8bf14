package engine

import (
	"context"
	"fmt"

	"optimal-protocol-sync/internal/metrics"
	"optimal-protocol-sync/internal/model"
	"optimal-protocol-sync/internal/remote"
	"optimal-protocol-sync/internal/stats"
)

// AddHabit creates a habit under a pending local id, applies it
// optimistically, and swaps in the server-assigned id once the remote
// create confirms. On remote failure the optimistic entry is removed and
// the error wraps ErrRolledBack.
func (e *Engine) AddHabit(ctx context.Context, title string, category model.Category) (model.Habit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead() {
		metrics.MutationsTotal.WithLabelValues(metrics.OpAddHabit, metrics.ResultRejected).Inc()
		return model.Habit{}, ErrAccountDead
	}

	habit := model.Habit{
		ID:        model.NewPendingID(),
		UserID:    e.userID,
		Title:     title,
		Category:  model.ParseCategory(string(category)),
		Frequency: model.FrequencyDaily,
		CreatedAt: e.now(),
	}
	e.habits = append(e.habits, habit)

	if e.remote == nil {
		e.persistLocal()
		metrics.MutationsTotal.WithLabelValues(metrics.OpAddHabit, metrics.ResultApplied).Inc()
		return habit, nil
	}

	rec, err := e.remote.CreateHabit(ctx, remote.HabitRecord{
		UserID:    e.userID,
		Title:     habit.Title,
		Category:  string(habit.Category),
		Frequency: habit.Frequency,
		CreatedAt: habit.CreatedAt,
	})
	if err != nil {
		e.removeHabitLocked(habit.ID.Value)
		e.logger.Error("Failed to create habit", "title", title, "error", err)
		e.notifier.Error("UPLOAD FAILED", "Could not save new protocol.")
		metrics.MutationsTotal.WithLabelValues(metrics.OpAddHabit, metrics.ResultRolledBack).Inc()
		return model.Habit{}, fmt.Errorf("%w: %v", ErrRolledBack, err)
	}

	confirmed := habitFromRecord(rec)
	for i := range e.habits {
		if e.habits[i].ID.Value == habit.ID.Value {
			e.habits[i] = confirmed
			break
		}
	}
	// Completions toggled while the create was pending follow the new id
	e.history.Rename(habit.ID.Value, confirmed.ID.Value)

	metrics.MutationsTotal.WithLabelValues(metrics.OpAddHabit, metrics.ResultApplied).Inc()
	return confirmed, nil
}

// EditHabit renames a habit. The edit is kept even when the remote update
// fails: a title conflict is unlikely and losing the user's text is worse
// than a stale remote copy, which the next full fetch reconciles.
func (e *Engine) EditHabit(ctx context.Context, habitID, newTitle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead() {
		metrics.MutationsTotal.WithLabelValues(metrics.OpEditHabit, metrics.ResultRejected).Inc()
		return ErrAccountDead
	}

	found := false
	for i := range e.habits {
		if e.habits[i].ID.Value == habitID {
			e.habits[i].Title = newTitle
			found = true
			break
		}
	}
	if !found {
		return ErrHabitNotFound
	}

	if e.remote == nil {
		e.persistLocal()
		metrics.MutationsTotal.WithLabelValues(metrics.OpEditHabit, metrics.ResultApplied).Inc()
		return nil
	}

	if err := e.remote.UpdateHabitTitle(ctx, habitID, newTitle); err != nil {
		e.logger.Error("Failed to update habit", "habit_id", habitID, "error", err)
		e.notifier.Error("UPDATE FAILED", "Changes not saved to cloud.")
		metrics.MutationsTotal.WithLabelValues(metrics.OpEditHabit, metrics.ResultRemoteFailed).Inc()
		return err
	}

	metrics.MutationsTotal.WithLabelValues(metrics.OpEditHabit, metrics.ResultApplied).Inc()
	return nil
}

// DeleteHabit removes a habit from the in-memory list and the remote store.
// On remote failure the entry is not restored; the delete is reconciled on
// the next full sync.
func (e *Engine) DeleteHabit(ctx context.Context, habitID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead() {
		metrics.MutationsTotal.WithLabelValues(metrics.OpDeleteHabit, metrics.ResultRejected).Inc()
		return ErrAccountDead
	}

	if !e.removeHabitLocked(habitID) {
		return ErrHabitNotFound
	}

	if e.remote == nil {
		e.persistLocal()
		metrics.MutationsTotal.WithLabelValues(metrics.OpDeleteHabit, metrics.ResultApplied).Inc()
		return nil
	}

	if err := e.remote.DeleteHabit(ctx, habitID); err != nil {
		e.logger.Error("Failed to delete habit", "habit_id", habitID, "error", err)
		e.notifier.Error("DELETE FAILED", "Protocol persists in cloud.")
		metrics.MutationsTotal.WithLabelValues(metrics.OpDeleteHabit, metrics.ResultRemoteFailed).Inc()
		return err
	}

	metrics.MutationsTotal.WithLabelValues(metrics.OpDeleteHabit, metrics.ResultApplied).Inc()
	return nil
}

// ToggleCompletion flips the (habit, day) completion membership and returns
// the new state so the caller can branch UI effects on it. The flip is kept
// even when the paired remote call fails; the next full fetch reconciles.
//
// The engine itself is symmetric — callers enforce any policy against
// un-completing the current day.
func (e *Engine) ToggleCompletion(ctx context.Context, habitID, day string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead() {
		metrics.MutationsTotal.WithLabelValues(metrics.OpToggleCompletion, metrics.ResultRejected).Inc()
		return e.history.Completed(day, habitID), ErrAccountDead
	}

	known := false
	for i := range e.habits {
		if e.habits[i].ID.Value == habitID {
			known = true
			break
		}
	}
	if !known {
		return false, ErrHabitNotFound
	}

	wasCompleted := e.history.Completed(day, habitID)
	if wasCompleted {
		e.history.Remove(day, habitID)
	} else {
		e.history.Add(day, habitID)
	}
	nowCompleted := !wasCompleted

	if e.remote == nil {
		e.persistLocal()
		metrics.MutationsTotal.WithLabelValues(metrics.OpToggleCompletion, metrics.ResultApplied).Inc()
		return nowCompleted, nil
	}

	var err error
	if wasCompleted {
		err = e.remote.DeleteLog(ctx, habitID, day)
	} else {
		err = e.remote.CreateLog(ctx, remote.LogRecord{
			UserID:      e.userID,
			HabitID:     habitID,
			DateString:  day,
			CompletedAt: e.now(),
		})
	}
	if err != nil {
		e.logger.Error("Failed to sync completion", "habit_id", habitID, "day", day, "error", err)
		e.notifier.Error("SYNC ERROR", "Completion status mismatch.")
		metrics.MutationsTotal.WithLabelValues(metrics.OpToggleCompletion, metrics.ResultRemoteFailed).Inc()
		return nowCompleted, err
	}

	if nowCompleted && day == model.DayString(e.now()) {
		e.pushVitals(ctx, day)
	}

	metrics.MutationsTotal.WithLabelValues(metrics.OpToggleCompletion, metrics.ResultApplied).Inc()
	return nowCompleted, nil
}

// pushVitals updates the profile fields the vital-signs job reads. Best
// effort: a failure here must not fail the completion that triggered it.
func (e *Engine) pushVitals(ctx context.Context, day string) {
	streak := stats.Streak(e.habits, e.history, e.now())
	e.profile.LastLogDate = day
	e.profile.Streak = streak

	err := e.remote.UpdateProfile(ctx, e.userID, map[string]interface{}{
		"last_log_date": day,
		"streak":        streak,
	})
	if err != nil {
		e.logger.Warn("Failed to push vitals", "user_id", e.userID, "error", err)
	}
}

// SetHabitsBulk replaces the whole habit collection, used for protocol
// template selection. Online, nothing changes unless the bulk insert
// succeeds, at which point the server-confirmed records (with assigned ids)
// become the new list.
func (e *Engine) SetHabitsBulk(ctx context.Context, list []model.Habit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead() {
		metrics.MutationsTotal.WithLabelValues(metrics.OpSetHabitsBulk, metrics.ResultRejected).Inc()
		return ErrAccountDead
	}

	if e.remote == nil {
		habits := make([]model.Habit, 0, len(list))
		for _, h := range list {
			h.ID = model.NewPendingID()
			h.UserID = e.userID
			h.Category = model.ParseCategory(string(h.Category))
			h.Frequency = model.FrequencyDaily
			if h.CreatedAt.IsZero() {
				h.CreatedAt = e.now()
			}
			habits = append(habits, h)
		}
		e.habits = habits
		e.persistLocal()
		e.notifier.Success("OFFLINE PROTOCOL", "Directives stored locally.")
		metrics.MutationsTotal.WithLabelValues(metrics.OpSetHabitsBulk, metrics.ResultApplied).Inc()
		return nil
	}

	recs := make([]remote.HabitRecord, 0, len(list))
	for _, h := range list {
		createdAt := h.CreatedAt
		if createdAt.IsZero() {
			createdAt = e.now()
		}
		recs = append(recs, remote.HabitRecord{
			UserID:    e.userID,
			Title:     h.Title,
			Category:  string(model.ParseCategory(string(h.Category))),
			Frequency: model.FrequencyDaily,
			CreatedAt: createdAt,
		})
	}

	created, err := e.remote.CreateHabits(ctx, recs, false)
	if err != nil {
		e.logger.Error("Failed to bulk set habits", "count", len(recs), "error", err)
		e.notifier.Error("INITIATION FAILED", "Could not load protocol.")
		metrics.MutationsTotal.WithLabelValues(metrics.OpSetHabitsBulk, metrics.ResultRemoteFailed).Inc()
		return err
	}

	e.habits = habitsFromRecords(created)
	e.notifier.Success("PROTOCOL INITIATED", "New directives received.")
	metrics.MutationsTotal.WithLabelValues(metrics.OpSetHabitsBulk, metrics.ResultApplied).Inc()
	return nil
}

// removeHabitLocked removes a habit by id. Caller holds the mutex.
func (e *Engine) removeHabitLocked(habitID string) bool {
	for i := range e.habits {
		if e.habits[i].ID.Value == habitID {
			e.habits = append(e.habits[:i:i], e.habits[i+1:]...)
			return true
		}
	}
	return false
}
