// Package engine owns the in-memory session state (habit list, completion
// history, profile) and keeps it reconciled with the local cache and the
// remote record store.
//
// All mutations are serialized through one mutex: an operation applies its
// optimistic change, awaits the remote round-trip, and resolves before the
// next operation starts, mirroring the event-loop model of the original
// client. Consumers that need a responsive UI call mutations from their own
// goroutine and render from the accessor snapshots.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"optimal-protocol-sync/internal/cache"
	"optimal-protocol-sync/internal/metrics"
	"optimal-protocol-sync/internal/model"
	"optimal-protocol-sync/internal/remote"
	"optimal-protocol-sync/internal/stats"
)

// Engine is the single owner of a session's habit state.
type Engine struct {
	mu       sync.Mutex
	remote   *remote.Client // nil in offline mode
	store    *cache.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	userID  string
	habits  []model.Habit
	history model.History
	profile model.Profile
	loading bool
}

// New creates an engine backed by the given remote client and local cache.
// A nil client puts the engine in offline mode: every operation works
// against the in-memory state with write-through to the cache, and no sync
// is attempted.
func New(client *remote.Client, store *cache.Store, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &Engine{
		remote:   client,
		store:    store,
		notifier: notifier,
		logger:   slog.Default(),
		now:      time.Now,
		history:  model.History{},
		profile:  model.Profile{Status: model.StatusAlive},
	}
}

// Offline reports whether the engine runs without a remote store.
func (e *Engine) Offline() bool {
	return e.remote == nil
}

// Bootstrap establishes the session state for the given user.
//
// Online, the remote store is authoritative — with one exception: when the
// remote habit collection is empty and the local cache is not, the cached
// records are migrated up (first login with pre-existing local data), the
// remote state is re-fetched, and the cache is cleared so the next launch
// does not migrate again. On any transport failure the prior in-memory
// state is left untouched and a SyncError is returned.
func (e *Engine) Bootstrap(ctx context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.userID = userID
	e.loading = true
	defer func() { e.loading = false }()

	if e.remote == nil {
		e.habits = e.store.LoadHabits()
		e.history = e.store.LoadHistory()
		metrics.BootstrapsTotal.WithLabelValues(metrics.BootstrapOffline).Inc()
		return nil
	}

	cloudHabits, err := e.remote.ListHabits(ctx, userID)
	if err != nil {
		return e.bootstrapFailed(err)
	}
	cloudLogs, err := e.remote.ListLogs(ctx, userID)
	if err != nil {
		return e.bootstrapFailed(err)
	}

	localHabits := e.store.LoadHabits()
	localHistory := e.store.LoadHistory()

	outcome := metrics.BootstrapAuthoritative
	if len(cloudHabits) == 0 && (len(localHabits) > 0 || !localHistory.Empty()) {
		e.notifier.Info("SYNCING", "Uploading local data to neural cloud...")

		if err := e.migrate(ctx, userID, localHabits, localHistory); err != nil {
			// Cache deliberately not cleared: the idempotent upsert makes a
			// retry on next launch safe.
			return e.bootstrapFailed(err)
		}

		if cloudHabits, err = e.remote.ListHabits(ctx, userID); err != nil {
			return e.bootstrapFailed(err)
		}
		if cloudLogs, err = e.remote.ListLogs(ctx, userID); err != nil {
			return e.bootstrapFailed(err)
		}

		e.store.Clear()
		e.notifier.Success("SYNC COMPLETE", "Neural link established.")
		outcome = metrics.BootstrapMigrated
	}

	e.habits = habitsFromRecords(cloudHabits)
	e.history = historyFromLogs(cloudLogs)

	// Profile status drives the permadeath gate; fetch failure degrades to
	// the previous status rather than aborting the session.
	if profile, err := e.remote.GetProfile(ctx, userID); err != nil {
		e.logger.Warn("Failed to fetch profile", "user_id", userID, "error", err)
	} else if profile != nil {
		e.profile = *profile
	}

	metrics.BootstrapsTotal.WithLabelValues(outcome).Inc()
	return nil
}

func (e *Engine) bootstrapFailed(err error) error {
	metrics.BootstrapsTotal.WithLabelValues(metrics.BootstrapFailed).Inc()
	e.logger.Error("Bootstrap failed", "error", err)
	e.notifier.Error("SYNC FAILED", "Could not retrieve protocol data.")
	return err
}

// migrate uploads locally cached records to the remote store. Habit ids are
// client-generated UUIDs sent as explicit primary keys with an upsert
// preference, so a partially failed migration that runs again does not
// duplicate rows.
func (e *Engine) migrate(ctx context.Context, userID string, localHabits []model.Habit, localHistory model.History) error {
	idMap := make(map[string]string, len(localHabits))
	recs := make([]remote.HabitRecord, 0, len(localHabits))

	for _, h := range localHabits {
		id := h.ID.Value
		if uuid.Validate(id) != nil {
			// Legacy local ids are not valid primary keys; mint one.
			id = uuid.NewString()
		}
		idMap[h.ID.Value] = id

		createdAt := h.CreatedAt
		if createdAt.IsZero() {
			createdAt = e.now()
		}

		recs = append(recs, remote.HabitRecord{
			ID:        id,
			UserID:    userID,
			Title:     h.Title,
			Category:  string(model.ParseCategory(string(h.Category))),
			Frequency: model.FrequencyDaily,
			CreatedAt: createdAt,
		})
	}

	if len(recs) > 0 {
		if _, err := e.remote.CreateHabits(ctx, recs, true); err != nil {
			return err
		}
		metrics.MigratedRecordsTotal.WithLabelValues(metrics.RecordHabit).Add(float64(len(recs)))
	}

	var logRecs []remote.LogRecord
	for day, entries := range localHistory {
		for _, oldID := range entries {
			newID, ok := idMap[oldID]
			if !ok {
				// Completion for a habit that no longer exists locally
				continue
			}
			logRecs = append(logRecs, remote.LogRecord{
				UserID:      userID,
				HabitID:     newID,
				DateString:  day,
				CompletedAt: e.now(),
			})
		}
	}

	if err := e.remote.CreateLogs(ctx, logRecs); err != nil {
		return err
	}
	metrics.MigratedRecordsTotal.WithLabelValues(metrics.RecordLog).Add(float64(len(logRecs)))

	e.logger.Info("Migrated local data to remote store",
		"user_id", userID,
		"habits", len(recs),
		"logs", len(logRecs))
	return nil
}

// Habits returns a snapshot of the current habit list.
func (e *Engine) Habits() []model.Habit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Habit(nil), e.habits...)
}

// History returns a snapshot of the completion history.
func (e *Engine) History() model.History {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Clone()
}

// Profile returns the last fetched profile.
func (e *Engine) Profile() model.Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// Loading reports whether a bootstrap is in flight.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Today returns the current calendar-day key.
func (e *Engine) Today() string {
	return model.DayString(e.now())
}

// Streak returns the current running streak.
func (e *Engine) Streak() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stats.Streak(e.habits, e.history, e.now())
}

// HabitStreak returns the streak for a single habit, or 0 for an unknown id.
func (e *Engine) HabitStreak(habitID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.habits {
		if h.ID.Value == habitID {
			return stats.HabitStreak(h, e.history, e.now())
		}
	}
	return 0
}

// CategoryRatios returns today's per-category completion ratios.
func (e *Engine) CategoryRatios() stats.CategoryStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stats.CategoryRatios(e.habits, e.history, e.now())
}

// Integrity returns today's overall integrity in [0, 1].
func (e *Engine) Integrity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stats.Integrity(stats.CategoryRatios(e.habits, e.history, e.now()))
}

// AllDoneToday reports whether every current habit is completed today.
func (e *Engine) AllDoneToday() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stats.AllDoneToday(e.habits, e.history, e.now())
}

// HardcoreMode returns the commitment-mode preference.
func (e *Engine) HardcoreMode() bool {
	return e.store.HardcoreMode()
}

// SetHardcoreMode persists the commitment-mode opt-in locally and, when
// online, on the profile so the server-side deadline enforcement sees it.
func (e *Engine) SetHardcoreMode(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.SetHardcoreMode(enabled)
	e.profile.HardcoreMode = enabled

	if e.remote == nil {
		return nil
	}

	if err := e.remote.UpdateProfile(ctx, e.userID, map[string]interface{}{"hardcore_mode": enabled}); err != nil {
		e.logger.Error("Failed to update hardcore mode", "error", err)
		e.notifier.Error("SETTINGS", "Commitment mode not saved to cloud.")
		return err
	}
	return nil
}

func (e *Engine) dead() bool {
	return e.profile.Status == model.StatusDead
}

// persistLocal writes the in-memory collections through to the cache.
// Offline mode only: after a successful migration the cache must stay empty.
func (e *Engine) persistLocal() {
	if e.remote != nil {
		return
	}
	e.store.SaveHabits(e.habits)
	e.store.SaveHistory(e.history)
}

func habitFromRecord(rec remote.HabitRecord) model.Habit {
	return model.Habit{
		ID:        model.ConfirmedID(rec.ID),
		UserID:    rec.UserID,
		Title:     rec.Title,
		Category:  model.ParseCategory(rec.Category),
		Frequency: rec.Frequency,
		CreatedAt: rec.CreatedAt,
	}
}

func habitsFromRecords(recs []remote.HabitRecord) []model.Habit {
	habits := make([]model.Habit, 0, len(recs))
	for _, rec := range recs {
		habits = append(habits, habitFromRecord(rec))
	}
	return habits
}

func historyFromLogs(recs []remote.LogRecord) model.History {
	history := model.History{}
	for _, rec := range recs {
		history.Add(rec.DateString, rec.HabitID)
	}
	return history
}
