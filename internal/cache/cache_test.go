package cache

import (
	"testing"
	"time"

	"optimal-protocol-sync/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/cache.db")
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadEmptyStore(t *testing.T) {
	store := setupTestStore(t)

	if habits := store.LoadHabits(); len(habits) != 0 {
		t.Errorf("Expected no habits, got %d", len(habits))
	}
	if history := store.LoadHistory(); !history.Empty() {
		t.Errorf("Expected empty history, got %d days", len(history))
	}
	if store.HardcoreMode() {
		t.Error("Expected hardcore mode off by default")
	}
}

func TestSaveAndLoadHabits(t *testing.T) {
	store := setupTestStore(t)

	created := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	habits := []model.Habit{
		{
			ID:        model.ConfirmedID("srv-1"),
			Title:     "Cold Shower",
			Category:  model.CategoryRecovery,
			Frequency: model.FrequencyDaily,
			CreatedAt: created,
		},
		{
			ID:        model.NewPendingID(),
			Title:     "Read 10 Pages",
			Category:  model.CategoryKnowledge,
			CreatedAt: created,
		},
	}

	store.SaveHabits(habits)

	loaded := store.LoadHabits()
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 habits, got %d", len(loaded))
	}
	if loaded[0].ID.Value != "srv-1" || loaded[0].ID.Pending {
		t.Errorf("Confirmed id not preserved: %+v", loaded[0].ID)
	}
	if loaded[1].ID != habits[1].ID {
		t.Errorf("Pending id not preserved: %+v", loaded[1].ID)
	}
	if !loaded[0].CreatedAt.Equal(created) {
		t.Errorf("Expected creation time %v, got %v", created, loaded[0].CreatedAt)
	}
	if loaded[0].Category != model.CategoryRecovery {
		t.Errorf("Expected recovery category, got %s", loaded[0].Category)
	}
}

func TestSaveAndLoadHistory(t *testing.T) {
	store := setupTestStore(t)

	history := model.History{
		"2024-01-01": {"a", "b"},
		"2024-01-02": {"a"},
	}
	store.SaveHistory(history)

	loaded := store.LoadHistory()
	if !loaded.Completed("2024-01-01", "b") {
		t.Error("Expected completion for b on 2024-01-01")
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 days, got %d", len(loaded))
	}

	// Overwrite wins
	store.SaveHistory(model.History{"2024-01-03": {"c"}})
	loaded = store.LoadHistory()
	if len(loaded) != 1 || !loaded.Completed("2024-01-03", "c") {
		t.Errorf("Expected overwritten history, got %v", loaded)
	}
}

func TestCorruptEntryYieldsEmpty(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.conn.Exec(`
		INSERT INTO cache_entries (key, value, updated_at) VALUES (?, ?, ?)
	`, keyHabits, "{not json", time.Now().Unix())
	if err != nil {
		t.Fatalf("Failed to plant corrupt entry: %v", err)
	}

	if habits := store.LoadHabits(); len(habits) != 0 {
		t.Errorf("Expected corrupt entry to read as empty, got %d habits", len(habits))
	}
}

func TestHardcoreModeRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	store.SetHardcoreMode(true)
	if !store.HardcoreMode() {
		t.Error("Expected hardcore mode on")
	}
	store.SetHardcoreMode(false)
	if store.HardcoreMode() {
		t.Error("Expected hardcore mode off")
	}
}

func TestClearLeavesPreferences(t *testing.T) {
	store := setupTestStore(t)

	store.SaveHabits([]model.Habit{{ID: model.ConfirmedID("a"), Title: "Gym Session"}})
	store.SaveHistory(model.History{"2024-01-01": {"a"}})
	store.SetHardcoreMode(true)

	store.Clear()

	if habits := store.LoadHabits(); len(habits) != 0 {
		t.Errorf("Expected habits cleared, got %d", len(habits))
	}
	if history := store.LoadHistory(); !history.Empty() {
		t.Error("Expected history cleared")
	}
	if !store.HardcoreMode() {
		t.Error("Clear must not touch the hardcore preference")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/cache.db"

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	store.SaveHabits([]model.Habit{{ID: model.ConfirmedID("a"), Title: "3L Water"}})
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen cache: %v", err)
	}
	defer reopened.Close()

	habits := reopened.LoadHabits()
	if len(habits) != 1 || habits[0].Title != "3L Water" {
		t.Errorf("Expected persisted habit, got %v", habits)
	}
}
