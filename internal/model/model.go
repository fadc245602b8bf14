package model

import (
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of habit categories. Unrecognized values are
// normalized by ParseCategory so grouping never silently drops a habit.
type Category string

const (
	CategoryTraining  Category = "training"
	CategoryNutrition Category = "nutrition"
	CategoryRecovery  Category = "recovery"
	CategoryKnowledge Category = "knowledge"
)

// Categories returns all categories in display order.
func Categories() []Category {
	return []Category{CategoryTraining, CategoryNutrition, CategoryRecovery, CategoryKnowledge}
}

// ParseCategory maps a raw category string to the enum. Unknown or empty
// values fall back to training, matching the legacy default.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryTraining, CategoryNutrition, CategoryRecovery, CategoryKnowledge:
		return Category(s)
	default:
		return CategoryTraining
	}
}

// HabitID tags a habit identifier as pending (locally generated, not yet
// confirmed by the remote store) or confirmed (server-assigned).
type HabitID struct {
	Value   string `json:"value"`
	Pending bool   `json:"pending,omitempty"`
}

// NewPendingID generates a local identifier for an optimistic create.
func NewPendingID() HabitID {
	return HabitID{Value: uuid.NewString(), Pending: true}
}

// ConfirmedID wraps a server-assigned identifier.
func ConfirmedID(value string) HabitID {
	return HabitID{Value: value}
}

func (id HabitID) String() string {
	return id.Value
}

// Habit is a user-defined recurring task tracked for daily completion.
type Habit struct {
	ID        HabitID   `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Category  Category  `json:"category"`
	Frequency string    `json:"frequency,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FrequencyDaily is the only frequency currently issued by the engine.
const FrequencyDaily = "daily"

// ExistedOn reports whether the habit existed by the end of the given day.
// Habits are not retroactively required for days before they were created.
func (h Habit) ExistedOn(day time.Time) bool {
	return !h.CreatedAt.After(EndOfDay(day))
}

// History maps a calendar day string (YYYY-MM-DD) to the habit ids completed
// that day. Completion is membership, not a counter: a (day, habit) pair
// appears at most once.
type History map[string][]string

// Completed reports whether the habit was completed on the given day.
func (h History) Completed(day, habitID string) bool {
	for _, id := range h[day] {
		if id == habitID {
			return true
		}
	}
	return false
}

// Add records a completion. Adding an already-present pair is a no-op.
func (h History) Add(day, habitID string) {
	if h.Completed(day, habitID) {
		return
	}
	h[day] = append(h[day], habitID)
}

// Remove deletes a completion. Empty days are pruned so history length
// reflects days with at least one completion.
func (h History) Remove(day, habitID string) {
	entries := h[day]
	for i, id := range entries {
		if id == habitID {
			h[day] = append(entries[:i:i], entries[i+1:]...)
			if len(h[day]) == 0 {
				delete(h, day)
			}
			return
		}
	}
}

// Rename rewrites every occurrence of oldID to newID. Used when a pending
// habit id is replaced by its server-assigned id.
func (h History) Rename(oldID, newID string) {
	for _, entries := range h {
		for i, id := range entries {
			if id == oldID {
				entries[i] = newID
			}
		}
	}
}

// Clone returns a deep copy.
func (h History) Clone() History {
	out := make(History, len(h))
	for day, entries := range h {
		out[day] = append([]string(nil), entries...)
	}
	return out
}

// Empty reports whether the history has no entries.
func (h History) Empty() bool {
	return len(h) == 0
}

// Status is the server-authoritative account status. The transition to DEAD
// is decided by the vital-signs job, never by a client.
type Status string

const (
	StatusAlive Status = "ALIVE"
	StatusDead  Status = "DEAD"
)

// Profile is the per-account record holding gamification state.
type Profile struct {
	ID           string `json:"id"`
	Status       Status `json:"status"`
	Streak       int    `json:"streak"`
	AvatarStage  int    `json:"avatar_stage"`
	LastLogDate  string `json:"last_log_date,omitempty"`
	HardcoreMode bool   `json:"hardcore_mode"`
}

// DayString formats a time as the canonical calendar-day key.
func DayString(t time.Time) string {
	return t.Format("2006-01-02")
}

// EndOfDay returns the last instant of the day containing t.
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
