package remote

import (
	"fmt"
	"time"
)

// HabitRecord is the wire shape of a row in the habits table. Writers must
// populate CreatedAt: omitempty never drops a struct value, so a zero time
// would be sent as year 1 instead of letting the column default apply.
type HabitRecord struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Frequency string    `json:"frequency,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// LogRecord is the wire shape of a row in the logs table. One row per
// (habit, day) completion.
type LogRecord struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id"`
	HabitID     string    `json:"habit_id"`
	DateString  string    `json:"date_string"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// HTTPError represents a non-retryable HTTP error response from the record
// store, with the response body preserved for logging.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("remote request failed with status %d: %s", e.StatusCode, e.Body)
}

// SyncError wraps a failed remote operation. Callers surface it to the user
// and keep their prior in-memory state.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed during %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
