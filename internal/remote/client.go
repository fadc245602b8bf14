// Package remote is the client for the hosted record store: a PostgREST-style
// REST API exposing the habits, logs and profiles tables. The engine and the
// vital-signs reaper are its only consumers.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"optimal-protocol-sync/internal/metrics"
	"optimal-protocol-sync/internal/model"
)

const (
	restPrefix   = "/rest/v1"
	maxRetries   = 3
	initialDelay = 500 * time.Millisecond
	maxDelay     = 10 * time.Second
)

// Prefer header values understood by the record store
const (
	preferRepresentation  = "return=representation"
	preferMergeDuplicates = "return=representation,resolution=merge-duplicates"
)

// Client is a record store API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewClient creates a new record store client. The key is sent both as the
// apikey header and as a bearer token; pass the service-role key for
// administrative jobs and the anon key for user sessions.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		logger:     slog.Default(),
	}
}

// ListHabits returns all habit rows for the user, oldest first.
func (c *Client) ListHabits(ctx context.Context, userID string) ([]HabitRecord, error) {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)
	query.Set("order", "created_at.asc")

	body, err := c.do(ctx, metrics.RemoteOpListHabits, http.MethodGet, "/habits", query, nil, "")
	if err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpListHabits, Err: err}
	}

	var records []HabitRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpListHabits, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return records, nil
}

// CreateHabit inserts one habit row and returns the stored record including
// the server-assigned id.
func (c *Client) CreateHabit(ctx context.Context, rec HabitRecord) (HabitRecord, error) {
	body, err := c.do(ctx, metrics.RemoteOpCreateHabit, http.MethodPost, "/habits", nil, rec, preferRepresentation)
	if err != nil {
		return HabitRecord{}, &SyncError{Op: metrics.RemoteOpCreateHabit, Err: err}
	}

	var records []HabitRecord
	if err := json.Unmarshal(body, &records); err != nil || len(records) == 0 {
		return HabitRecord{}, &SyncError{Op: metrics.RemoteOpCreateHabit, Err: fmt.Errorf("unexpected create response: %s", body)}
	}
	return records[0], nil
}

// CreateHabits bulk-inserts habit rows. With mergeDuplicates the insert is
// an upsert on the primary key, which makes a retried migration idempotent.
func (c *Client) CreateHabits(ctx context.Context, recs []HabitRecord, mergeDuplicates bool) ([]HabitRecord, error) {
	prefer := preferRepresentation
	if mergeDuplicates {
		prefer = preferMergeDuplicates
	}

	body, err := c.do(ctx, metrics.RemoteOpCreateHabits, http.MethodPost, "/habits", nil, recs, prefer)
	if err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpCreateHabits, Err: err}
	}

	var records []HabitRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpCreateHabits, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return records, nil
}

// UpdateHabitTitle updates the title of one habit row.
func (c *Client) UpdateHabitTitle(ctx context.Context, habitID, title string) error {
	query := url.Values{}
	query.Set("id", "eq."+habitID)

	patch := map[string]string{"title": title}
	if _, err := c.do(ctx, metrics.RemoteOpUpdateHabit, http.MethodPatch, "/habits", query, patch, ""); err != nil {
		return &SyncError{Op: metrics.RemoteOpUpdateHabit, Err: err}
	}
	return nil
}

// DeleteHabit deletes one habit row by id.
func (c *Client) DeleteHabit(ctx context.Context, habitID string) error {
	query := url.Values{}
	query.Set("id", "eq."+habitID)

	if _, err := c.do(ctx, metrics.RemoteOpDeleteHabit, http.MethodDelete, "/habits", query, nil, ""); err != nil {
		return &SyncError{Op: metrics.RemoteOpDeleteHabit, Err: err}
	}
	return nil
}

// ListLogs returns all completion-log rows for the user.
func (c *Client) ListLogs(ctx context.Context, userID string) ([]LogRecord, error) {
	query := url.Values{}
	query.Set("user_id", "eq."+userID)

	body, err := c.do(ctx, metrics.RemoteOpListLogs, http.MethodGet, "/logs", query, nil, "")
	if err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpListLogs, Err: err}
	}

	var records []LogRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpListLogs, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return records, nil
}

// CreateLog inserts one completion-log row.
func (c *Client) CreateLog(ctx context.Context, rec LogRecord) error {
	if _, err := c.do(ctx, metrics.RemoteOpCreateLog, http.MethodPost, "/logs", nil, rec, ""); err != nil {
		return &SyncError{Op: metrics.RemoteOpCreateLog, Err: err}
	}
	return nil
}

// CreateLogs bulk-inserts completion-log rows.
func (c *Client) CreateLogs(ctx context.Context, recs []LogRecord) error {
	if len(recs) == 0 {
		return nil
	}
	if _, err := c.do(ctx, metrics.RemoteOpCreateLogs, http.MethodPost, "/logs", nil, recs, ""); err != nil {
		return &SyncError{Op: metrics.RemoteOpCreateLogs, Err: err}
	}
	return nil
}

// DeleteLog deletes the completion-log row matching (habit, day).
func (c *Client) DeleteLog(ctx context.Context, habitID, dateString string) error {
	query := url.Values{}
	query.Set("habit_id", "eq."+habitID)
	query.Set("date_string", "eq."+dateString)

	if _, err := c.do(ctx, metrics.RemoteOpDeleteLog, http.MethodDelete, "/logs", query, nil, ""); err != nil {
		return &SyncError{Op: metrics.RemoteOpDeleteLog, Err: err}
	}
	return nil
}

// DeleteLogsForUsers wipes every completion-log row belonging to the given
// users. Reaper-only.
func (c *Client) DeleteLogsForUsers(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := url.Values{}
	query.Set("user_id", "in.("+strings.Join(userIDs, ",")+")")

	if _, err := c.do(ctx, metrics.RemoteOpDeleteLogs, http.MethodDelete, "/logs", query, nil, ""); err != nil {
		return &SyncError{Op: metrics.RemoteOpDeleteLogs, Err: err}
	}
	return nil
}

// GetProfile returns the user's profile row, or nil when none exists.
func (c *Client) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	query := url.Values{}
	query.Set("id", "eq."+userID)

	body, err := c.do(ctx, metrics.RemoteOpGetProfile, http.MethodGet, "/profiles", query, nil, "")
	if err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpGetProfile, Err: err}
	}

	var profiles []model.Profile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpGetProfile, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

// UpdateProfile patches fields on the user's profile row.
func (c *Client) UpdateProfile(ctx context.Context, userID string, patch map[string]interface{}) error {
	query := url.Values{}
	query.Set("id", "eq."+userID)

	if _, err := c.do(ctx, metrics.RemoteOpPatchProfile, http.MethodPatch, "/profiles", query, patch, ""); err != nil {
		return &SyncError{Op: metrics.RemoteOpPatchProfile, Err: err}
	}
	return nil
}

// ListDeadCandidates returns profiles opted into commitment mode whose last
// logged day predates the threshold and who still have a streak to lose.
func (c *Client) ListDeadCandidates(ctx context.Context, threshold string) ([]model.Profile, error) {
	query := url.Values{}
	query.Set("hardcore_mode", "eq.true")
	query.Set("last_log_date", "lt."+threshold)
	query.Set("streak", "gt.0")

	body, err := c.do(ctx, metrics.RemoteOpListDead, http.MethodGet, "/profiles", query, nil, "")
	if err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpListDead, Err: err}
	}

	var profiles []model.Profile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, &SyncError{Op: metrics.RemoteOpListDead, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return profiles, nil
}

// MarkDead sets status DEAD on the given profiles. Streak and avatar stage
// are left intact for the death certificate.
func (c *Client) MarkDead(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := url.Values{}
	query.Set("id", "in.("+strings.Join(userIDs, ",")+")")

	patch := map[string]interface{}{
		"status":      string(model.StatusDead),
		"last_active": time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := c.do(ctx, metrics.RemoteOpPatchProfile, http.MethodPatch, "/profiles", query, patch, ""); err != nil {
		return &SyncError{Op: metrics.RemoteOpPatchProfile, Err: err}
	}
	return nil
}

// do performs an HTTP request with automatic retries on transient failures.
// Server errors (5xx) and rate limiting (429) are retried with exponential
// backoff; any other non-2xx status returns an *HTTPError immediately.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload interface{}, prefer string) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	reqURL := c.baseURL + restPrefix + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying remote request", "operation", op, "attempt", attempt, "delay_ms", delay.Milliseconds())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
		}

		var bodyReader io.Reader
		if reqBody != nil {
			bodyReader = bytes.NewReader(reqBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			metrics.RemoteRequestsTotal.WithLabelValues(op, "error").Inc()
			c.logger.Error("remote request failed", "operation", op, "method", method, "error", err, "attempt", attempt)
			continue
		}

		statusStr := strconv.Itoa(resp.StatusCode)
		metrics.RemoteRequestsTotal.WithLabelValues(op, statusStr).Inc()
		metrics.RemoteRequestDuration.WithLabelValues(op, statusStr).Observe(duration.Seconds())

		c.logger.Info("remote_request", "operation", op, "method", method, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response: %w", readErr)
			}
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if retryAfter := parseRetryAfter(resp.Header); retryAfter > 0 {
				delay = retryAfter
			}
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue
		default:
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseRetryAfter extracts retry delay from Retry-After header
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	seconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
