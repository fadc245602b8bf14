package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"optimal-protocol-sync/internal/model"
	"optimal-protocol-sync/internal/remote"
)

// fakeStore is an in-memory stand-in for the remote record store, speaking
// just enough of the REST dialect the client uses.
type fakeStore struct {
	t  *testing.T
	mu sync.Mutex

	habits   []remote.HabitRecord
	logs     []remote.LogRecord
	profiles map[string]model.Profile

	nextID int
	// Paths ("METHOD /habits") that respond 400 until cleared
	failing map[string]bool

	server *httptest.Server
}

func newFakeStore(t *testing.T) *fakeStore {
	fs := &fakeStore{
		t:        t,
		profiles: map[string]model.Profile{},
		failing:  map[string]bool{},
	}
	fs.server = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeStore) client() *remote.Client {
	return remote.NewClient(fs.server.URL, "test-key")
}

func (fs *fakeStore) fail(route string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.failing[route] = true
}

func (fs *fakeStore) recover(route string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.failing, route)
}

func (fs *fakeStore) habitCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.habits)
}

func (fs *fakeStore) habitAt(i int) remote.HabitRecord {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.habits[i]
}

func (fs *fakeStore) logCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.logs)
}

func (fs *fakeStore) profile(id string) model.Profile {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.profiles[id]
}

func (fs *fakeStore) handle(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1")
	route := r.Method + " " + table

	if fs.failing[route] {
		// 400 is terminal for the client, no retry loop to wait out
		http.Error(w, `{"message":"injected failure"}`, http.StatusBadRequest)
		return
	}

	switch table {
	case "/habits":
		fs.handleHabits(w, r)
	case "/logs":
		fs.handleLogs(w, r)
	case "/profiles":
		fs.handleProfiles(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (fs *fakeStore) handleHabits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userFilter := strings.TrimPrefix(r.URL.Query().Get("user_id"), "eq.")
		out := []remote.HabitRecord{}
		for _, h := range fs.habits {
			if userFilter == "" || h.UserID == userFilter {
				out = append(out, h)
			}
		}
		json.NewEncoder(w).Encode(out)

	case http.MethodPost:
		recs := decodeRecords[remote.HabitRecord](fs.t, r)
		merge := strings.Contains(r.Header.Get("Prefer"), "merge-duplicates")
		stored := make([]remote.HabitRecord, 0, len(recs))
		for _, rec := range recs {
			if rec.ID == "" {
				fs.nextID++
				rec.ID = fmt.Sprintf("srv-%d", fs.nextID)
			}
			replaced := false
			if merge {
				for i := range fs.habits {
					if fs.habits[i].ID == rec.ID {
						fs.habits[i] = rec
						replaced = true
						break
					}
				}
			}
			if !replaced {
				fs.habits = append(fs.habits, rec)
			}
			stored = append(stored, rec)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(stored)

	case http.MethodPatch:
		id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		var patch map[string]string
		json.NewDecoder(r.Body).Decode(&patch)
		for i := range fs.habits {
			if fs.habits[i].ID == id {
				if title, ok := patch["title"]; ok {
					fs.habits[i].Title = title
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		kept := fs.habits[:0]
		for _, h := range fs.habits {
			if h.ID != id {
				kept = append(kept, h)
			}
		}
		fs.habits = kept
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (fs *fakeStore) handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userFilter := strings.TrimPrefix(r.URL.Query().Get("user_id"), "eq.")
		out := []remote.LogRecord{}
		for _, l := range fs.logs {
			if userFilter == "" || l.UserID == userFilter {
				out = append(out, l)
			}
		}
		json.NewEncoder(w).Encode(out)

	case http.MethodPost:
		recs := decodeRecords[remote.LogRecord](fs.t, r)
		for _, rec := range recs {
			fs.nextID++
			rec.ID = fmt.Sprintf("log-%d", fs.nextID)
			fs.logs = append(fs.logs, rec)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("[]"))

	case http.MethodDelete:
		habitID := strings.TrimPrefix(r.URL.Query().Get("habit_id"), "eq.")
		day := strings.TrimPrefix(r.URL.Query().Get("date_string"), "eq.")
		userIn := r.URL.Query().Get("user_id")

		kept := fs.logs[:0]
		for _, l := range fs.logs {
			if habitID != "" && l.HabitID == habitID && l.DateString == day {
				continue
			}
			if userIn != "" && inFilterMatches(userIn, l.UserID) {
				continue
			}
			kept = append(kept, l)
		}
		fs.logs = kept
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (fs *fakeStore) handleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		out := []model.Profile{}
		if p, ok := fs.profiles[id]; ok {
			out = append(out, p)
		}
		json.NewEncoder(w).Encode(out)

	case http.MethodPatch:
		var patch map[string]interface{}
		json.NewDecoder(r.Body).Decode(&patch)

		apply := func(p model.Profile) model.Profile {
			if v, ok := patch["status"].(string); ok {
				p.Status = model.Status(v)
			}
			if v, ok := patch["last_log_date"].(string); ok {
				p.LastLogDate = v
			}
			if v, ok := patch["streak"].(float64); ok {
				p.Streak = int(v)
			}
			if v, ok := patch["hardcore_mode"].(bool); ok {
				p.HardcoreMode = v
			}
			return p
		}

		if id := r.URL.Query().Get("id"); strings.HasPrefix(id, "eq.") {
			key := strings.TrimPrefix(id, "eq.")
			if p, ok := fs.profiles[key]; ok {
				fs.profiles[key] = apply(p)
			}
		} else if strings.HasPrefix(id, "in.(") {
			for key, p := range fs.profiles {
				if inFilterMatches(id, key) {
					fs.profiles[key] = apply(p)
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// decodeRecords accepts either a single JSON object or an array of them.
func decodeRecords[T any](t *testing.T, r *http.Request) []T {
	t.Helper()
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		t.Fatalf("Failed to decode request body: %v", err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var recs []T
		if err := json.Unmarshal(raw, &recs); err != nil {
			t.Fatalf("Failed to decode record array: %v", err)
		}
		return recs
	}
	var rec T
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("Failed to decode record: %v", err)
	}
	return []T{rec}
}

// inFilterMatches checks a PostgREST in.(a,b,c) filter against a value.
func inFilterMatches(filter, value string) bool {
	inner := strings.TrimSuffix(strings.TrimPrefix(filter, "in.("), ")")
	for _, item := range strings.Split(inner, ",") {
		if item == value {
			return true
		}
	}
	return false
}
