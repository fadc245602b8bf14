package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Mutation operations
	OpAddHabit         = "add_habit"
	OpEditHabit        = "edit_habit"
	OpDeleteHabit      = "delete_habit"
	OpToggleCompletion = "toggle_completion"
	OpSetHabitsBulk    = "set_habits_bulk"

	// Mutation results
	ResultApplied      = "applied"
	ResultRolledBack   = "rolled_back"
	ResultRemoteFailed = "remote_failed"
	ResultRejected     = "rejected"

	// Bootstrap outcomes
	BootstrapAuthoritative = "remote_authoritative"
	BootstrapMigrated      = "migrated"
	BootstrapFailed        = "failed"
	BootstrapOffline       = "offline"

	// Remote record types
	RecordHabit = "habit"
	RecordLog   = "log"

	// Remote API operations
	RemoteOpListHabits   = "list_habits"
	RemoteOpCreateHabit  = "create_habit"
	RemoteOpCreateHabits = "create_habits"
	RemoteOpUpdateHabit  = "update_habit"
	RemoteOpDeleteHabit  = "delete_habit"
	RemoteOpListLogs     = "list_logs"
	RemoteOpCreateLog    = "create_log"
	RemoteOpCreateLogs   = "create_logs"
	RemoteOpDeleteLog    = "delete_log"
	RemoteOpDeleteLogs   = "delete_logs"
	RemoteOpGetProfile   = "get_profile"
	RemoteOpPatchProfile = "patch_profile"
	RemoteOpListDead     = "list_dead_candidates"

	// Cache operations
	CacheOpLoadHabits  = "load_habits"
	CacheOpSaveHabits  = "save_habits"
	CacheOpLoadHistory = "load_history"
	CacheOpSaveHistory = "save_history"
	CacheOpPreference  = "preference"
	CacheOpClear       = "clear"

	// HTTP endpoints
	EndpointCheckVitalSigns = "check_vital_signs"
	EndpointHealth          = "health"

	// Reaper results
	ReapSuccess = "success"
	ReapFailure = "failure"
	ReapEmpty   = "no_casualties"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Remote store metrics
var (
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_requests_total",
			Help: "Total number of remote record store requests",
		},
		[]string{"operation", "status_code"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_request_duration_seconds",
			Help:    "Remote record store request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)
)

// Engine metrics
var (
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_mutations_total",
			Help: "Total number of engine mutations by operation and result",
		},
		[]string{"operation", "result"},
	)

	BootstrapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_bootstraps_total",
			Help: "Total number of session bootstraps by outcome",
		},
		[]string{"outcome"},
	)

	MigratedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_migrated_records_total",
			Help: "Total number of local records migrated to the remote store",
		},
		[]string{"record_type"},
	)
)

// Cache metrics
var (
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Local cache operation latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"operation"},
	)

	CacheOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operation_errors_total",
			Help: "Total number of local cache operation errors",
		},
		[]string{"operation"},
	)
)

// Reaper metrics
var (
	ReaperRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_runs_total",
			Help: "Total number of vital-signs checks by result",
		},
		[]string{"result"},
	)

	ReaperCasualtiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reaper_casualties_total",
			Help: "Total number of accounts marked dead by the reaper",
		},
	)

	ReaperLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reaper_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed reaper run",
		},
	)
)
