// Package reaper implements the server-side vital-signs check: accounts
// opted into commitment mode that missed a full day lose their completion
// logs and are marked DEAD.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"optimal-protocol-sync/internal/metrics"
	"optimal-protocol-sync/internal/model"
	"optimal-protocol-sync/internal/remote"
)

// Report summarizes one vital-signs run.
type Report struct {
	Checked    int      `json:"checked"`
	Casualties []string `json:"casualties"`
}

// Reaper runs the permadeath deadline check against the remote store. It
// must be constructed with a service-role client, since it reads and writes
// rows across all users.
type Reaper struct {
	client *remote.Client
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Reaper using the given administrative client.
func New(client *remote.Client) *Reaper {
	return &Reaper{
		client: client,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Run executes one vital-signs check.
//
// A profile is a casualty when it opted into commitment mode, its last
// logged day predates yesterday, and it still carries a streak. Casualties
// have all completion logs wiped and their status set to DEAD; streak and
// avatar stage are left for the death certificate. The check is
// server-authoritative: nothing a client caches locally can undo it.
func (r *Reaper) Run(ctx context.Context) (Report, error) {
	start := r.now()
	threshold := model.DayString(start.AddDate(0, 0, -1))

	candidates, err := r.client.ListDeadCandidates(ctx, threshold)
	if err != nil {
		metrics.ReaperRunsTotal.WithLabelValues(metrics.ReapFailure).Inc()
		r.logger.Error("Vital-signs check failed to list candidates", "error", err)
		return Report{}, err
	}

	report := Report{Checked: len(candidates), Casualties: []string{}}
	if len(candidates) == 0 {
		metrics.ReaperRunsTotal.WithLabelValues(metrics.ReapEmpty).Inc()
		metrics.ReaperLastRunTimestamp.SetToCurrentTime()
		r.logger.Info("Vital-signs check complete", "checked", 0, "casualties", 0)
		return report, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, p := range candidates {
		ids = append(ids, p.ID)
	}

	// Logs first: if the wipe fails the accounts stay ALIVE and the next
	// run retries from scratch.
	if err := r.client.DeleteLogsForUsers(ctx, ids); err != nil {
		metrics.ReaperRunsTotal.WithLabelValues(metrics.ReapFailure).Inc()
		r.logger.Error("Vital-signs check failed to wipe logs", "users", len(ids), "error", err)
		return Report{}, err
	}

	if err := r.client.MarkDead(ctx, ids); err != nil {
		metrics.ReaperRunsTotal.WithLabelValues(metrics.ReapFailure).Inc()
		r.logger.Error("Vital-signs check failed to mark profiles", "users", len(ids), "error", err)
		return Report{}, err
	}

	report.Casualties = ids
	metrics.ReaperRunsTotal.WithLabelValues(metrics.ReapSuccess).Inc()
	metrics.ReaperCasualtiesTotal.Add(float64(len(ids)))
	metrics.ReaperLastRunTimestamp.SetToCurrentTime()

	r.logger.Info("Vital-signs check complete",
		"checked", report.Checked,
		"casualties", len(ids),
		"threshold", threshold,
		"duration_ms", time.Since(start).Milliseconds())
	return report, nil
}
