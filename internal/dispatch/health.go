package dispatch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/repository"
	"github.com/jwalitptl/engage-scheduler/pkg/clock"
)

// Report aggregates dispatcher liveness and backlog signals for
// external monitoring.
type Report struct {
	// IsRunning is inferred, not asserted: true while a cycle has
	// completed within twice the cycle interval. A heuristic, not a
	// guarantee.
	IsRunning          bool                         `json:"is_running"`
	LastCycleAt        *time.Time                   `json:"last_cycle_at,omitempty"`
	PendingCount       int                          `json:"pending_count"`
	MissedInLastPeriod int                          `json:"missed_in_last_period"`
	BacklogByStatus    map[model.ScheduleStatus]int `json:"backlog_by_status"`
	Source             string                       `json:"source"`
}

// HealthReporter observes dispatcher activity and schedule backlog.
// It is strictly read-only with respect to the schedule store.
type HealthReporter struct {
	repo          repository.ScheduleRepository
	clock         clock.Clock
	cycleInterval time.Duration
	missedPeriod  time.Duration
	source        string

	mu          sync.RWMutex
	lastCycleAt time.Time
}

func NewHealthReporter(repo repository.ScheduleRepository, clk clock.Clock, cycleInterval, missedPeriod time.Duration) *HealthReporter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &HealthReporter{
		repo:          repo,
		clock:         clk,
		cycleInterval: cycleInterval,
		missedPeriod:  missedPeriod,
		source:        fmt.Sprintf("dispatcher-%s", hostname),
	}
}

// RecordCycle marks the completion of a dispatch cycle.
func (h *HealthReporter) RecordCycle(t time.Time) {
	h.mu.Lock()
	h.lastCycleAt = t
	h.mu.Unlock()
}

func (h *HealthReporter) Report(ctx context.Context) (*Report, error) {
	h.mu.RLock()
	lastCycleAt := h.lastCycleAt
	h.mu.RUnlock()

	now := h.clock.Now()

	counts, err := h.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count backlog: %w", err)
	}

	missed, err := h.repo.CountMissedSince(ctx, now.Add(-h.missedPeriod))
	if err != nil {
		return nil, fmt.Errorf("failed to count missed entries: %w", err)
	}

	report := &Report{
		IsRunning:          !lastCycleAt.IsZero() && now.Sub(lastCycleAt) <= 2*h.cycleInterval,
		PendingCount:       counts[model.ScheduleStatusPending],
		MissedInLastPeriod: missed,
		BacklogByStatus:    counts,
		Source:             h.source,
	}
	if !lastCycleAt.IsZero() {
		report.LastCycleAt = &lastCycleAt
	}
	return report, nil
}
