package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/notifier"
	"github.com/jwalitptl/engage-scheduler/internal/recurrence"
	"github.com/jwalitptl/engage-scheduler/internal/repository"
	"github.com/jwalitptl/engage-scheduler/pkg/clock"
	"github.com/jwalitptl/engage-scheduler/pkg/logger"
	"github.com/jwalitptl/engage-scheduler/pkg/messaging"
	"github.com/jwalitptl/engage-scheduler/pkg/metrics"
)

// Delivery lifecycle events published for the host application.
const (
	EventChannel = "schedule.events"

	EventTypeSent   = "schedule.sent"
	EventTypeFailed = "schedule.failed"
	EventTypeMissed = "schedule.missed"
)

// DeliveryEvent is the payload published on EventChannel.
type DeliveryEvent struct {
	Type        string    `json:"type"`
	EntryID     string    `json:"entry_id"`
	RecipientID string    `json:"recipient_id"`
	Platform    string    `json:"platform"`
	Attempts    int       `json:"attempts"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Config struct {
	CycleInterval  time.Duration
	LookaheadSlack time.Duration
	BatchSize      int
	WorkerCount    int
	MaxAttempts    int
	SendTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.CycleInterval <= 0 {
		c.CycleInterval = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Dispatcher is the single authority that moves entries out of pending.
// Cycles are serialized against each other; within a cycle, deliveries
// to distinct entries run on a bounded worker pool.
type Dispatcher struct {
	repo      repository.ScheduleRepository
	notifiers *notifier.Registry
	clock     clock.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics
	broker    messaging.Broker
	health    *HealthReporter
	config    Config

	cycleMu sync.Mutex
}

func NewDispatcher(
	repo repository.ScheduleRepository,
	notifiers *notifier.Registry,
	health *HealthReporter,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
	broker messaging.Broker,
	config Config,
) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		notifiers: notifiers,
		clock:     clk,
		logger:    log,
		metrics:   m,
		broker:    broker,
		health:    health,
		config:    config.withDefaults(),
	}
}

// Start runs the dispatch loop until ctx is cancelled. The loop body is
// synchronous, so a cancellation observed between ticks returns only
// after the current cycle has drained its in-flight deliveries.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.CycleInterval)
	defer ticker.Stop()

	d.logger.Info("starting dispatcher", "cycle_interval", d.config.CycleInterval.String())

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down dispatcher")
			return
		case <-ticker.C:
			if err := d.RunCycle(ctx); err != nil {
				d.logger.Error(err, "dispatch cycle failed")
			}
		}
	}
}

// RunCycle executes one dispatch cycle: list due pending entries,
// retire the ones whose window already closed, and deliver the rest in
// priority order. Per-entry failures never abort the batch.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	timer := prometheus.NewTimer(d.metrics.CycleDuration)
	defer timer.ObserveDuration()

	now := d.clock.Now()
	entries, err := d.repo.ListDue(ctx, now.Add(d.config.LookaheadSlack), d.config.BatchSize)
	if err != nil {
		d.metrics.DatabaseOperations.WithLabelValues("list_due", "error").Inc()
		return fmt.Errorf("failed to list due entries: %w", err)
	}
	d.metrics.DatabaseOperations.WithLabelValues("list_due", "success").Inc()

	deliverable := make([]*model.ScheduleEntry, 0, len(entries))
	for _, entry := range entries {
		switch EvaluateWindow(entry, now) {
		case NotYetDue:
			// Picked up by lookahead; leave for a later cycle.
		case Missed:
			d.markMissed(ctx, entry)
		case Deliverable:
			deliverable = append(deliverable, entry)
		}
	}

	sort.SliceStable(deliverable, func(i, j int) bool {
		if deliverable[i].Priority != deliverable[j].Priority {
			return deliverable[i].Priority < deliverable[j].Priority
		}
		return deliverable[i].ScheduledTime.Before(deliverable[j].ScheduledTime)
	})

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.config.WorkerCount)
	for _, entry := range deliverable {
		wg.Add(1)
		sem <- struct{}{}
		go func(entry *model.ScheduleEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			d.deliver(ctx, entry)
		}(entry)
	}
	wg.Wait()

	d.updateBacklogGauge(ctx)
	d.health.RecordCycle(d.clock.Now())
	return nil
}

// markMissed retires a pending entry whose window closed before any
// delivery attempt. Attempts stay untouched.
func (d *Dispatcher) markMissed(ctx context.Context, entry *model.ScheduleEntry) {
	status := model.ScheduleStatusMissed
	err := d.repo.UpdateIfStatus(ctx, entry.ID, model.ScheduleStatusPending, repository.SchedulePatch{Status: &status})
	if errors.Is(err, repository.ErrConflict) {
		d.logger.Debug("entry already handled elsewhere", "entry_id", entry.ID.String())
		return
	}
	if err != nil {
		d.logger.Error(err, "failed to mark entry missed", "entry_id", entry.ID.String())
		return
	}

	d.metrics.EntriesMissed.Inc()
	d.logger.Warn("entry missed its delivery window",
		"entry_id", entry.ID.String(),
		"scheduled_time", entry.ScheduledTime)
	d.publishEvent(ctx, EventTypeMissed, entry, entry.Attempts)
}

// deliver claims the entry, attempts the platform send, and records the
// outcome. The claim is a compare-and-swap on (status, attempts) so two
// overlapping dispatcher instances cannot both win the same occurrence.
func (d *Dispatcher) deliver(ctx context.Context, entry *model.ScheduleEntry) {
	if err := d.repo.Claim(ctx, entry.ID, entry.Attempts); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			d.metrics.ClaimConflicts.Inc()
			d.logger.Debug("lost claim race, entry handled by another cycle", "entry_id", entry.ID.String())
			return
		}
		d.logger.Error(err, "failed to claim entry", "entry_id", entry.ID.String())
		return
	}
	attempts := entry.Attempts + 1

	var sendErr error
	n, ok := d.notifiers.For(entry.Platform)
	if !ok {
		sendErr = notifier.Permanent(fmt.Errorf("no notifier registered for platform %q", entry.Platform))
	} else {
		// Detached from the loop context so shutdown drains the
		// in-flight send instead of aborting it mid-flight.
		sendCtx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
		sendErr = n.Send(sendCtx, entry.RecipientID.String(), entry.Content, entry.Metadata)
		cancel()
	}

	if sendErr == nil {
		d.finishSent(ctx, entry, attempts)
		return
	}

	if notifier.IsRetryable(sendErr) && attempts < d.config.MaxAttempts {
		// Stays pending with the bumped attempt counter; the next
		// cycle re-evaluates the window, so a slow retry can still
		// end up missed.
		d.metrics.DeliveryRetries.WithLabelValues(string(entry.Platform)).Inc()
		d.logger.Warn("transient delivery failure, retrying next cycle",
			"entry_id", entry.ID.String(),
			"attempt", attempts,
			"error", sendErr.Error())
		return
	}

	d.finishFailed(ctx, entry, attempts, sendErr)
}

func (d *Dispatcher) finishSent(ctx context.Context, entry *model.ScheduleEntry, attempts int) {
	status := model.ScheduleStatusSent
	err := d.repo.UpdateIfStatus(ctx, entry.ID, model.ScheduleStatusPending, repository.SchedulePatch{Status: &status})
	if err != nil {
		d.logger.Error(err, "failed to mark entry sent", "entry_id", entry.ID.String())
		return
	}

	d.metrics.EntriesDelivered.WithLabelValues(string(entry.Platform)).Inc()
	d.logger.Info("entry delivered",
		"entry_id", entry.ID.String(),
		"platform", string(entry.Platform),
		"attempts", attempts)
	d.publishEvent(ctx, EventTypeSent, entry, attempts)

	if entry.Recurrence != nil {
		d.spawnSuccessor(ctx, entry)
	}
}

func (d *Dispatcher) finishFailed(ctx context.Context, entry *model.ScheduleEntry, attempts int, sendErr error) {
	status := model.ScheduleStatusFailed
	err := d.repo.UpdateIfStatus(ctx, entry.ID, model.ScheduleStatusPending, repository.SchedulePatch{Status: &status})
	if err != nil {
		d.logger.Error(err, "failed to mark entry failed", "entry_id", entry.ID.String())
		return
	}

	d.metrics.EntriesFailed.WithLabelValues(string(entry.Platform)).Inc()
	d.logger.Error(sendErr, "entry delivery failed",
		"entry_id", entry.ID.String(),
		"platform", string(entry.Platform),
		"attempts", attempts)
	d.publishEvent(ctx, EventTypeFailed, entry, attempts)
}

// spawnSuccessor creates the next occurrence of a recurring entry. The
// delivered entry stays sent as an immutable delivery record.
func (d *Dispatcher) spawnSuccessor(ctx context.Context, entry *model.ScheduleEntry) {
	next, ok := recurrence.Next(entry.Recurrence, entry.ScheduledTime)
	if !ok {
		d.logger.Warn("recurrence yielded no successor",
			"entry_id", entry.ID.String(),
			"frequency", string(entry.Recurrence.Frequency))
		return
	}

	successor := &model.ScheduleEntry{
		RecipientID:           entry.RecipientID,
		Platform:              entry.Platform,
		Content:               entry.Content,
		ScheduledTime:         next,
		DeliveryWindowSeconds: entry.DeliveryWindowSeconds,
		Priority:              entry.Priority,
		Recurrence:            entry.Recurrence,
		Status:                model.ScheduleStatusPending,
		Metadata:              entry.Metadata,
	}
	if err := d.repo.Create(ctx, successor); err != nil {
		d.logger.Error(err, "failed to create successor entry",
			"entry_id", entry.ID.String(),
			"next_occurrence", next)
		return
	}

	d.logger.Info("spawned recurring successor",
		"entry_id", entry.ID.String(),
		"successor_id", successor.ID.String(),
		"next_occurrence", next)
}

func (d *Dispatcher) publishEvent(ctx context.Context, eventType string, entry *model.ScheduleEntry, attempts int) {
	if d.broker == nil {
		return
	}
	event := DeliveryEvent{
		Type:        eventType,
		EntryID:     entry.ID.String(),
		RecipientID: entry.RecipientID.String(),
		Platform:    string(entry.Platform),
		Attempts:    attempts,
		OccurredAt:  d.clock.Now(),
	}
	if err := d.broker.Publish(ctx, EventChannel, event); err != nil {
		d.logger.Warn("failed to publish delivery event",
			"entry_id", entry.ID.String(),
			"event_type", eventType,
			"error", err.Error())
	}
}

func (d *Dispatcher) updateBacklogGauge(ctx context.Context) {
	counts, err := d.repo.CountByStatus(ctx)
	if err != nil {
		d.logger.Debug("failed to refresh backlog gauge", "error", err.Error())
		return
	}
	d.metrics.PendingBacklog.Set(float64(counts[model.ScheduleStatusPending]))
}
