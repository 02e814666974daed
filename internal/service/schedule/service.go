package schedule

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/recurrence"
	"github.com/jwalitptl/engage-scheduler/internal/repository"
	"github.com/jwalitptl/engage-scheduler/pkg/clock"
	"github.com/jwalitptl/engage-scheduler/pkg/errors"
	"github.com/jwalitptl/engage-scheduler/pkg/logger"
)

const (
	statusCacheTTL     = 30 * time.Second
	statusCacheCleanup = 5 * time.Minute
)

// Config holds policy knobs for schedule creation.
type Config struct {
	// DefaultWindowSeconds applies when a request omits the delivery
	// window. A negative value means entries default to no upper bound.
	DefaultWindowSeconds int
}

// Service owns the exposed schedule surface: creation, cancellation,
// listing, manual override and status lookups. All delivery-side
// mutation belongs to the dispatcher, not here.
type Service struct {
	repo        repository.ScheduleRepository
	clock       clock.Clock
	logger      *logger.Logger
	statusCache *gocache.Cache
	config      Config
}

func NewService(repo repository.ScheduleRepository, clk clock.Clock, log *logger.Logger, config Config) *Service {
	return &Service{
		repo:        repo,
		clock:       clk,
		logger:      log,
		statusCache: gocache.New(statusCacheTTL, statusCacheCleanup),
		config:      config,
	}
}

// CreateSchedule validates and persists a new pending entry. Malformed
// recurrence rules are rejected here, never deferred to expansion time.
func (s *Service) CreateSchedule(ctx context.Context, req *model.CreateScheduleRequest) (*model.ScheduleEntry, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	window := s.config.DefaultWindowSeconds
	if req.DeliveryWindowSeconds != nil {
		window = *req.DeliveryWindowSeconds
	}
	if window < 0 {
		window = model.NoDeliveryDeadline
	}

	entry := &model.ScheduleEntry{
		ID:                    uuid.New(),
		RecipientID:           req.RecipientID,
		Platform:              req.Platform,
		Content:               req.Content,
		ScheduledTime:         req.ScheduledTime,
		DeliveryWindowSeconds: window,
		Priority:              req.Priority,
		Recurrence:            req.Recurrence,
		Status:                model.ScheduleStatusPending,
		Metadata:              req.Metadata,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to create schedule: %w", err))
	}

	s.logger.Info("schedule created",
		"entry_id", entry.ID.String(),
		"platform", string(entry.Platform),
		"scheduled_time", entry.ScheduledTime)
	return entry, nil
}

func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*model.ScheduleEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.NotFound("schedule", err)
	}
	if err != nil {
		return nil, errors.Internal(err)
	}
	return entry, nil
}

func (s *Service) ListSchedules(ctx context.Context, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return entries, nil
}

// GetStatus returns the entry's current status, served from a short
// lived cache since the chat UI polls it aggressively.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (model.ScheduleStatus, error) {
	if cached, ok := s.statusCache.Get(id.String()); ok {
		return cached.(model.ScheduleStatus), nil
	}

	entry, err := s.GetSchedule(ctx, id)
	if err != nil {
		return "", err
	}

	s.statusCache.Set(id.String(), entry.Status, gocache.DefaultExpiration)
	return entry.Status, nil
}

// CancelSchedule cancels a pending entry. Cancelling an entry that is
// already terminal is a no-op, so the operation is idempotent. The row
// is never deleted; cancellation is a terminal status preserving audit
// history.
func (s *Service) CancelSchedule(ctx context.Context, id uuid.UUID) error {
	entry, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status.Terminal() {
		return nil
	}

	status := model.ScheduleStatusCancelled
	err = s.repo.UpdateIfStatus(ctx, id, model.ScheduleStatusPending, repository.SchedulePatch{Status: &status})
	if stderrors.Is(err, repository.ErrConflict) {
		// The dispatcher finished it between the read and the update;
		// the entry is terminal either way.
		s.logger.Debug("cancel raced with dispatcher", "entry_id", id.String())
		return nil
	}
	if err != nil {
		return errors.Internal(err)
	}

	s.statusCache.Delete(id.String())
	s.logger.Info("schedule cancelled", "entry_id", id.String())
	return nil
}

// SendNow forces immediate delivery of a pending entry. It rewrites the
// scheduled time to now so the next dispatcher cycle picks the entry up
// through the normal path; the state machine and notifier are never
// bypassed. The original send time is preserved in metadata for audit.
func (s *Service) SendNow(ctx context.Context, id uuid.UUID) error {
	entry, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status != model.ScheduleStatusPending {
		return errors.InvalidState(fmt.Sprintf("schedule is %s, only pending entries can be sent now", entry.Status))
	}

	now := s.clock.Now()
	metadata := entry.Metadata.Clone()
	if metadata == nil {
		metadata = model.JSONMap{}
	}
	metadata[model.MetadataOriginalScheduledTime] = entry.ScheduledTime.Format(time.RFC3339)

	err = s.repo.UpdateIfStatus(ctx, id, model.ScheduleStatusPending, repository.SchedulePatch{
		ScheduledTime: &now,
		Metadata:      metadata,
	})
	if stderrors.Is(err, repository.ErrConflict) {
		return errors.InvalidState("schedule left pending state during override")
	}
	if err != nil {
		return errors.Internal(err)
	}

	s.statusCache.Delete(id.String())
	s.logger.Info("schedule override requested", "entry_id", id.String())
	return nil
}

func (s *Service) validateRequest(req *model.CreateScheduleRequest) error {
	if req.RecipientID == uuid.Nil {
		return errors.Validation("recipient is required", nil)
	}
	if req.Content == "" {
		return errors.Validation("content is required", nil)
	}
	if req.ScheduledTime.IsZero() {
		return errors.Validation("scheduled time is required", nil)
	}
	if !req.Platform.Valid() {
		return errors.Validation(fmt.Sprintf("unrecognized platform %q", req.Platform), nil)
	}
	if req.DeliveryWindowSeconds != nil && *req.DeliveryWindowSeconds < 0 && *req.DeliveryWindowSeconds != model.NoDeliveryDeadline {
		return errors.Validation("delivery window must be non-negative", nil)
	}

	if req.Recurrence != nil {
		if err := req.Recurrence.Validate(); err != nil {
			return errors.InvalidRecurrence("invalid recurrence rule", err)
		}
		// A rule that validates must also expand; guard the expander's
		// view of well-formedness at the same boundary.
		if _, ok := recurrence.Next(req.Recurrence, req.ScheduledTime); !ok {
			return errors.InvalidRecurrence("recurrence rule yields no occurrences", nil)
		}
	}
	return nil
}
