package schedule

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/repository"
	"github.com/jwalitptl/engage-scheduler/pkg/clock"
	"github.com/jwalitptl/engage-scheduler/pkg/errors"
	"github.com/jwalitptl/engage-scheduler/pkg/logger"
)

type fakeRepo struct {
	entries map[uuid.UUID]*model.ScheduleEntry
	gets    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: make(map[uuid.UUID]*model.ScheduleEntry)}
}

func (r *fakeRepo) Create(_ context.Context, entry *model.ScheduleEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*model.ScheduleEntry, error) {
	r.gets++
	entry, ok := r.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (r *fakeRepo) List(_ context.Context, filter model.ScheduleFilter) ([]*model.ScheduleEntry, error) {
	var out []*model.ScheduleEntry
	for _, entry := range r.entries {
		if filter.RecipientID != nil && entry.RecipientID != *filter.RecipientID {
			continue
		}
		if filter.Status != nil && entry.Status != *filter.Status {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) ListDue(context.Context, time.Time, int) ([]*model.ScheduleEntry, error) {
	return nil, nil
}

func (r *fakeRepo) Claim(_ context.Context, id uuid.UUID, expectedAttempts int) error {
	entry, ok := r.entries[id]
	if !ok || entry.Status != model.ScheduleStatusPending || entry.Attempts != expectedAttempts {
		return repository.ErrConflict
	}
	entry.Attempts++
	return nil
}

func (r *fakeRepo) UpdateIfStatus(_ context.Context, id uuid.UUID, expected model.ScheduleStatus, patch repository.SchedulePatch) error {
	entry, ok := r.entries[id]
	if !ok || entry.Status != expected {
		return repository.ErrConflict
	}
	if patch.Status != nil {
		entry.Status = *patch.Status
	}
	if patch.ScheduledTime != nil {
		entry.ScheduledTime = *patch.ScheduledTime
	}
	if patch.Metadata != nil {
		entry.Metadata = patch.Metadata
	}
	return nil
}

func (r *fakeRepo) CountByStatus(context.Context) (map[model.ScheduleStatus]int, error) {
	return nil, nil
}

func (r *fakeRepo) CountMissedSince(context.Context, time.Time) (int, error) {
	return 0, nil
}

func testService(repo repository.ScheduleRepository, clk clock.Clock) *Service {
	log := logger.NewLogger(&logger.Config{
		Level:      logger.ErrorLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
	return NewService(repo, clk, log, Config{DefaultWindowSeconds: 3600})
}

func validRequest() *model.CreateScheduleRequest {
	return &model.CreateScheduleRequest{
		RecipientID:   uuid.New(),
		Platform:      model.PlatformTelegram,
		Content:       "medication reminder",
		ScheduledTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestCreateSchedule(t *testing.T) {
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: time.Now()})

	entry, err := svc.CreateSchedule(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusPending, entry.Status)
	assert.Equal(t, 0, entry.Attempts)
	// Omitted window falls back to the configured default.
	assert.Equal(t, 3600, entry.DeliveryWindowSeconds)

	stored, err := repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, stored.ID)
}

func TestCreateScheduleExplicitZeroWindow(t *testing.T) {
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: time.Now()})

	req := validRequest()
	window := 0
	req.DeliveryWindowSeconds = &window

	entry, err := svc.CreateSchedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.DeliveryWindowSeconds)
}

func TestCreateScheduleValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.CreateScheduleRequest)
		code   errors.ErrorCode
	}{
		{"missing recipient", func(r *model.CreateScheduleRequest) { r.RecipientID = uuid.Nil }, errors.ErrValidation},
		{"missing content", func(r *model.CreateScheduleRequest) { r.Content = "" }, errors.ErrValidation},
		{"missing scheduled time", func(r *model.CreateScheduleRequest) { r.ScheduledTime = time.Time{} }, errors.ErrValidation},
		{"unknown platform", func(r *model.CreateScheduleRequest) { r.Platform = "pager" }, errors.ErrValidation},
		{"weekly without weekdays", func(r *model.CreateScheduleRequest) {
			r.Recurrence = &model.RecurrenceRule{Frequency: model.FrequencyWeekly}
		}, errors.ErrInvalidRecurrence},
		{"unknown frequency", func(r *model.CreateScheduleRequest) {
			r.Recurrence = &model.RecurrenceRule{Frequency: "hourly"}
		}, errors.ErrInvalidRecurrence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := testService(repo, &clock.Fixed{Time: time.Now()})

			req := validRequest()
			tt.mutate(req)

			_, err := svc.CreateSchedule(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			// Rejected before any store write.
			assert.Empty(t, repo.entries)
		})
	}
}

func TestCancelScheduleIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: time.Now()})

	entry, err := svc.CreateSchedule(context.Background(), validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.CancelSchedule(context.Background(), entry.ID))
	got, err := repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusCancelled, got.Status)

	// Second cancel is a no-op.
	require.NoError(t, svc.CancelSchedule(context.Background(), entry.ID))
	got, err = repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusCancelled, got.Status)
}

func TestCancelScheduleNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: time.Now()})

	err := svc.CancelSchedule(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

func TestSendNowRewritesScheduledTime(t *testing.T) {
	scheduled := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	now := scheduled.Add(-2 * time.Hour)
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: now})

	req := validRequest()
	req.ScheduledTime = scheduled
	entry, err := svc.CreateSchedule(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, svc.SendNow(context.Background(), entry.ID))

	got, err := repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, now, got.ScheduledTime)
	assert.Equal(t, model.ScheduleStatusPending, got.Status)
	assert.Equal(t, scheduled.Format(time.RFC3339), got.Metadata[model.MetadataOriginalScheduledTime])
}

func TestSendNowOnTerminalEntry(t *testing.T) {
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: time.Now()})

	entry, err := svc.CreateSchedule(context.Background(), validRequest())
	require.NoError(t, err)

	sent := model.ScheduleStatusSent
	require.NoError(t, repo.UpdateIfStatus(context.Background(), entry.ID, model.ScheduleStatusPending, repository.SchedulePatch{Status: &sent}))
	before, err := repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)

	err = svc.SendNow(context.Background(), entry.ID)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidState, errors.CodeOf(err))

	// No mutation happened.
	after, err := repo.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ScheduledTime, after.ScheduledTime)
	assert.Equal(t, before.Metadata, after.Metadata)
}

func TestSendNowNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: time.Now()})

	err := svc.SendNow(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, errors.ErrNotFound, errors.CodeOf(err))
}

func TestGetStatusServedFromCache(t *testing.T) {
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: time.Now()})

	entry, err := svc.CreateSchedule(context.Background(), validRequest())
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusPending, status)
	lookups := repo.gets

	status, err = svc.GetStatus(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleStatusPending, status)
	assert.Equal(t, lookups, repo.gets)
}

func TestListSchedulesFilterByRecipient(t *testing.T) {
	repo := newFakeRepo()
	svc := testService(repo, &clock.Fixed{Time: time.Now()})

	first, err := svc.CreateSchedule(context.Background(), validRequest())
	require.NoError(t, err)
	_, err = svc.CreateSchedule(context.Background(), validRequest())
	require.NoError(t, err)

	entries, err := svc.ListSchedules(context.Background(), model.ScheduleFilter{RecipientID: &first.RecipientID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.ID, entries[0].ID)
}
