package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	"github.com/jwalitptl/engage-scheduler/internal/repository"
	scheduleService "github.com/jwalitptl/engage-scheduler/internal/service/schedule"
	"github.com/jwalitptl/engage-scheduler/pkg/clock"
	"github.com/jwalitptl/engage-scheduler/pkg/logger"
)

type fakeRepo struct {
	entries map[uuid.UUID]*model.ScheduleEntry
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
	counts := make(map[model.ScheduleStatus]int)
	for _, entry := range r.entries {
		counts[entry.Status]++
	}
	return counts, nil
}

func (r *fakeRepo) CountMissedSince(context.Context, time.Time) (int, error) {
	return 0, nil
}

func setupTestRouter(t *testing.T) (*gin.Engine, *fakeRepo, *clock.Fixed) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newFakeRepo()
	clk := &clock.Fixed{Time: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

	svc := scheduleService.NewService(repo, clk, log, scheduleService.Config{DefaultWindowSeconds: 3600})

	engine := gin.New()
	NewHandler(svc).RegisterRoutes(engine.Group("/api/v1"))
	return engine, repo, clk
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func seedEntry(repo *fakeRepo, status model.ScheduleStatus, scheduledTime time.Time) *model.ScheduleEntry {
	entry := &model.ScheduleEntry{
		ID:                    uuid.New(),
		RecipientID:           uuid.New(),
		Platform:              model.PlatformTelegram,
		Content:               "Time for your medication",
		ScheduledTime:         scheduledTime,
		DeliveryWindowSeconds: 3600,
		Status:                status,
	}
	repo.entries[entry.ID] = entry
	return entry
}

func TestCreateSchedule(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"recipient_id":   uuid.New().String(),
		"platform":       "telegram",
		"content":        "Time for your medication",
		"scheduled_time": clk.Time.Add(time.Hour).Format(time.RFC3339),
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Success bool                `json:"success"`
		Data    model.ScheduleEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, model.ScheduleStatusPending, resp.Data.Status)
	assert.Equal(t, 3600, resp.Data.DeliveryWindowSeconds)
	assert.Len(t, repo.entries, 1)
}

func TestCreateScheduleMissingContent(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"recipient_id":   uuid.New().String(),
		"platform":       "telegram",
		"scheduled_time": clk.Time.Add(time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.entries)
}

func TestCreateScheduleUnknownPlatform(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"recipient_id":   uuid.New().String(),
		"platform":       "pigeon",
		"content":        "Time for your medication",
		"scheduled_time": clk.Time.Add(time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, repo.entries)
}

func TestGetSchedule(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)
	entry := seedEntry(repo, model.ScheduleStatusPending, clk.Time.Add(time.Hour))

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/schedules/"+entry.ID.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data model.ScheduleEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, entry.ID, resp.Data.ID)
	assert.Equal(t, entry.Content, resp.Data.Content)
}

func TestGetScheduleNotFound(t *testing.T) {
	engine, _, _ := setupTestRouter(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/schedules/"+uuid.New().String(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetScheduleInvalidID(t *testing.T) {
	engine, _, _ := setupTestRouter(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/schedules/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetScheduleStatus(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)
	entry := seedEntry(repo, model.ScheduleStatusSent, clk.Time)

	rec := doJSON(t, engine, http.MethodGet, fmt.Sprintf("/api/v1/schedules/%s/status", entry.ID), nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Status model.ScheduleStatus `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ScheduleStatusSent, resp.Data.Status)
}

func TestListSchedulesFilterByStatus(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)
	seedEntry(repo, model.ScheduleStatusPending, clk.Time.Add(time.Hour))
	seedEntry(repo, model.ScheduleStatusSent, clk.Time)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/schedules?status=pending", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []model.ScheduleEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, model.ScheduleStatusPending, resp.Data[0].Status)
}

func TestListSchedulesRejectsUnknownStatus(t *testing.T) {
	engine, _, _ := setupTestRouter(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/schedules?status=archived", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelSchedule(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)
	entry := seedEntry(repo, model.ScheduleStatusPending, clk.Time.Add(time.Hour))

	rec := doJSON(t, engine, http.MethodDelete, "/api/v1/schedules/"+entry.ID.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ScheduleStatusCancelled, repo.entries[entry.ID].Status)
}

func TestSendNow(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)
	entry := seedEntry(repo, model.ScheduleStatusPending, clk.Time.Add(24*time.Hour))

	rec := doJSON(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/schedules/%s/send", entry.ID), nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, clk.Time, repo.entries[entry.ID].ScheduledTime)
}

func TestSendNowOnSentEntryConflicts(t *testing.T) {
	engine, repo, clk := setupTestRouter(t)
	entry := seedEntry(repo, model.ScheduleStatusSent, clk.Time)

	rec := doJSON(t, engine, http.MethodPost, fmt.Sprintf("/api/v1/schedules/%s/send", entry.ID), nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.ScheduleStatusSent, repo.entries[entry.ID].Status)
}
