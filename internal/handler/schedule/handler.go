package schedule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/engage-scheduler/internal/model"
	scheduleService "github.com/jwalitptl/engage-scheduler/internal/service/schedule"
	"github.com/jwalitptl/engage-scheduler/pkg/errors"
	"github.com/jwalitptl/engage-scheduler/pkg/httputil"
)

type Handler struct {
	service *scheduleService.Service
}

func NewHandler(service *scheduleService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	schedules := r.Group("/schedules")
	{
		schedules.POST("", h.CreateSchedule)
		schedules.GET("", h.ListSchedules)
		schedules.GET("/:id", h.GetSchedule)
		schedules.GET("/:id/status", h.GetScheduleStatus)
		schedules.DELETE("/:id", h.CancelSchedule)
		schedules.POST("/:id/send", h.SendNow)
	}
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	var req model.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.Validation(err.Error(), err))
		return
	}

	entry, err := h.service.CreateSchedule(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, entry)
}

func (h *Handler) GetSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid schedule ID", err))
		return
	}

	entry, err := h.service.GetSchedule(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, entry)
}

func (h *Handler) GetScheduleStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid schedule ID", err))
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"id": id, "status": status})
}

func (h *Handler) ListSchedules(c *gin.Context) {
	var filter model.ScheduleFilter

	if id := c.Query("recipient_id"); id != "" {
		recipientID, err := uuid.Parse(id)
		if err != nil {
			httputil.RespondWithError(c, errors.Validation("invalid recipient ID", err))
			return
		}
		filter.RecipientID = &recipientID
	}

	if status := c.Query("status"); status != "" {
		s := model.ScheduleStatus(status)
		if !s.Valid() {
			httputil.RespondWithError(c, errors.Validation("invalid status filter", nil))
			return
		}
		filter.Status = &s
	}

	if err := c.ShouldBindQuery(&filter.Pagination); err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid pagination", err))
		return
	}

	entries, err := h.service.ListSchedules(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, entries)
}

func (h *Handler) CancelSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid schedule ID", err))
		return
	}

	if err := h.service.CancelSchedule(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, nil)
}

func (h *Handler) SendNow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid schedule ID", err))
		return
	}

	if err := h.service.SendNow(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, httputil.Response{Success: true})
}
