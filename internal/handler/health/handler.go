package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/engage-scheduler/internal/dispatch"
	"github.com/jwalitptl/engage-scheduler/pkg/httputil"
)

type Handler struct {
	db       *sqlx.DB
	reporter *dispatch.HealthReporter
}

func NewHandler(db *sqlx.DB, reporter *dispatch.HealthReporter) *Handler {
	return &Handler{
		db:       db,
		reporter: reporter,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
		health.GET("/dispatcher", h.DispatcherReport)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "DOWN",
			"reason": "Database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// DispatcherReport exposes the dispatcher liveness heuristic and the
// schedule backlog for external monitoring.
func (h *Handler) DispatcherReport(c *gin.Context) {
	report, err := h.reporter.Report(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, report)
}
