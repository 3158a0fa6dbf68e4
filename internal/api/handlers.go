package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/driftlabs/driftroute/internal/engine"
	"github.com/driftlabs/driftroute/internal/strategy"
	"github.com/driftlabs/driftroute/pkg/types"
	"github.com/driftlabs/driftroute/pkg/utils"
)

var startTime = time.Now()

// RouteRequest is the POST /v1/route payload.
type RouteRequest struct {
	Text  string         `json:"text" binding:"required"`
	Hints map[string]any `json:"hints"`
}

// Handlers holds the HTTP handlers over the routing engine.
type Handlers struct {
	engine *engine.Engine
	logger *utils.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(eng *engine.Engine, logger *utils.Logger) *Handlers {
	return &Handlers{engine: eng, logger: logger}
}

// Route handles POST /v1/route.
func (h *Handlers) Route(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	decision, err := h.engine.Route(c.Request.Context(), types.NewRequest(req.Text, req.Hints))
	if err != nil {
		h.logger.Error("route failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
		return
	}

	c.JSON(http.StatusOK, decision)
}

// Stats handles GET /v1/stats.
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

// Backends handles GET /v1/backends: per-backend health records.
func (h *Handlers) Backends(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backends": h.engine.Monitor().Snapshot()})
}

// Recommendations handles GET /v1/recommendations: the learner's current
// ranking for a synthetic state built from query parameters.
func (h *Handlers) Recommendations(c *gin.Context) {
	state := strategy.QState{
		Category:      types.RequestCategory(c.DefaultQuery("category", string(types.CategoryGeneral))),
		Complexity:    types.ComplexityLevel(c.DefaultQuery("complexity", string(types.ComplexityModerate))),
		Urgency:       c.DefaultQuery("urgency", "normal"),
		RecentSuccess: c.DefaultQuery("recent_success", "high"),
		Load:          c.DefaultQuery("load", "low"),
	}

	selector := h.engine.Selector()
	catalog := selector.Catalog()
	ranked := selector.Recommend(state, len(catalog), catalog)
	c.JSON(http.StatusOK, gin.H{"state": state.Key(), "actions": ranked})
}

// Healthz handles GET /healthz.
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"service":        "driftroute",
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}
