package campaign

import (
	"net/http"

	"notivio/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for the campaign domain.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new campaign handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Create handles POST /api/v1/campaigns.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}

	created, err := h.engine.Create(c.Request.Context(), &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessMessage(c, http.StatusCreated, "campaign created", created)
}

// Get handles GET /api/v1/campaigns/:id.
func (h *Handler) Get(c *gin.Context) {
	campaign, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.Success(c, http.StatusOK, campaign)
}

// Execute handles POST /api/v1/campaigns/:id/execute.
func (h *Handler) Execute(c *gin.Context) {
	resp, err := h.engine.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Status == "queued" {
		status = http.StatusAccepted
	}
	common.SuccessMessage(c, status, "campaign execution started", resp)
}

// Pause handles POST /api/v1/campaigns/:id/pause.
func (h *Handler) Pause(c *gin.Context) {
	if err := h.engine.Pause(c.Request.Context(), c.Param("id")); err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessMessage(c, http.StatusOK, "campaign paused", nil)
}

// Resume handles POST /api/v1/campaigns/:id/resume.
func (h *Handler) Resume(c *gin.Context) {
	resp, err := h.engine.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Status == "queued" {
		status = http.StatusAccepted
	}
	common.SuccessMessage(c, status, "campaign resumed", resp)
}

// Cancel handles POST /api/v1/campaigns/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	if err := h.engine.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessMessage(c, http.StatusOK, "campaign cancelled", nil)
}

// RetryFailed handles POST /api/v1/campaigns/:id/retry-failed.
func (h *Handler) RetryFailed(c *gin.Context) {
	resp, err := h.engine.RetryFailed(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessMessage(c, http.StatusOK, "retry of failed messages finished", resp)
}

// RegisterRoutes registers campaign routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/campaigns", h.Create)
	rg.GET("/campaigns/:id", h.Get)
	rg.POST("/campaigns/:id/execute", h.Execute)
	rg.POST("/campaigns/:id/pause", h.Pause)
	rg.POST("/campaigns/:id/resume", h.Resume)
	rg.POST("/campaigns/:id/cancel", h.Cancel)
	rg.POST("/campaigns/:id/retry-failed", h.RetryFailed)
}
