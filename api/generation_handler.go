package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/status"
	"github.com/raushankrgupta/nima-backend/workflow"
)

type GenerateMoreRequest struct {
	ExcludeItemIDs []string `json:"exclude_item_ids"`
}

// GenerationHandler starts look generation and serves the polling reads.
type GenerationHandler struct {
	workflows *workflow.Service
	status    *status.Query
	log       logging.Logger
}

func NewGenerationHandler(workflows *workflow.Service, query *status.Query, log logging.Logger) *GenerationHandler {
	return &GenerationHandler{workflows: workflows, status: query, log: log}
}

func (h *GenerationHandler) ShouldStartOnboarding(c *gin.Context) {
	res, err := h.workflows.ShouldStartOnboarding(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *GenerationHandler) StartOnboarding(c *gin.Context) {
	id, err := h.workflows.StartOnboarding(c.Request.Context(), currentUser(c))
	h.respondStart(c, id, err)
}

func (h *GenerationHandler) OnboardingStatus(c *gin.Context) {
	res, err := h.status.OnboardingStatus(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, res)
}

// GenerateMore charges one batch and schedules new looks. The body is optional.
func (h *GenerationHandler) GenerateMore(c *gin.Context) {
	var req GenerateMoreRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body", err)
		return
	}

	id, err := h.workflows.StartGenerateMore(c.Request.Context(), currentUser(c), req.ExcludeItemIDs)
	h.respondStart(c, id, err)
}

func (h *GenerationHandler) respondStart(c *gin.Context, workflowID string, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, models.StartResponse{Success: true, WorkflowID: workflowID})
	case isRejection(err):
		h.log.Info(c.Request.Context(), "generation not started", "user_id", currentUser(c).Hex(), "reason", err.Error())
		c.JSON(http.StatusOK, models.StartResponse{Success: false, Error: err.Error()})
	default:
		respondError(c, err, "user")
	}
}

// ListLooks returns the caller's lookbook, newest first.
func (h *GenerationHandler) ListLooks(c *gin.Context) {
	page, err := h.status.Looks(c.Request.Context(), currentUser(c), queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, err, "look")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *GenerationHandler) GetLook(c *gin.Context) {
	lookID, ok := objectIDParam(c, "id", "look")
	if !ok {
		return
	}
	look, err := h.status.Look(c.Request.Context(), currentUser(c), lookID)
	if err != nil {
		respondError(c, err, "look")
		return
	}
	c.JSON(http.StatusOK, look)
}

func (h *GenerationHandler) GetWorkflow(c *gin.Context) {
	run, err := h.status.Workflow(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "workflow")
		return
	}
	c.JSON(http.StatusOK, run)
}
