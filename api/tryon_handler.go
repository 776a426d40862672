package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/status"
	"github.com/raushankrgupta/nima-backend/tryon"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TryOnRequest struct {
	ItemID string `json:"item_id" binding:"required"`
	Size   string `json:"size"`
	Color  string `json:"color"`
}

type TryOnHandler struct {
	tryOns *tryon.Service
	status *status.Query
	log    logging.Logger
}

func NewTryOnHandler(tryOns *tryon.Service, query *status.Query, log logging.Logger) *TryOnHandler {
	return &TryOnHandler{tryOns: tryOns, status: query, log: log}
}

// Start returns the cached try-on for the item or schedules a new one.
func (h *TryOnHandler) Start(c *gin.Context) {
	var req TryOnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	itemID, err := primitive.ObjectIDFromHex(req.ItemID)
	if err != nil {
		c.JSON(http.StatusOK, models.TryOnStartResponse{Success: false, Error: tryon.ErrItemNotFound.Error()})
		return
	}

	t, err := h.tryOns.Start(c.Request.Context(), currentUser(c), itemID, req.Size, req.Color)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, models.TryOnStartResponse{Success: true, TryOnID: t.ID.Hex(), Status: t.Status})
	case isRejection(err):
		h.log.Info(c.Request.Context(), "try-on not started", "user_id", currentUser(c).Hex(), "item_id", req.ItemID, "reason", err.Error())
		c.JSON(http.StatusOK, models.TryOnStartResponse{Success: false, Error: err.Error()})
	default:
		respondError(c, err, "item")
	}
}

func (h *TryOnHandler) Get(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "try-on")
	if !ok {
		return
	}
	t, err := h.status.TryOn(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err, "try-on")
		return
	}
	c.JSON(http.StatusOK, t)
}
