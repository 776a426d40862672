package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/raushankrgupta/nima-backend/credits"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/status"
	"github.com/raushankrgupta/nima-backend/store"
	"github.com/raushankrgupta/nima-backend/tryon"
	"github.com/raushankrgupta/nima-backend/workflow"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// isRejection reports whether err is a business precondition that the
// start endpoints answer with 200 and success=false.
func isRejection(err error) bool {
	for _, target := range []error{
		credits.ErrInsufficientCredits,
		workflow.ErrNoPhotos,
		workflow.ErrGenerationInProgress,
		workflow.ErrInsufficientInventory,
		tryon.ErrItemNotFound,
		tryon.ErrItemUnavailable,
		tryon.ErrNoPrimaryPhoto,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, status.ErrNotFound) ||
		errors.Is(err, workflow.ErrUserNotFound) ||
		errors.Is(err, tryon.ErrUserNotFound)
}

// respondError writes 404 for missing records and 500 for everything else.
func respondError(c *gin.Context, err error, what string) {
	_ = c.Error(err)
	if isNotFound(err) {
		msg := what + " not found"
		if errors.Is(err, workflow.ErrUserNotFound) || errors.Is(err, tryon.ErrUserNotFound) {
			msg = workflow.ErrUserNotFound.Error()
		}
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: msg})
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error", Message: err.Error()})
}

func badRequest(c *gin.Context, msg string, err error) {
	resp := models.ErrorResponse{Error: msg}
	if err != nil {
		resp.Message = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// objectIDParam parses a path parameter; it writes 404 and returns false
// for malformed ids so they look like any other missing record.
func objectIDParam(c *gin.Context, name, what string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: what + " not found"})
		return primitive.NilObjectID, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
