package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const UserIDKey = "user_id"

const notAuthenticated = "Not authenticated"

// AuthMiddleware accepts "Authorization: Bearer <jwt>" and stores the
// caller's id under UserIDKey.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: notAuthenticated})
			return
		}

		subject, err := utils.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: notAuthenticated, Message: "invalid or expired token"})
			return
		}
		userID, err := primitive.ObjectIDFromHex(subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: notAuthenticated, Message: "invalid user id in token"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// currentUser returns the id set by AuthMiddleware.
func currentUser(c *gin.Context) primitive.ObjectID {
	id, _ := c.Get(UserIDKey)
	userID, _ := id.(primitive.ObjectID)
	return userID
}

// RequestLogger logs method, path, status and latency of every request.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.String())
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error(c.Request.Context(), "request", args...)
			return
		}
		log.Info(c.Request.Context(), "request", args...)
	}
}

// CORS allows the mobile and web clients to call the API from any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
