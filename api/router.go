// Package api is the HTTP surface of the backend: gin handlers, JWT auth and
// request logging.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
)

type Handlers struct {
	Auth       *AuthHandler
	Generation *GenerationHandler
	TryOns     *TryOnHandler
	Profile    *ProfileHandler
	Items      *ItemHandler
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
}

// NewRouter mounts the public auth routes and the authenticated /api/v1 group.
func NewRouter(h Handlers, log logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CORS(), RequestLogger(log))

	r.GET("/health", HealthHandler)

	auth := r.Group("/auth")
	auth.POST("/signup", h.Auth.Signup)
	auth.POST("/login", h.Auth.Login)
	auth.GET("/google/login", h.Auth.GoogleLogin)
	auth.GET("/google/callback", h.Auth.GoogleCallback)

	v1 := r.Group("/api/v1", AuthMiddleware())

	v1.GET("/onboarding/should-start", h.Generation.ShouldStartOnboarding)
	v1.POST("/onboarding/start", h.Generation.StartOnboarding)
	v1.GET("/onboarding/status", h.Generation.OnboardingStatus)

	v1.POST("/looks/generate-more", h.Generation.GenerateMore)
	v1.GET("/looks", h.Generation.ListLooks)
	v1.GET("/looks/:id", h.Generation.GetLook)
	v1.GET("/workflows/:id", h.Generation.GetWorkflow)

	v1.POST("/try-ons", h.TryOns.Start)
	v1.GET("/try-ons/:id", h.TryOns.Get)

	v1.GET("/me", h.Profile.Me)
	v1.PUT("/me/profile", h.Profile.UpdateProfile)
	v1.GET("/me/credits", h.Profile.Credits)
	v1.GET("/me/photos", h.Profile.ListPhotos)
	v1.POST("/me/photos", h.Profile.UploadPhoto)
	v1.PUT("/me/photos/:id/primary", h.Profile.SetPrimaryPhoto)

	v1.GET("/items", h.Items.List)
	v1.GET("/items/:id", h.Items.Get)
	v1.POST("/catalog/import", h.Items.Import)

	return r
}
