package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raushankrgupta/nima-backend/credits"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/storage"
	"github.com/raushankrgupta/nima-backend/store"
)

// maxPhotoSize caps a single reference photo upload.
const maxPhotoSize = 10 << 20

type ProfileUpdateRequest struct {
	Name             *string  `json:"name" binding:"omitempty,min=1"`
	Gender           *string  `json:"gender" binding:"omitempty,oneof=male female unisex"`
	StylePreferences []string `json:"style_preferences"`
	BudgetMin        *float64 `json:"budget_min" binding:"omitempty,gte=0"`
	BudgetMax        *float64 `json:"budget_max" binding:"omitempty,gte=0"`
}

// ProfileHandler serves the caller's account: profile, credits and photos.
type ProfileHandler struct {
	store  store.Store
	ledger *credits.Ledger
	files  storage.FileStore
	log    logging.Logger
}

func NewProfileHandler(s store.Store, ledger *credits.Ledger, files storage.FileStore, log logging.Logger) *ProfileHandler {
	return &ProfileHandler{store: s, ledger: ledger, files: files, log: log}
}

func (h *ProfileHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	// Balance applies a due weekly reset before the profile is read
	if _, err := h.ledger.Balance(ctx, currentUser(c)); err != nil {
		respondError(c, err, "user")
		return
	}
	user, err := h.store.Users().GetByID(ctx, currentUser(c))
	if err != nil {
		respondError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if req.BudgetMin != nil && req.BudgetMax != nil && *req.BudgetMin > *req.BudgetMax {
		badRequest(c, "budget_min must not exceed budget_max", nil)
		return
	}

	ctx := c.Request.Context()
	update := store.ProfileUpdate{
		Name:             req.Name,
		Gender:           req.Gender,
		StylePreferences: req.StylePreferences,
		BudgetMin:        req.BudgetMin,
		BudgetMax:        req.BudgetMax,
	}
	if err := h.store.Users().UpdateProfile(ctx, currentUser(c), update); err != nil {
		respondError(c, err, "user")
		return
	}

	user, err := h.store.Users().GetByID(ctx, currentUser(c))
	if err != nil {
		respondError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *ProfileHandler) Credits(c *gin.Context) {
	balance, err := h.ledger.Balance(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err, "user")
		return
	}
	c.JSON(http.StatusOK, models.CreditsResponse{Credits: balance, Available: balance.Available()})
}

func (h *ProfileHandler) ListPhotos(c *gin.Context) {
	ctx := c.Request.Context()
	photos, err := h.store.UserImages().ListByUser(ctx, currentUser(c))
	if err != nil {
		respondError(c, err, "photo")
		return
	}
	for i := range photos {
		photos[i].URL, _ = h.files.ResolveURL(ctx, photos[i].StorageKey)
	}
	if photos == nil {
		photos = []models.UserImage{}
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

// UploadPhoto stores a reference photo from the multipart field "image".
// The user's first photo becomes the primary one.
func (h *ProfileHandler) UploadPhoto(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPhotoSize+1<<20)
	header, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image file is required", err)
		return
	}
	if header.Size > maxPhotoSize {
		badRequest(c, "image is larger than 10MB", nil)
		return
	}

	file, err := header.Open()
	if err != nil {
		badRequest(c, "could not read image", err)
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		badRequest(c, "could not read image", err)
		return
	}
	contentType := http.DetectContentType(buf.Bytes())
	if !strings.HasPrefix(contentType, "image/") {
		badRequest(c, "file is not an image", fmt.Errorf("detected %s", contentType))
		return
	}

	existing, err := h.store.UserImages().CountByUser(ctx, userID)
	if err != nil {
		respondError(c, err, "photo")
		return
	}

	key, err := h.files.Upload(ctx, storage.NewKey("users/"+userID.Hex(), storage.ExtFor(contentType)), buf.Bytes(), contentType)
	if err != nil {
		respondError(c, fmt.Errorf("upload photo: %w", err), "photo")
		return
	}

	img := &models.UserImage{
		UserID:     userID,
		StorageKey: key,
		IsPrimary:  existing == 0,
		CreatedAt:  time.Now(),
	}
	if err := h.store.UserImages().Create(ctx, img); err != nil {
		respondError(c, err, "photo")
		return
	}

	img.URL, _ = h.files.ResolveURL(ctx, key)
	h.log.Info(ctx, "photo uploaded", "user_id", userID.Hex(), "image_id", img.ID.Hex(), "primary", img.IsPrimary)
	c.JSON(http.StatusCreated, img)
}

func (h *ProfileHandler) SetPrimaryPhoto(c *gin.Context) {
	imageID, ok := objectIDParam(c, "id", "photo")
	if !ok {
		return
	}
	err := h.store.UserImages().SetPrimary(c.Request.Context(), currentUser(c), imageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "photo not found"})
			return
		}
		respondError(c, err, "photo")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
