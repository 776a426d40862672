// Package generation renders look and try-on images and records the result.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raushankrgupta/nima-backend/ai"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/storage"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNoPrimaryPhoto = errors.New("no primary photo")
	ErrLookFailed     = errors.New("look already failed")
)

type Renderer struct {
	store store.Store
	files storage.FileStore
	model ai.Renderer
	log   logging.Logger
	now   func() time.Time
}

func NewRenderer(s store.Store, files storage.FileStore, model ai.Renderer, log logging.Logger) *Renderer {
	return &Renderer{store: s, files: files, model: model, log: log, now: time.Now}
}

// RenderLook generates the image of a look: the look and its image move to
// processing, then to completed with the stored image key.
func (r *Renderer) RenderLook(ctx context.Context, lookID primitive.ObjectID) error {
	look, err := r.store.Looks().GetByID(ctx, lookID)
	if err != nil {
		return Permanent(fmt.Errorf("load look %s: %w", lookID.Hex(), err))
	}
	switch look.GenerationStatus {
	case models.StatusCompleted:
		return nil
	case models.StatusFailed:
		return Permanent(ErrLookFailed)
	}

	if err := r.store.Looks().UpdateStatus(ctx, lookID, models.StatusProcessing, ""); err != nil {
		return err
	}
	if err := r.saveLookImage(ctx, look, models.StatusProcessing, "", ""); err != nil {
		return err
	}

	items, err := r.store.Items().GetMany(ctx, look.ItemIDs)
	if err != nil {
		return err
	}

	key, err := r.render(ctx, look.UserID, items, "looks/"+look.UserID.Hex(), lookDescription(look, items))
	if err != nil {
		return err
	}

	if err := r.saveLookImage(ctx, look, models.StatusCompleted, key, ""); err != nil {
		return err
	}
	if err := r.store.Looks().UpdateStatus(ctx, lookID, models.StatusCompleted, ""); err != nil {
		return err
	}

	r.log.Info(ctx, "look rendered", "look_id", lookID.Hex(), "storage_key", key)
	return nil
}

// MarkLookFailed records a terminal failure on the look and its image.
func (r *Renderer) MarkLookFailed(ctx context.Context, lookID primitive.ObjectID, reason string) error {
	look, err := r.store.Looks().GetByID(ctx, lookID)
	if err != nil {
		return err
	}
	if look.GenerationStatus == models.StatusCompleted {
		return nil
	}
	if err := r.store.Looks().UpdateStatus(ctx, lookID, models.StatusFailed, reason); err != nil {
		return err
	}
	return r.saveLookImage(ctx, look, models.StatusFailed, "", reason)
}

// RenderTryOn generates the image of a single item on the user and returns
// its storage key. Status transitions belong to the caller.
func (r *Renderer) RenderTryOn(ctx context.Context, t *models.ItemTryOn) (string, error) {
	item, err := r.store.Items().GetByID(ctx, t.ItemID)
	if err != nil {
		return "", Permanent(fmt.Errorf("load item %s: %w", t.ItemID.Hex(), err))
	}

	desc := fmt.Sprintf("Garment: %s.", item.Name)
	if t.SelectedColor != "" {
		desc += fmt.Sprintf(" Colour: %s.", t.SelectedColor)
	}
	if t.SelectedSize != "" {
		desc += fmt.Sprintf(" Size: %s.", t.SelectedSize)
	}

	return r.render(ctx, t.UserID, []models.Item{*item}, "tryons/"+t.UserID.Hex(), desc)
}

func (r *Renderer) render(ctx context.Context, userID primitive.ObjectID, items []models.Item, prefix, desc string) (string, error) {
	photo, err := r.store.UserImages().GetPrimary(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", Permanent(ErrNoPrimaryPhoto)
	}
	if err != nil {
		return "", err
	}

	person, err := r.files.Download(ctx, photo.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to fetch person image: %w", err)
	}

	var garments [][]byte
	for _, it := range items {
		if len(it.ImageKeys) == 0 {
			continue
		}
		img, err := r.files.Download(ctx, it.ImageKeys[0])
		if err != nil {
			r.log.Warn(ctx, "skipping garment image", "item_id", it.ID.Hex(), "error", err)
			continue
		}
		garments = append(garments, img)
	}

	data, mime, err := r.model.Render(ctx, ai.RenderRequest{
		PersonImage:   person,
		GarmentImages: garments,
		Description:   desc,
	})
	if err != nil {
		return "", err
	}

	return r.files.Upload(ctx, storage.NewKey(prefix, storage.ExtFor(mime)), data, mime)
}

func (r *Renderer) saveLookImage(ctx context.Context, look *models.Look, status, key, errMsg string) error {
	now := r.now()
	img := &models.LookImage{
		LookID:       look.ID,
		UserID:       look.UserID,
		StorageKey:   key,
		Status:       status,
		ErrorMessage: errMsg,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return r.store.LookImages().Save(ctx, img)
}

func lookDescription(look *models.Look, items []models.Item) string {
	desc := fmt.Sprintf("Outfit: %s.", look.Name)
	for _, it := range items {
		desc += fmt.Sprintf(" %s", it.Name)
		if len(it.Colors) > 0 {
			desc += fmt.Sprintf(" (%s)", it.Colors[0])
		}
		desc += "."
	}
	if look.Occasion != "" {
		desc += fmt.Sprintf(" Occasion: %s.", look.Occasion)
	}
	return desc
}
