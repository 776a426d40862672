package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raushankrgupta/nima-backend/catalog"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/status"
	"github.com/raushankrgupta/nima-backend/store"
)

const maxPageSize = 100

type ItemHandler struct {
	items    store.ItemRepository
	status   *status.Query
	importer *catalog.Importer
	log      logging.Logger
}

func NewItemHandler(items store.ItemRepository, query *status.Query, importer *catalog.Importer, log logging.Logger) *ItemHandler {
	return &ItemHandler{items: items, status: query, importer: importer, log: log}
}

// List browses and searches the active catalog.
// Query: gender, category, q (text search), page, limit.
func (h *ItemHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	page := queryInt(c, "page", 1)
	limit := min(queryInt(c, "limit", 20), maxPageSize)

	f := store.ItemFilter{
		Gender:     c.Query("gender"),
		Category:   c.Query("category"),
		Query:      c.Query("q"),
		ActiveOnly: true,
	}
	total, err := h.items.Count(ctx, f)
	if err != nil {
		respondError(c, err, "item")
		return
	}

	f.Skip = int64((page - 1) * limit)
	f.Limit = int64(limit)
	items, err := h.items.List(ctx, f)
	if err != nil {
		respondError(c, err, "item")
		return
	}
	if items == nil {
		items = []models.Item{}
	}

	c.JSON(http.StatusOK, models.ItemPage{
		Items:       h.status.ResolveItems(ctx, items),
		Total:       total,
		CurrentPage: page,
		TotalPages:  int((total + int64(limit) - 1) / int64(limit)),
	})
}

func (h *ItemHandler) Get(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "item")
	if !ok {
		return
	}
	item, err := h.items.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "item")
		return
	}
	resolved := h.status.ResolveItems(c.Request.Context(), []models.Item{*item})
	c.JSON(http.StatusOK, resolved[0])
}

// Import scrapes a product page into the catalog.
func (h *ItemHandler) Import(c *gin.Context) {
	var req catalog.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		badRequest(c, "Please provide a product 'url'", err)
		return
	}

	item, err := h.importer.Import(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, item)
	case errors.Is(err, catalog.ErrInvalidURL):
		badRequest(c, err.Error(), nil)
	case errors.Is(err, catalog.ErrBlocked), errors.Is(err, catalog.ErrNoProduct):
		h.log.Warn(c.Request.Context(), "catalog import failed", "url", req.URL, "error", err)
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: "Scraping failed", Message: err.Error()})
	default:
		respondError(c, err, "item")
	}
}
