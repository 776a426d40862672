// Package catalog ingests retailer product pages into catalog items.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/storage"
	"github.com/raushankrgupta/nima-backend/store"
	"github.com/raushankrgupta/nima-backend/utils"
)

var ErrInvalidURL = errors.New("product url must be an absolute http(s) url")

// imageWorkers limits concurrent image copies per product so retailers'
// CDNs do not throttle us.
const imageWorkers = 5

// ImportRequest describes one product page. Gender and Category override
// whatever the page declares.
type ImportRequest struct {
	URL      string   `json:"url"`
	Gender   string   `json:"gender,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type Importer struct {
	items   store.ItemRepository
	files   storage.FileStore
	fetcher *Fetcher
	parsers []Parser
	log     logging.Logger

	// resolve follows shortened links; replaced in tests.
	resolve func(ctx context.Context, pageURL string) (string, error)
}

func NewImporter(items store.ItemRepository, files storage.FileStore, fetcher *Fetcher, log logging.Logger) *Importer {
	return &Importer{
		items:   items,
		files:   files,
		fetcher: fetcher,
		parsers: DefaultParsers(),
		log:     log,
		resolve: utils.ResolveShortenedURL,
	}
}

// Scrape fetches and parses a product page without touching the catalog.
func (im *Importer) Scrape(ctx context.Context, pageURL string) (*models.ScrapedProduct, error) {
	if !utils.IsAbsoluteURL(pageURL) {
		return nil, ErrInvalidURL
	}
	resolved, err := im.resolve(ctx, pageURL)
	if err != nil {
		im.log.Warn(ctx, "could not resolve url, using it as is", "url", pageURL, "error", err)
		resolved = pageURL
	}

	parser := parserFor(im.parsers, resolved)
	if parser == nil {
		return nil, fmt.Errorf("no parser for url: %s", resolved)
	}
	doc, err := im.fetcher.FetchDocument(ctx, resolved, parser.Validate)
	if err != nil {
		return nil, err
	}
	return parser.Parse(doc, resolved)
}

// Import scrapes a product page, copies its images into storage and upserts
// the item keyed by its source URL. Re-importing a page refreshes the item.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*models.Item, error) {
	product, err := im.Scrape(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	item := &models.Item{
		Name:        product.Title,
		Brand:       product.Brand,
		Description: product.Description,
		Category:    firstNonEmpty(req.Category, product.Category),
		Gender:      firstNonEmpty(normalizeGender(req.Gender), product.Gender, models.GenderUnisex),
		Price:       product.Price,
		Currency:    firstNonEmpty(product.Currency, "INR"),
		Colors:      product.Colors,
		Sizes:       product.Sizes,
		Tags:        req.Tags,
		ImageKeys:   im.copyImages(ctx, absoluteURLs(product.URL, product.Images)),
		SourceURL:   product.URL,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := im.items.UpsertBySourceURL(ctx, item); err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}

	im.log.Info(ctx, "catalog item imported", "item_id", item.ID.Hex(), "source_url", item.SourceURL, "images", len(item.ImageKeys))
	item.ImageURLs = storage.ResolveAll(ctx, im.files, item.ImageKeys)
	return item, nil
}

// copyImages uploads each remote image and returns the refs in page order.
// An image that fails to copy keeps its remote URL.
func (im *Importer) copyImages(ctx context.Context, urls []string) []string {
	refs := make([]string, len(urls))
	sem := make(chan struct{}, imageWorkers)
	var wg sync.WaitGroup

	for i, src := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			refs[i] = src
			data, contentType, err := utils.FetchURL(ctx, src)
			if err != nil {
				im.log.Warn(ctx, "image download failed", "url", src, "error", err)
				return
			}
			key, err := im.files.Upload(ctx, storage.NewKey("items", storage.ExtFor(contentType)), data, contentType)
			if err != nil {
				im.log.Warn(ctx, "image upload failed", "url", src, "error", err)
				return
			}
			refs[i] = key
		}()
	}
	wg.Wait()
	return refs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// absoluteURLs resolves protocol-relative and root-relative image paths
// against the page they were found on.
func absoluteURLs(page string, refs []string) []string {
	base, err := url.Parse(page)
	if err != nil {
		return refs
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		u, err := url.Parse(ref)
		if err != nil {
			continue
		}
		out = append(out, base.ResolveReference(u).String())
	}
	return out
}
