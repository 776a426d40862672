package catalog

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/raushankrgupta/nima-backend/models"
)

var ErrNoProduct = errors.New("no product found on page")

// Parser extracts a product from one retailer's pages.
type Parser interface {
	// CanParse checks if the parser handles the given URL.
	CanParse(url string) bool
	// Validate reports whether a fetched page is complete enough to parse.
	Validate(doc *goquery.Document) bool
	Parse(doc *goquery.Document, url string) (*models.ScrapedProduct, error)
}

// DefaultParsers returns the retailer parsers followed by the structured-data
// parser, which accepts any URL.
func DefaultParsers() []Parser {
	return []Parser{AmazonParser{}, FlipkartParser{}, MyntraParser{}, StructuredDataParser{}}
}

func parserFor(parsers []Parser, url string) Parser {
	for _, p := range parsers {
		if p.CanParse(url) {
			return p
		}
	}
	return nil
}

// StructuredDataParser reads schema.org Product JSON-LD and falls back to
// OpenGraph product tags.
type StructuredDataParser struct{}

func (StructuredDataParser) CanParse(string) bool { return true }

func (StructuredDataParser) Validate(doc *goquery.Document) bool {
	return doc.Find(`script[type="application/ld+json"]`).Length() > 0 ||
		doc.Find(`meta[property="og:title"]`).Length() > 0
}

func (StructuredDataParser) Parse(doc *goquery.Document, url string) (*models.ScrapedProduct, error) {
	product := &models.ScrapedProduct{URL: url}

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if ld := findProductLD([]byte(s.Text())); ld != nil {
			ld.fill(product)
			return false
		}
		return true
	})

	if product.Title == "" {
		product.Title = metaContent(doc, "og:title")
	}
	if product.Description == "" {
		product.Description = metaContent(doc, "og:description")
	}
	if product.Price == 0 {
		product.Price = parsePrice(metaContent(doc, "product:price:amount"))
	}
	if product.Currency == "" {
		product.Currency = metaContent(doc, "product:price:currency")
	}
	if product.Brand == "" {
		product.Brand = metaContent(doc, "product:brand")
	}
	if len(product.Images) == 0 {
		doc.Find(`meta[property="og:image"]`).Each(func(_ int, s *goquery.Selection) {
			if src := strings.TrimSpace(s.AttrOr("content", "")); src != "" {
				product.Images = append(product.Images, src)
			}
		})
	}

	if product.Title == "" {
		return nil, ErrNoProduct
	}
	product.Images = dedupe(product.Images)
	return product, nil
}

type productLD struct {
	Type        any             `json:"@type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Color       string          `json:"color"`
	Brand       json.RawMessage `json:"brand"`
	Image       json.RawMessage `json:"image"`
	Offers      json.RawMessage `json:"offers"`
	Graph       []productLD     `json:"@graph"`
}

type offerLD struct {
	Price         any    `json:"price"`
	LowPrice      any    `json:"lowPrice"`
	PriceCurrency string `json:"priceCurrency"`
}

// findProductLD accepts a single object, an array or an @graph wrapper.
func findProductLD(raw []byte) *productLD {
	var list []productLD
	if err := json.Unmarshal(raw, &list); err != nil {
		var one productLD
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil
		}
		list = []productLD{one}
	}
	for i := range list {
		if isProductType(list[i].Type) {
			return &list[i]
		}
		for j := range list[i].Graph {
			if isProductType(list[i].Graph[j].Type) {
				return &list[i].Graph[j]
			}
		}
	}
	return nil
}

func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Product"
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func (ld *productLD) fill(p *models.ScrapedProduct) {
	p.Title = strings.TrimSpace(ld.Name)
	p.Description = strings.TrimSpace(ld.Description)
	p.Category = ld.Category
	if ld.Color != "" {
		p.Colors = []string{ld.Color}
	}

	var brand struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(ld.Brand, &brand); err == nil {
		p.Brand = brand.Name
	} else {
		_ = json.Unmarshal(ld.Brand, &p.Brand)
	}

	var images []string
	if err := json.Unmarshal(ld.Image, &images); err != nil {
		var one string
		if json.Unmarshal(ld.Image, &one) == nil && one != "" {
			images = []string{one}
		}
	}
	p.Images = images

	var offers []offerLD
	if err := json.Unmarshal(ld.Offers, &offers); err != nil {
		var one offerLD
		if json.Unmarshal(ld.Offers, &one) == nil {
			offers = []offerLD{one}
		}
	}
	for _, o := range offers {
		price := priceValue(o.Price)
		if price == 0 {
			price = priceValue(o.LowPrice)
		}
		if price > 0 {
			p.Price = price
			p.Currency = o.PriceCurrency
			break
		}
	}
}

// MyntraParser reads the state object Myntra embeds as window.__myx.
type MyntraParser struct{}

func (MyntraParser) CanParse(url string) bool {
	return strings.Contains(url, "myntra.com")
}

func (MyntraParser) Validate(doc *goquery.Document) bool {
	return strings.Contains(doc.Text(), "window.__myx") || doc.Find("h1").Length() > 0
}

type myntraState struct {
	PdpData struct {
		Name       string  `json:"name"`
		MRP        float64 `json:"mrp"`
		Price      float64 `json:"price"`
		Gender     string  `json:"gender"`
		BaseColour string  `json:"baseColour"`
		Brand      struct {
			Name string `json:"name"`
		} `json:"brand"`
		Analytics struct {
			ArticleType string `json:"articleType"`
		} `json:"analytics"`
		ProductDetails []struct {
			Description string `json:"description"`
		} `json:"productDetails"`
		Sizes []struct {
			Label     string `json:"label"`
			Available bool   `json:"available"`
		} `json:"sizes"`
		Media struct {
			Albums []struct {
				Images []struct {
					Src string `json:"src"`
				} `json:"images"`
			} `json:"albums"`
		} `json:"media"`
	} `json:"pdpData"`
}

func (MyntraParser) Parse(doc *goquery.Document, url string) (*models.ScrapedProduct, error) {
	product := &models.ScrapedProduct{URL: url, Currency: "INR"}

	var state myntraState
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, "window.__myx =")
		if idx < 0 {
			return true
		}
		raw := strings.TrimSpace(text[idx+len("window.__myx ="):])
		raw = strings.TrimSuffix(raw, ";")
		_ = json.Unmarshal([]byte(raw), &state)
		return false
	})

	pd := state.PdpData
	if pd.Name != "" {
		product.Title = pd.Name
		product.Brand = pd.Brand.Name
		product.Price = pd.Price
		if product.Price == 0 {
			product.Price = pd.MRP
		}
		product.Gender = normalizeGender(pd.Gender)
		product.Category = pd.Analytics.ArticleType
		if pd.BaseColour != "" {
			product.Colors = []string{pd.BaseColour}
		}
		for _, d := range pd.ProductDetails {
			if d.Description != "" {
				product.Description = htmlText(d.Description)
				break
			}
		}
		for _, s := range pd.Sizes {
			if s.Available {
				product.Sizes = append(product.Sizes, s.Label)
			}
		}
		for _, album := range pd.Media.Albums {
			for _, img := range album.Images {
				if img.Src != "" {
					product.Images = append(product.Images, img.Src)
				}
			}
		}
	} else {
		// server-rendered markup when the state object is missing
		product.Title = strings.TrimSpace(doc.Find(".pdp-title").Text())
		if name := strings.TrimSpace(doc.Find(".pdp-name").Text()); name != "" {
			product.Brand = product.Title
			product.Title = name
		}
		product.Price = parsePrice(doc.Find(".pdp-price").First().Text())
		product.Description = strings.TrimSpace(doc.Find(".pdp-product-description-content").Text())
		doc.Find(".image-grid-image").Each(func(_ int, s *goquery.Selection) {
			if src := backgroundImage(s.AttrOr("style", "")); src != "" {
				product.Images = append(product.Images, src)
			}
		})
	}

	if product.Title == "" {
		return nil, ErrNoProduct
	}
	product.Images = dedupe(product.Images)
	return product, nil
}

func metaContent(doc *goquery.Document, property string) string {
	sel := doc.Find(`meta[property="` + property + `"]`)
	if sel.Length() == 0 {
		sel = doc.Find(`meta[name="` + property + `"]`)
	}
	return strings.TrimSpace(sel.First().AttrOr("content", ""))
}

// backgroundImage extracts the URL from a `background-image: url("...")` style.
func backgroundImage(style string) string {
	start := strings.Index(style, "url(")
	if start < 0 {
		return ""
	}
	start += len("url(")
	end := strings.Index(style[start:], ")")
	if end < 0 {
		return ""
	}
	return strings.Trim(style[start:start+end], `"'`)
}

func htmlText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

func priceValue(v any) float64 {
	switch p := v.(type) {
	case float64:
		return p
	case string:
		return parsePrice(p)
	}
	return 0
}

// parsePrice reads prices such as "Rs. 1,299", "₹ 999.00" or "49.5".
func parsePrice(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	// "Rs. 1,299" leaves a leading dot from the currency abbreviation
	f, err := strconv.ParseFloat(strings.Trim(b.String(), "."), 64)
	if err != nil {
		return 0
	}
	return f
}

func normalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "men", "male", "boys", "man":
		return models.GenderMale
	case "women", "female", "girls", "woman":
		return models.GenderFemale
	case "unisex":
		return models.GenderUnisex
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
