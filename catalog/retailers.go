package catalog

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/raushankrgupta/nima-backend/models"
)

var (
	// thumbnails look like .../I/71sbtz8S+aL._AC_US40_.jpg
	amazonSizeSuffix = regexp.MustCompile(`\._.+_\.`)
	rupeePrice       = regexp.MustCompile(`(₹|Rs\.?)\s?[\d,]+(\.\d{2})?`)
)

// AmazonParser handles amazon.in / amzn.in product pages.
type AmazonParser struct{}

func (AmazonParser) CanParse(url string) bool {
	return strings.Contains(url, "amazon.") || strings.Contains(url, "amzn.")
}

func (AmazonParser) Validate(doc *goquery.Document) bool {
	return strings.TrimSpace(doc.Find("#productTitle").Text()) != ""
}

func (AmazonParser) Parse(doc *goquery.Document, url string) (*models.ScrapedProduct, error) {
	product := &models.ScrapedProduct{
		URL:      url,
		Title:    strings.TrimSpace(doc.Find("#productTitle").Text()),
		Brand:    amazonBrand(doc),
		Currency: "INR",
	}
	if product.Title == "" {
		return nil, ErrNoProduct
	}

	product.Price = parsePrice(firstText(doc,
		".priceToPay .a-offscreen",
		"#corePriceDisplay_desktop_feature_div .a-price.apexPriceToPay .a-offscreen",
		".a-price.a-text-price.a-size-medium.apexPriceToPay .a-offscreen",
		"#priceblock_dealprice",
		"#priceblock_ourprice",
		".a-price .a-offscreen",
		".a-price-whole",
	))
	if product.Price == 0 {
		product.Price = parsePrice(rupeePrice.FindString(doc.Find("body").Text()))
	}

	var bullets []string
	doc.Find("#feature-bullets li span.a-list-item").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			bullets = append(bullets, text)
		}
	})
	if len(bullets) > 0 {
		product.Description = strings.Join(bullets, "\n")
	} else {
		product.Description = strings.TrimSpace(doc.Find("#productDescription").Text())
	}

	var crumbs []string
	doc.Find("#wayfinding-breadcrumbs_feature_div ul li").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" && text != "›" {
			crumbs = append(crumbs, text)
		}
	})
	if len(crumbs) > 0 {
		product.Category = crumbs[len(crumbs)-1]
		product.Gender = genderFromCrumbs(crumbs)
	}

	if size := strings.TrimSpace(doc.Find("#variation_size_name .selection").Text()); size != "" {
		product.Sizes = []string{size}
	}
	if color := strings.TrimSpace(doc.Find("#variation_color_name .selection").Text()); color != "" {
		product.Colors = []string{color}
	}

	doc.Find("#altImages ul li.item img").Each(func(_ int, s *goquery.Selection) {
		if src := s.AttrOr("src", ""); src != "" {
			product.Images = append(product.Images, amazonSizeSuffix.ReplaceAllString(src, "."))
		}
	})
	if len(product.Images) == 0 {
		product.Images = amazonLandingImage(doc)
	}
	product.Images = dedupe(product.Images)
	return product, nil
}

func amazonBrand(doc *goquery.Document) string {
	brand := strings.TrimSpace(doc.Find("#bylineInfo").Text())
	brand = strings.TrimPrefix(brand, "Visit the ")
	brand = strings.TrimSuffix(brand, " Store")
	return strings.TrimPrefix(brand, "Brand: ")
}

// amazonLandingImage reads the main image; data-a-dynamic-image maps URLs
// to their dimensions.
func amazonLandingImage(doc *goquery.Document) []string {
	img := doc.Find("#landingImage")
	if img.Length() == 0 {
		img = doc.Find("#imgBlkFront")
	}
	if raw := img.AttrOr("data-a-dynamic-image", ""); raw != "" {
		var sizes map[string][]int
		if err := json.Unmarshal([]byte(raw), &sizes); err == nil {
			best, bestArea := "", 0
			for src, dim := range sizes {
				area := 0
				if len(dim) == 2 {
					area = dim[0] * dim[1]
				}
				if best == "" || area > bestArea {
					best, bestArea = src, area
				}
			}
			if best != "" {
				return []string{best}
			}
		}
	}
	if src := img.AttrOr("src", ""); src != "" {
		return []string{src}
	}
	return nil
}

func genderFromCrumbs(crumbs []string) string {
	for _, c := range crumbs {
		if g := normalizeGender(c); g != "" {
			return g
		}
	}
	return ""
}

// FlipkartParser handles flipkart.com product pages. Flipkart ships obfuscated
// class names, so each field tries the current and the previous design.
type FlipkartParser struct{}

func (FlipkartParser) CanParse(url string) bool {
	return strings.Contains(url, "flipkart.com")
}

func (FlipkartParser) Validate(doc *goquery.Document) bool {
	return doc.Find("h1").Length() > 0 || doc.Find(".B_NuCI").Length() > 0
}

func (FlipkartParser) Parse(doc *goquery.Document, url string) (*models.ScrapedProduct, error) {
	product := &models.ScrapedProduct{
		URL:      url,
		Title:    firstText(doc, ".B_NuCI", "h1.yhB1nd span", "h1"),
		Brand:    firstText(doc, "span.G6XhRU", "span.mEh187"),
		Currency: "INR",
	}
	if product.Title == "" {
		return nil, ErrNoProduct
	}
	product.Price = parsePrice(firstText(doc, "div._30jeq3._16Jk6d", "div.Nx9bqj.CxhGGd"))
	product.Description = firstText(doc, "div._1mXcCf", "div.yN5-Ad")

	doc.Find("ul._3GnUWp li._20Gt85 img").Each(func(_ int, s *goquery.Selection) {
		if src := s.AttrOr("src", ""); src != "" {
			product.Images = append(product.Images, strings.Replace(src, "/128/128/", "/832/832/", 1))
		}
	})
	if len(product.Images) == 0 {
		if src := doc.Find("img._396cs4").AttrOr("src", ""); src != "" {
			product.Images = []string{src}
		}
	}
	product.Images = dedupe(product.Images)
	return product, nil
}

// firstText returns the trimmed text of the first selector that matches
// something non-empty.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
