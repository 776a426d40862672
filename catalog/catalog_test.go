package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/storage"
	"github.com/raushankrgupta/nima-backend/store"
	"github.com/raushankrgupta/nima-backend/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ldPage = `<html><head><title>Linen Shirt | Shop</title>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"BreadcrumbList","name":"crumbs"},
  {"@type":"Product","name":"Linen Shirt","description":"Relaxed fit",
   "brand":{"@type":"Brand","name":"Acme"},"color":"Blue","category":"shirts",
   "image":["/img/front.jpg","/img/missing.jpg","/img/front.jpg"],
   "offers":{"@type":"Offer","price":"1,299.00","priceCurrency":"INR"}}
]}
</script></head><body><h1>Linen Shirt</h1></body></html>`

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestStructuredDataParser_JSONLD(t *testing.T) {
	p, err := StructuredDataParser{}.Parse(doc(t, ldPage), "https://shop.test/p/1")
	require.NoError(t, err)

	assert.Equal(t, "Linen Shirt", p.Title)
	assert.Equal(t, "Acme", p.Brand)
	assert.Equal(t, 1299.0, p.Price)
	assert.Equal(t, "INR", p.Currency)
	assert.Equal(t, []string{"Blue"}, p.Colors)
	assert.Equal(t, []string{"/img/front.jpg", "/img/missing.jpg"}, p.Images)
}

func TestStructuredDataParser_OpenGraphFallback(t *testing.T) {
	html := `<html><head>
<meta property="og:title" content="Canvas Sneaker">
<meta property="og:image" content="https://cdn.test/a.jpg">
<meta property="product:price:amount" content="49.5">
<meta property="product:price:currency" content="USD">
</head><body></body></html>`

	p, err := StructuredDataParser{}.Parse(doc(t, html), "https://shop.test/p/2")
	require.NoError(t, err)

	assert.Equal(t, "Canvas Sneaker", p.Title)
	assert.Equal(t, 49.5, p.Price)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, []string{"https://cdn.test/a.jpg"}, p.Images)
}

func TestStructuredDataParser_NoProduct(t *testing.T) {
	_, err := StructuredDataParser{}.Parse(doc(t, `<html><body>hello</body></html>`), "https://shop.test")
	assert.ErrorIs(t, err, ErrNoProduct)
}

func TestMyntraParser_State(t *testing.T) {
	html := `<html><body><script>window.__myx = {"pdpData":{"name":"Men Solid T-shirt","mrp":999,"price":499,
"gender":"Men","baseColour":"White","brand":{"name":"H&M"},"analytics":{"articleType":"Tshirts"},
"productDetails":[{"description":"<p>Pure <b>cotton</b></p>"}],
"sizes":[{"label":"S","available":true},{"label":"M","available":false}],
"media":{"albums":[{"images":[{"src":"https://assets.myntra.test/1.jpg"},{"src":""}]}]}}};</script></body></html>`

	parser := MyntraParser{}
	require.True(t, parser.CanParse("https://www.myntra.com/tshirts/hm/123/buy"))
	p, err := parser.Parse(doc(t, html), "https://www.myntra.com/tshirts/hm/123/buy")
	require.NoError(t, err)

	assert.Equal(t, "Men Solid T-shirt", p.Title)
	assert.Equal(t, "H&M", p.Brand)
	assert.Equal(t, 499.0, p.Price)
	assert.Equal(t, models.GenderMale, p.Gender)
	assert.Equal(t, "Tshirts", p.Category)
	assert.Equal(t, "Pure cotton", p.Description)
	assert.Equal(t, []string{"S"}, p.Sizes)
	assert.Equal(t, []string{"https://assets.myntra.test/1.jpg"}, p.Images)
}

func TestMyntraParser_MarkupFallback(t *testing.T) {
	html := `<html><body><h1 class="pdp-title">Roadster</h1><h1 class="pdp-name">Checked Shirt</h1>
<span class="pdp-price">Rs. 1,199</span>
<div class="image-grid-image" style="background-image: url(&quot;https://assets.myntra.test/2.jpg&quot;);"></div>
</body></html>`

	p, err := MyntraParser{}.Parse(doc(t, html), "https://www.myntra.com/x")
	require.NoError(t, err)

	assert.Equal(t, "Checked Shirt", p.Title)
	assert.Equal(t, "Roadster", p.Brand)
	assert.Equal(t, 1199.0, p.Price)
	assert.Equal(t, []string{"https://assets.myntra.test/2.jpg"}, p.Images)
}

func TestAmazonParser(t *testing.T) {
	html := `<html><body>
<span id="productTitle"> Men Regular Fit Oxford Shirt </span>
<a id="bylineInfo">Visit the Allen Solly Store</a>
<span class="a-price priceToPay"><span class="a-offscreen">₹1,049.00</span></span>
<div id="feature-bullets"><ul>
  <li><span class="a-list-item">100% cotton</span></li>
  <li><span class="a-list-item">Machine wash</span></li>
</ul></div>
<div id="wayfinding-breadcrumbs_feature_div"><ul>
  <li>Clothing</li><li>›</li><li>Men</li><li>›</li><li>Casual Shirts</li>
</ul></div>
<div id="variation_color_name"><span class="selection">Sky Blue</span></div>
<div id="altImages"><ul>
  <li class="item"><img src="https://m.media-amazon.test/I/71sbtz8S+aL._AC_US40_.jpg"></li>
</ul></div>
</body></html>`

	parser := AmazonParser{}
	require.True(t, parser.CanParse("https://amzn.in/d/8sCIA5h"))
	d := doc(t, html)
	require.True(t, parser.Validate(d))

	p, err := parser.Parse(d, "https://www.amazon.in/dp/B0TEST0001")
	require.NoError(t, err)
	assert.Equal(t, "Men Regular Fit Oxford Shirt", p.Title)
	assert.Equal(t, "Allen Solly", p.Brand)
	assert.Equal(t, 1049.0, p.Price)
	assert.Equal(t, "100% cotton\nMachine wash", p.Description)
	assert.Equal(t, "Casual Shirts", p.Category)
	assert.Equal(t, models.GenderMale, p.Gender)
	assert.Equal(t, []string{"Sky Blue"}, p.Colors)
	assert.Equal(t, []string{"https://m.media-amazon.test/I/71sbtz8S+aL.jpg"}, p.Images)
}

func TestAmazonParser_LandingImage(t *testing.T) {
	html := `<html><body><span id="productTitle">Sneaker</span>
<img id="landingImage" data-a-dynamic-image='{"https://img.test/small.jpg":[100,100],"https://img.test/big.jpg":[800,800]}'>
<p>Deal of the day ₹2,499</p></body></html>`

	p, err := AmazonParser{}.Parse(doc(t, html), "https://www.amazon.in/dp/B0TEST0002")
	require.NoError(t, err)
	assert.Equal(t, 2499.0, p.Price)
	assert.Equal(t, []string{"https://img.test/big.jpg"}, p.Images)
}

func TestFlipkartParser(t *testing.T) {
	html := `<html><body>
<span class="G6XhRU">VEBNOR</span>
<h1 class="yhB1nd"><span>Solid Men Round Neck T-Shirt</span></h1>
<div class="Nx9bqj CxhGGd">₹299</div>
<div class="yN5-Ad">Soft knit tee</div>
<ul class="_3GnUWp"><li class="_20Gt85"><img src="https://rukminim1.flixcart.test/image/128/128/xif0q/a.jpg"></li></ul>
</body></html>`

	parser := FlipkartParser{}
	require.True(t, parser.CanParse("https://www.flipkart.com/vebnor/p/itm23ecb29dccd75"))
	d := doc(t, html)
	require.True(t, parser.Validate(d))

	p, err := parser.Parse(d, "https://www.flipkart.com/vebnor/p/itm23ecb29dccd75")
	require.NoError(t, err)
	assert.Equal(t, "VEBNOR", p.Brand)
	assert.Equal(t, "Solid Men Round Neck T-Shirt", p.Title)
	assert.Equal(t, 299.0, p.Price)
	assert.Equal(t, "Soft knit tee", p.Description)
	assert.Equal(t, []string{"https://rukminim1.flixcart.test/image/832/832/xif0q/a.jpg"}, p.Images)
}

func TestParsePrice(t *testing.T) {
	assert.Equal(t, 1299.0, parsePrice("Rs. 1,299"))
	assert.Equal(t, 999.0, parsePrice("₹ 999.00"))
	assert.Equal(t, 0.0, parsePrice("free"))
}

func TestIsValidDocument_BlocksCaptcha(t *testing.T) {
	assert.False(t, isValidDocument(doc(t, `<html><head><title>Robot Check</title></head><body><script></script></body></html>`)))
	assert.True(t, isValidDocument(doc(t, ldPage)))
}

func newShop(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/p/linen", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(ldPage))
	})
	mux.HandleFunc("/img/front.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newImporter(s store.Store, files storage.FileStore) *Importer {
	im := NewImporter(s.Items(), files, NewFetcher(false, logging.Discard()), logging.Discard())
	im.resolve = func(_ context.Context, u string) (string, error) { return u, nil }
	return im
}

func TestImporter_ImportCopiesImagesAndUpserts(t *testing.T) {
	ctx := context.Background()
	shop := newShop(t)
	s := memstore.New()
	files := storage.NewMemory("https://cdn.test")
	im := newImporter(s, files)

	item, err := im.Import(ctx, ImportRequest{URL: shop.URL + "/p/linen", Gender: "women"})
	require.NoError(t, err)

	assert.Equal(t, "Linen Shirt", item.Name)
	assert.Equal(t, models.GenderFemale, item.Gender)
	assert.Equal(t, "shirts", item.Category)
	assert.True(t, item.Active)
	require.Len(t, item.ImageKeys, 2)
	assert.True(t, strings.HasPrefix(item.ImageKeys[0], "items/"), "copied image is stored by key")
	assert.Equal(t, shop.URL+"/img/missing.jpg", item.ImageKeys[1], "failed copy keeps the remote url")
	assert.Equal(t, "https://cdn.test/"+item.ImageKeys[0], item.ImageURLs[0])

	data, err := files.Download(ctx, item.ImageKeys[0])
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	again, err := im.Import(ctx, ImportRequest{URL: shop.URL + "/p/linen"})
	require.NoError(t, err)
	assert.Equal(t, item.ID, again.ID)
	assert.Equal(t, models.GenderUnisex, again.Gender)

	n, err := s.Items().Count(ctx, store.ItemFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestImporter_Errors(t *testing.T) {
	shop := newShop(t)
	im := newImporter(memstore.New(), storage.NewMemory(""))

	_, err := im.Import(context.Background(), ImportRequest{URL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = im.Import(context.Background(), ImportRequest{URL: shop.URL + "/blocked"})
	assert.ErrorIs(t, err, ErrBlocked)
}
