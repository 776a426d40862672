package catalog

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/raushankrgupta/nima-backend/logging"
)

var ErrBlocked = errors.New("page could not be fetched")

// Validator reports whether a fetched page carries the product markup a
// parser needs. Bot walls usually return 200 with an empty shell.
type Validator func(*goquery.Document) bool

// Fetcher loads product pages: plain HTTP first, then a headless browser
// when the plain response fails validation.
type Fetcher struct {
	Client *http.Client
	// Browser enables the chromedp fallback. Off in tests and on hosts
	// without Chrome.
	Browser bool
	// BrowserTimeout bounds a single headless navigation.
	BrowserTimeout time.Duration

	log logging.Logger
}

func NewFetcher(browser bool, log logging.Logger) *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			// several retailers stall HTTP/2 clients that do not look like Chrome
			Transport: &http.Transport{
				ForceAttemptHTTP2:     false,
				TLSNextProto:          make(map[string]func(string, *tls.Conn) http.RoundTripper),
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		Browser:        browser,
		BrowserTimeout: 2 * time.Minute,
		log:            log,
	}
}

// FetchDocument returns the first document that passes both the generic
// block check and validate.
func (f *Fetcher) FetchDocument(ctx context.Context, url string, validate Validator) (*goquery.Document, error) {
	doc, err := f.fetchHTTP(ctx, url)
	if err == nil && isValidDocument(doc) && validate(doc) {
		f.log.Info(ctx, "fetched product page", "url", url, "strategy", "http")
		return doc, nil
	}
	if err != nil {
		f.log.Warn(ctx, "http fetch failed", "url", url, "error", err)
	} else {
		f.log.Warn(ctx, "http fetch returned unusable page", "url", url)
	}

	if !f.Browser {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, url)
	}

	doc, err = f.fetchBrowser(ctx, url)
	if err == nil && isValidDocument(doc) && validate(doc) {
		f.log.Info(ctx, "fetched product page", "url", url, "strategy", "chromedp")
		return doc, nil
	}
	if err != nil {
		f.log.Warn(ctx, "chromedp fetch failed", "url", url, "error", err)
	}
	return nil, fmt.Errorf("%w: %s", ErrBlocked, url)
}

func isValidDocument(doc *goquery.Document) bool {
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").Text()))
	if strings.Contains(title, "robot check") ||
		strings.Contains(title, "captcha") ||
		strings.Contains(title, "access denied") {
		return false
	}
	// product pages either render text or ship their data in a script tag
	return len(strings.TrimSpace(doc.Find("body").Text())) > 200 || doc.Find("script").Length() > 0
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	res, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code error: %d %s", res.StatusCode, res.Status)
	}
	return goquery.NewDocumentFromReader(res.Body)
}

func (f *Fetcher) fetchBrowser(ctx context.Context, url string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.BrowserTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	headers := network.Headers{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Sec-Fetch-Dest":  "document",
		"Sec-Fetch-Mode":  "navigate",
		"Sec-Fetch-Site":  "none",
	}
	if err := chromedp.Run(taskCtx, network.SetExtraHTTPHeaders(headers)); err != nil {
		return nil, fmt.Errorf("chromedp header error: %w", err)
	}

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Duration(2+rand.Float64()*3)*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp navigation error: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
