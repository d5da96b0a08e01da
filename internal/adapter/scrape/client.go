// Package scrape retrieves facility detail pages and reduces them to the
// visible text and candidate timetable images the extraction stages work on.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/poolhopper/freeswim-etl/internal/domain"
)

// skipElements are markup subtrees that never contain visible schedule text.
var skipElements = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
	"title":  true,
}

// containerHints mark elements likely to hold the page's main content.
// Images outside such containers (logos, nav chrome, banners) are not worth
// sending to OCR.
var containerHints = []string{"content", "container", "board", "article"}

// Client fetches detail pages over HTTP.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a page fetcher with the given transport timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch retrieves rawURL and returns its visible text plus the image URLs
// found inside content-container elements. Failures are reported as
// *domain.FetchError.
func (c *Client) Fetch(ctx context.Context, rawURL string) (domain.Page, error) {
	pageURL := NormalizeURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.Page{}, &domain.FetchError{URL: pageURL, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Page{}, &domain.FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Page{}, &domain.FetchError{
			URL: pageURL,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return domain.Page{}, &domain.FetchError{URL: pageURL, Err: fmt.Errorf("parse html: %w", err)}
	}

	base, _ := url.Parse(pageURL)
	page := extractPage(doc, base)
	c.logger.Debug("page fetched", "url", pageURL, "text_len", len(page.Text), "images", len(page.ImageURLs))
	return page, nil
}

// NormalizeURL prefixes scheme-less URLs with http:// so catalog entries
// like "pool.example.org/schedule" resolve.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "http://" + rawURL
	}
	return rawURL
}

// extractPage walks the parsed document once, collecting text nodes outside
// skipped subtrees and image sources inside container-like elements.
func extractPage(doc *html.Node, base *url.URL) domain.Page {
	var (
		text   strings.Builder
		images []string
		seen   = map[string]bool{}
	)

	var walk func(n *html.Node, inContainer bool)
	walk = func(n *html.Node, inContainer bool) {
		if n.Type == html.ElementNode {
			if skipElements[n.Data] {
				return
			}
			if !inContainer && isContentContainer(n) {
				inContainer = true
			}
			if n.Data == "img" && inContainer {
				if src := imageSource(n, base); src != "" && !seen[src] {
					seen[src] = true
					images = append(images, src)
				}
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				text.WriteString(t)
				text.WriteByte('\n')
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inContainer)
		}
	}
	walk(doc, false)

	return domain.Page{
		Text:      strings.TrimSpace(text.String()),
		ImageURLs: images,
	}
}

func isContentContainer(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "id" && attr.Key != "class" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, hint := range containerHints {
			if strings.Contains(val, hint) {
				return true
			}
		}
	}
	return false
}

// imageSource resolves an img element's src (or lazy-load data-src) against
// the page URL. Data URIs and unresolvable references are dropped.
func imageSource(n *html.Node, base *url.URL) string {
	var src string
	for _, attr := range n.Attr {
		if attr.Key == "src" || attr.Key == "data-src" {
			src = strings.TrimSpace(attr.Val)
			if attr.Key == "src" && src != "" {
				break
			}
		}
	}
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
