package imagesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/keypool"
	"github.com/tontroys3/AutoWebBuilder/internal/pipeline"
)

var scrapeUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/92.0.4515.107 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:90.0) Gecko/20100101 Firefox/90.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.1 Safari/605.1.15",
}

// Scraper implements pipeline.ImageSearcher by parsing the public image
// search results page. It needs no credential and serves as the fallback
// when no API keys are configured.
type Scraper struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	randn      func(n int) int
}

var _ pipeline.ImageSearcher = (*Scraper)(nil)

func NewScraper(baseURL string, ratePerSec float64) *Scraper {
	if baseURL == "" {
		baseURL = "https://www.bing.com/images/search"
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Scraper{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
		randn:      rand.Intn,
	}
}

// WithHTTPClient overrides the underlying HTTP client. Tests only.
func (s *Scraper) WithHTTPClient(httpClient *http.Client) *Scraper {
	s.httpClient = httpClient
	return s
}

// SearchImages scrapes the results page. The credential is ignored; the
// limiter alone paces requests to stay under the blocking radar.
func (s *Scraper) SearchImages(ctx context.Context, cred keypool.Credential, query string, count int) ([]domain.Image, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{
		"q":          {query},
		"count":      {strconv.Itoa(count)},
		"safeSearch": {"moderate"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", scrapeUserAgents[s.randn(len(scrapeUserAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("scrape rate-limited: %w", pipeline.ErrThrottled)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	images := parseResultTiles(doc, count)
	if len(images) == 0 {
		images = parseInlineImages(doc, count)
	}
	return images, nil
}

// tileMetadata is the JSON blob each result tile carries in its m attribute.
type tileMetadata struct {
	MediaURL     string `json:"murl"`
	ThumbnailURL string `json:"turl"`
	Title        string `json:"t"`
	PageURL      string `json:"purl"`
	Width        int    `json:"w"`
	Height       int    `json:"h"`
}

func parseResultTiles(doc *goquery.Document, count int) []domain.Image {
	var images []domain.Image
	doc.Find("a.iusc").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, ok := sel.Attr("m")
		if !ok {
			return true
		}
		var meta tileMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return true
		}
		if !validImageURL(meta.MediaURL) {
			return true
		}
		images = append(images, domain.Image{
			URL:            meta.MediaURL,
			ThumbnailURL:   meta.ThumbnailURL,
			Name:           meta.Title,
			AltText:        meta.Title,
			Width:          meta.Width,
			Height:         meta.Height,
			Format:         formatFromURL(meta.MediaURL),
			HostPageURL:    meta.PageURL,
			FamilyFriendly: true,
			Source:         "scrape",
		})
		return len(images) < count
	})
	return images
}

// parseInlineImages is the fallback for markup without result tiles.
func parseInlineImages(doc *goquery.Document, count int) []domain.Image {
	var images []domain.Image
	doc.Find("img.mimg, img.rms_img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			src, _ = sel.Attr("data-src")
		}
		if !validImageURL(src) {
			return true
		}
		alt := sel.AttrOr("alt", "")
		width, _ := strconv.Atoi(sel.AttrOr("width", "0"))
		height, _ := strconv.Atoi(sel.AttrOr("height", "0"))
		images = append(images, domain.Image{
			URL:            src,
			ThumbnailURL:   src,
			Name:           alt,
			AltText:        alt,
			Width:          width,
			Height:         height,
			Format:         formatFromURL(src),
			FamilyFriendly: true,
			Source:         "scrape",
		})
		return len(images) < count
	})
	return images
}

func formatFromURL(raw string) string {
	lower := strings.ToLower(raw)
	for _, ext := range []string{"jpeg", "jpg", "png", "gif", "webp", "bmp"} {
		if strings.Contains(lower, "."+ext) {
			if ext == "jpg" {
				return "jpeg"
			}
			return ext
		}
	}
	return ""
}
