// Package imagesearch fetches image candidates from a Bing-compatible
// image search API, with an HTML-scraping fallback for deployments
// without API access. Both paths share one outbound rate limiter.
package imagesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/keypool"
	"github.com/tontroys3/AutoWebBuilder/internal/metrics"
	"github.com/tontroys3/AutoWebBuilder/internal/pipeline"
)

const (
	// apiCountLimit is the search API's per-request maximum.
	apiCountLimit = 150

	defaultEndpoint = "https://api.bing.microsoft.com/v7.0/images/search"
)

// MetricsSink records outbound call outcomes. nil disables metrics.
type MetricsSink interface {
	APICallCompleted(target, statusClass string, duration time.Duration)
}

// Breaker fails calls fast while the endpoint is known-down. nil
// disables the breaker.
type Breaker interface {
	Allow(target string) error
	RecordSuccess(target string)
	RecordFailure(target string)
}

// Client implements pipeline.ImageSearcher against the JSON API. The
// credential comes from the pool on every call; the limiter paces calls
// across all domain schedulers sharing the client.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    MetricsSink
	breaker    Breaker
}

var _ pipeline.ImageSearcher = (*Client)(nil)

func NewClient(endpoint string, ratePerSec float64) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// WithHTTPClient overrides the underlying HTTP client. Tests only.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// WithMetrics attaches a metrics sink.
func (c *Client) WithMetrics(sink MetricsSink) *Client {
	c.metrics = sink
	return c
}

// WithBreaker attaches a circuit breaker.
func (c *Client) WithBreaker(breaker Breaker) *Client {
	c.breaker = breaker
	return c
}

// apiImage mirrors the search API's value items.
type apiImage struct {
	ContentURL     string `json:"contentUrl"`
	ThumbnailURL   string `json:"thumbnailUrl"`
	Name           string `json:"name"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	EncodingFormat string `json:"encodingFormat"`
	HostPageURL    string `json:"hostPageUrl"`
	FamilyFriendly *bool  `json:"isFamilyFriendly"`
}

type apiResponse struct {
	Value []apiImage `json:"value"`
}

// SearchImages queries the API with the given credential. A 429 answer
// is reported as pipeline.ErrThrottled so the caller rotates credentials.
func (c *Client) SearchImages(ctx context.Context, cred keypool.Credential, query string, count int) ([]domain.Image, error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(metrics.TargetImageSearch); err != nil {
			return nil, fmt.Errorf("image search request: %w", err)
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if count > apiCountLimit {
		count = apiCountLimit
	}
	params := url.Values{
		"q":          {query},
		"count":      {strconv.Itoa(count)},
		"safeSearch": {"Moderate"},
		"imageType":  {"Photo"},
		"size":       {"Large"},
		"aspect":     {"Wide"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", cred.Key)
	req.Header.Set("User-Agent", scrapeUserAgents[0])

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.metrics.APICallCompleted(metrics.TargetImageSearch, metrics.ClassifyStatus(statusCode, err), time.Since(start))
	}
	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure(metrics.TargetImageSearch)
		}
		return nil, fmt.Errorf("image search request: %w", err)
	}
	defer resp.Body.Close()

	// A 429 or 4xx means the endpoint is up; only transport and server
	// errors count against the breaker.
	if c.breaker != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			c.breaker.RecordFailure(metrics.TargetImageSearch)
		} else {
			c.breaker.RecordSuccess(metrics.TargetImageSearch)
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("credential rate-limited: %w", pipeline.ErrThrottled)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image search status %d", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	images := make([]domain.Image, 0, len(parsed.Value))
	for _, item := range parsed.Value {
		if !validImageURL(item.ContentURL) {
			continue
		}
		familyFriendly := true
		if item.FamilyFriendly != nil {
			familyFriendly = *item.FamilyFriendly
		}
		images = append(images, domain.Image{
			URL:            item.ContentURL,
			ThumbnailURL:   item.ThumbnailURL,
			Name:           item.Name,
			AltText:        item.Name,
			Width:          item.Width,
			Height:         item.Height,
			Format:         strings.ToLower(item.EncodingFormat),
			HostPageURL:    item.HostPageURL,
			FamilyFriendly: familyFriendly,
			Source:         "api",
		})
	}
	return images, nil
}

// validImageURL filters obviously unusable results: relative URLs and
// content without an image extension or an image-ish path.
func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	for _, hint := range []string{"image", "img", "photo"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
