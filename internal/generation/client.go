// Package generation implements the pipeline's title, keyword, and
// article collaborators on top of an OpenAI-compatible chat API.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tontroys3/AutoWebBuilder/internal/metrics"
	"github.com/tontroys3/AutoWebBuilder/internal/pipeline"
)

const systemPrompt = "You are a content writer for a web publishing platform. " +
	"Answer with only the requested content, no commentary."

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

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	metrics    MetricsSink
	breaker    Breaker
}

var (
	_ pipeline.TitleGenerator   = (*Client)(nil)
	_ pipeline.KeywordGenerator = (*Client)(nil)
	_ pipeline.ArticleGenerator = (*Client)(nil)
)

func NewClient(endpoint, model, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
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

// GenerateTitles asks for candidate titles, one per line.
func (c *Client) GenerateTitles(ctx context.Context, topic string, count int) ([]string, error) {
	prompt := fmt.Sprintf(
		"Write %d distinct, engaging blog post titles about %q. One title per line, no numbering.",
		count, topic)

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate titles: %w", err)
	}
	titles := parseLines(raw, count)
	if len(titles) == 0 {
		return nil, fmt.Errorf("generate titles: empty completion")
	}
	return titles, nil
}

// GenerateKeywords asks for a comma-separated keyword set.
func (c *Client) GenerateKeywords(ctx context.Context, topic string, count int) ([]string, error) {
	prompt := fmt.Sprintf(
		"List %d SEO keywords for an article about %q, comma-separated, lowercase.",
		count, topic)

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate keywords: %w", err)
	}
	keywords := splitKeywords(raw, count)
	if len(keywords) == 0 {
		return nil, fmt.Errorf("generate keywords: empty completion")
	}
	return keywords, nil
}

// GenerateArticle asks for the article body. The meta description is the
// lead paragraph truncated to a search-snippet length.
func (c *Client) GenerateArticle(ctx context.Context, title string, keywords []string, targetLength int) (pipeline.Article, error) {
	prompt := fmt.Sprintf(
		"Write a blog article titled %q of roughly %d words. Work in these keywords naturally: %s. "+
			"Plain paragraphs separated by blank lines, no markdown headers.",
		title, targetLength, strings.Join(keywords, ", "))

	raw, err := c.chat(ctx, prompt)
	if err != nil {
		return pipeline.Article{}, fmt.Errorf("generate article: %w", err)
	}
	body := strings.TrimSpace(raw)
	if body == "" {
		return pipeline.Article{}, fmt.Errorf("generate article: empty completion")
	}
	return pipeline.Article{
		Body:            body,
		MetaDescription: metaDescription(body),
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// chat posts one user message and returns the first choice's content.
func (c *Client) chat(ctx context.Context, prompt string) (content string, err error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("generator endpoint not configured")
	}
	if c.breaker != nil {
		if err := c.breaker.Allow(metrics.TargetGenerator); err != nil {
			return "", fmt.Errorf("chat request: %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.metrics.APICallCompleted(metrics.TargetGenerator, metrics.ClassifyStatus(statusCode, err), time.Since(start))
	}
	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure(metrics.TargetGenerator)
		}
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	// Only transport errors and server errors count against the
	// breaker; a 4xx means the endpoint is up.
	if c.breaker != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			c.breaker.RecordFailure(metrics.TargetGenerator)
		} else {
			c.breaker.RecordSuccess(metrics.TargetGenerator)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseLines splits a completion into at most max non-empty lines,
// stripping the numbering and quoting models add despite instructions.
func parseLines(raw string, max int) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.-*) ")
		line = strings.Trim(line, `"'`)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}

// splitKeywords handles both comma-separated and line-separated answers.
func splitKeywords(raw string, max int) []string {
	raw = strings.ReplaceAll(raw, "\n", ",")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		kw = strings.TrimLeft(kw, "0123456789.-*) ")
		kw = strings.Trim(kw, `"'`)
		if kw == "" {
			continue
		}
		out = append(out, kw)
		if len(out) == max {
			break
		}
	}
	return out
}

const metaDescriptionLimit = 155

// metaDescription truncates the lead paragraph at a word boundary.
func metaDescription(body string) string {
	lead := body
	if idx := strings.Index(body, "\n"); idx >= 0 {
		lead = body[:idx]
	}
	lead = strings.TrimSpace(lead)
	if len(lead) <= metaDescriptionLimit {
		return lead
	}
	cut := lead[:metaDescriptionLimit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
