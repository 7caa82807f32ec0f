package api

import (
	"time"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/registry"
)

// StartRequest carries optional per-domain settings. Zero values fall
// back to the panel defaults.
type StartRequest struct {
	IntervalHours    int      `json:"interval_hours,omitempty"`
	CronExpression   string   `json:"cron_expression,omitempty"`
	MaxPostsPerDay   int      `json:"max_posts_per_day,omitempty"`
	ArticleLength    int      `json:"article_length,omitempty"`
	ImagesPerArticle int      `json:"images_per_article,omitempty"`
	Category         string   `json:"category,omitempty"`
	ManualKeywords   []string `json:"manual_keywords,omitempty"`
	ManualTitles     []string `json:"manual_titles,omitempty"`
}

type StatusResponse struct {
	Domain      string `json:"domain"`
	Active      bool   `json:"active"`
	QueueLength int    `json:"queue_length"`
	PostsToday  int    `json:"posts_today"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
}

type RecordResponse struct {
	ID              string   `json:"id"`
	Topic           string   `json:"topic"`
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	Keywords        []string `json:"keywords"`
	ImageCount      int      `json:"image_count"`
	CreatedAt       string   `json:"created_at"`
}

type QueueResponse struct {
	Domain  string           `json:"domain"`
	Total   int              `json:"total"`
	Records []RecordResponse `json:"records"`
}

type DomainsResponse struct {
	Domains []StatusResponse `json:"domains"`
}

type ArchiveResponse struct {
	Domain  string           `json:"domain"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	Records []RecordResponse `json:"records"`
}

// RecordDetailResponse is the full single-record view, body included.
type RecordDetailResponse struct {
	RecordResponse
	Domain   string          `json:"domain"`
	Category string          `json:"category"`
	Body     string          `json:"body"`
	Images   []ImageResponse `json:"images"`
}

type ImageResponse struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	AltText      string `json:"alt_text,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Source       string `json:"source,omitempty"`
}

type AnalyticsResponse struct {
	Domain  string `json:"domain"`
	Day     string `json:"day"`
	Success int64  `json:"success"`
	Failure int64  `json:"failure"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func statusResponse(st registry.Status) StatusResponse {
	resp := StatusResponse{
		Domain:      st.Domain,
		Active:      st.Active,
		QueueLength: st.QueueLength,
		PostsToday:  st.PostsToday,
	}
	if !st.LastRunAt.IsZero() {
		resp.LastRunAt = formatTime(st.LastRunAt)
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = formatTime(st.StartedAt)
	}
	return resp
}

func recordResponse(rec domain.ContentRecord) RecordResponse {
	return RecordResponse{
		ID:              rec.ID.String(),
		Topic:           rec.Topic,
		Title:           rec.Title,
		MetaDescription: rec.MetaDescription,
		Keywords:        rec.Keywords,
		ImageCount:      len(rec.Images),
		CreatedAt:       formatTime(rec.CreatedAt),
	}
}

func recordDetailResponse(rec domain.ContentRecord) RecordDetailResponse {
	resp := RecordDetailResponse{
		RecordResponse: recordResponse(rec),
		Domain:         rec.Domain,
		Category:       rec.Category,
		Body:           rec.Body,
		Images:         make([]ImageResponse, 0, len(rec.Images)),
	}
	for _, img := range rec.Images {
		resp.Images = append(resp.Images, ImageResponse{
			URL:          img.URL,
			ThumbnailURL: img.ThumbnailURL,
			AltText:      img.AltText,
			Width:        img.Width,
			Height:       img.Height,
			Source:       img.Source,
		})
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
