package domain

import "time"

// Settings is the per-domain posting configuration snapshot the core reads.
// The settings store itself lives outside the core.
type Settings struct {
	Enabled bool

	// IntervalHours is the fixed posting cadence. Ignored when
	// CronExpression is set.
	IntervalHours int

	// CronExpression, when non-empty, drives the cadence instead of
	// IntervalHours (standard 5-field cron).
	CronExpression string

	MaxPostsPerDay   int
	ArticleLength    int
	ImagesPerArticle int
	Category         string

	// ManualKeywords and ManualTitles are curated topic lists consumed
	// in order before falling back to the built-in topic tables.
	ManualKeywords []string
	ManualTitles   []string
}

// Defaults mirror the panel's historical behavior.
const (
	DefaultIntervalHours    = 6
	DefaultMaxPostsPerDay   = 4
	DefaultArticleLength    = 1000
	DefaultImagesPerArticle = 3
)

// Normalized returns a copy with zero values replaced by defaults.
func (s Settings) Normalized() Settings {
	if s.IntervalHours <= 0 {
		s.IntervalHours = DefaultIntervalHours
	}
	if s.MaxPostsPerDay <= 0 {
		s.MaxPostsPerDay = DefaultMaxPostsPerDay
	}
	if s.ArticleLength <= 0 {
		s.ArticleLength = DefaultArticleLength
	}
	if s.ImagesPerArticle <= 0 {
		s.ImagesPerArticle = DefaultImagesPerArticle
	}
	if s.Category == "" {
		s.Category = "general"
	}
	return s
}

// ScheduleState is a point-in-time snapshot of one domain's schedule.
type ScheduleState struct {
	Domain        string
	Running       bool
	PostsToday    int
	LastResetDate string // YYYY-MM-DD in the scheduler's clock
	LastRunAt     time.Time
	StartedAt     time.Time
}
