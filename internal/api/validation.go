package api

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

func validateStart(req StartRequest) error {
	if req.IntervalHours < 0 {
		return fmt.Errorf("interval_hours must not be negative")
	}
	if req.MaxPostsPerDay < 0 {
		return fmt.Errorf("max_posts_per_day must not be negative")
	}
	if req.ArticleLength < 0 {
		return fmt.Errorf("article_length must not be negative")
	}
	if req.ImagesPerArticle < 0 {
		return fmt.Errorf("images_per_article must not be negative")
	}

	if req.CronExpression != "" {
		if err := validateCron(req.CronExpression); err != nil {
			return fmt.Errorf("invalid cron_expression: %w", err)
		}
	}

	return nil
}

func validateCron(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	return err
}

func validateDomainName(name string) error {
	if name == "" {
		return fmt.Errorf("domain name is required")
	}
	if len(name) > 253 {
		return fmt.Errorf("domain name too long")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '.':
		default:
			return fmt.Errorf("domain name contains invalid character %q", r)
		}
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("domain name must not start or end with a dot")
	}
	return nil
}
