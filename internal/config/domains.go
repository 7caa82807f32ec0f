package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	appdomain "github.com/tontroys3/AutoWebBuilder/internal/domain"
)

// DomainEntry is one domain's posting settings in the YAML domains file.
type DomainEntry struct {
	Domain           string   `yaml:"domain"`
	Enabled          bool     `yaml:"enabled"`
	Category         string   `yaml:"category"`
	IntervalHours    int      `yaml:"intervalHours"`
	CronExpression   string   `yaml:"cronExpression"`
	MaxPostsPerDay   int      `yaml:"maxPostsPerDay"`
	ArticleLength    int      `yaml:"articleLength"`
	ImagesPerArticle int      `yaml:"imagesPerArticle"`
	ManualKeywords   []string `yaml:"manualKeywords"`
	ManualTitles     []string `yaml:"manualTitles"`
}

// DomainsFile is the top-level shape of the YAML domains file.
type DomainsFile struct {
	Domains []DomainEntry `yaml:"domains"`
}

// Settings converts a YAML entry to the runtime settings shape,
// applying the usual defaults for zero fields.
func (e DomainEntry) Settings() appdomain.Settings {
	return appdomain.Settings{
		Enabled:          e.Enabled,
		Category:         e.Category,
		IntervalHours:    e.IntervalHours,
		CronExpression:   e.CronExpression,
		MaxPostsPerDay:   e.MaxPostsPerDay,
		ArticleLength:    e.ArticleLength,
		ImagesPerArticle: e.ImagesPerArticle,
		ManualKeywords:   e.ManualKeywords,
		ManualTitles:     e.ManualTitles,
	}.Normalized()
}

// LoadDomains reads the YAML domains file. Entries without a domain
// name are rejected, as are duplicate names.
func LoadDomains(path string) (map[string]appdomain.Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domains file: %w", err)
	}
	return ParseDomains(raw)
}

// ParseDomains parses YAML domain settings from raw bytes.
func ParseDomains(raw []byte) (map[string]appdomain.Settings, error) {
	var file DomainsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse domains file: %w", err)
	}

	out := make(map[string]appdomain.Settings, len(file.Domains))
	for i, entry := range file.Domains {
		if entry.Domain == "" {
			return nil, fmt.Errorf("domains[%d]: missing domain name", i)
		}
		if _, dup := out[entry.Domain]; dup {
			return nil, fmt.Errorf("domains[%d]: duplicate domain %q", i, entry.Domain)
		}
		out[entry.Domain] = entry.Settings()
	}
	return out, nil
}
