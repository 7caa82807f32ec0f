// Package pipeline orchestrates one end-to-end content-generation unit:
// topic selection, title, keywords, article body, and scored images,
// assembled into an immutable ContentRecord.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/keypool"
	"github.com/tontroys3/AutoWebBuilder/internal/scoring"
)

var (
	// ErrTitleGeneration: a record without a title has no identity.
	ErrTitleGeneration = errors.New("title generation failed")
	// ErrArticleGeneration: no body means no record.
	ErrArticleGeneration = errors.New("article generation failed")
	// ErrThrottled is returned by ImageSearcher implementations when the
	// remote service answered with a throttling response.
	ErrThrottled = errors.New("image search throttled")
)

// TitleGenerator proposes candidate titles for a topic.
type TitleGenerator interface {
	GenerateTitles(ctx context.Context, topic string, count int) ([]string, error)
}

// KeywordGenerator expands a topic into a keyword set.
type KeywordGenerator interface {
	GenerateKeywords(ctx context.Context, topic string, count int) ([]string, error)
}

// Article is the body text produced by the article collaborator.
type Article struct {
	Body            string
	MetaDescription string
}

// ArticleGenerator writes the article body for a title and keyword set.
type ArticleGenerator interface {
	GenerateArticle(ctx context.Context, title string, keywords []string, targetLength int) (Article, error)
}

// ImageSearcher fetches image candidates for a query using an acquired
// credential. Implementations return ErrThrottled (wrapped or not) when
// the remote service rate-limits the call.
type ImageSearcher interface {
	SearchImages(ctx context.Context, cred keypool.Credential, query string, count int) ([]domain.Image, error)
}

type Config struct {
	// CallTimeout bounds each collaborator call so a hung remote cannot
	// stall a domain's loop.
	CallTimeout time.Duration
	// QueriesPerArticle caps the number of image-search queries per record.
	QueriesPerArticle int
}

// Pipeline depends on the generation collaborators, the shared credential
// pool, and the scorer. Safe for concurrent use by many domain loops.
type Pipeline struct {
	config   Config
	titles   TitleGenerator
	keywords KeywordGenerator
	articles ArticleGenerator
	images   ImageSearcher
	pool     *keypool.Pool

	clock func() time.Time
	randn func(n int) int

	// manualCursor tracks per-domain consumption of curated topic lists.
	mu           sync.Mutex
	manualCursor map[string]int
}

func New(config Config, titles TitleGenerator, keywords KeywordGenerator, articles ArticleGenerator, images ImageSearcher, pool *keypool.Pool) *Pipeline {
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	if config.QueriesPerArticle <= 0 {
		config.QueriesPerArticle = 3
	}
	return &Pipeline{
		config:       config,
		titles:       titles,
		keywords:     keywords,
		articles:     articles,
		images:       images,
		pool:         pool,
		clock:        time.Now,
		randn:        rand.Intn,
		manualCursor: make(map[string]int),
	}
}

// WithClock overrides the time source. Tests only.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// WithRand overrides topic-table randomness. Tests only.
func (p *Pipeline) WithRand(randn func(n int) int) *Pipeline {
	p.randn = randn
	return p
}

// Generate produces one ContentRecord for the domain. Title and article
// failures are fatal for the cycle; keyword and image failures degrade.
// The caller owns queueing the returned record.
func (p *Pipeline) Generate(ctx context.Context, domainName, category string, settings domain.Settings) (domain.ContentRecord, error) {
	topic := p.selectTopic(domainName, category, settings)

	titles, err := p.generateTitles(ctx, topic)
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("%w: %v", ErrTitleGeneration, err)
	}
	if len(titles) == 0 {
		return domain.ContentRecord{}, fmt.Errorf("%w: collaborator returned no titles for %q", ErrTitleGeneration, topic)
	}
	title := titles[0]

	keywords := p.generateKeywords(ctx, topic)

	article, err := p.generateArticle(ctx, title, keywords, settings.ArticleLength)
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("%w: %v", ErrArticleGeneration, err)
	}

	images := p.fetchImages(ctx, domainName, topic, keywords, settings.ImagesPerArticle)

	return domain.ContentRecord{
		ID:              uuid.New(),
		Domain:          domainName,
		Category:        category,
		Topic:           topic,
		Title:           title,
		Body:            article.Body,
		MetaDescription: article.MetaDescription,
		Keywords:        keywords,
		Images:          images,
		CreatedAt:       p.clock().UTC(),
	}, nil
}

// selectTopic draws the next unused curated entry when one is configured,
// otherwise picks from the category niche table, falling back to the
// generic trending table.
func (p *Pipeline) selectTopic(domainName, category string, settings domain.Settings) string {
	manual := settings.ManualKeywords
	if len(manual) == 0 {
		manual = settings.ManualTitles
	}
	if len(manual) > 0 {
		p.mu.Lock()
		idx := p.manualCursor[domainName]
		p.manualCursor[domainName] = idx + 1
		p.mu.Unlock()
		if idx < len(manual) {
			return manual[idx]
		}
		// Curated list exhausted; wrap around rather than starve.
		return manual[idx%len(manual)]
	}

	topics := trendingTopics
	if niche, ok := microNiches[strings.ToLower(category)]; ok {
		topics = niche
	}
	return topics[p.randn(len(topics))]
}

func (p *Pipeline) generateTitles(ctx context.Context, topic string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	return p.titles.GenerateTitles(ctx, topic, 5)
}

// generateKeywords degrades to the bare topic on failure: content without
// rich keywords is still usable.
func (p *Pipeline) generateKeywords(ctx context.Context, topic string) []string {
	ctx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()

	keywords, err := p.keywords.GenerateKeywords(ctx, topic, 10)
	if err != nil || len(keywords) == 0 {
		if err != nil {
			log.Printf("pipeline: keyword generation failed for %q, degrading to topic: %v", topic, err)
		}
		return []string{topic}
	}
	return keywords
}

func (p *Pipeline) generateArticle(ctx context.Context, title string, keywords []string, targetLength int) (Article, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()

	top := keywords
	if len(top) > 5 {
		top = top[:5]
	}
	return p.articles.GenerateArticle(ctx, title, top, targetLength)
}

// fetchImages runs several keyword-derived queries through the shared
// credential pool, then dedups, ranks by the topic, and takes the top N.
// Every failure here is non-fatal: an empty image list is acceptable.
func (p *Pipeline) fetchImages(ctx context.Context, domainName, topic string, keywords []string, count int) []domain.Image {
	if p.images == nil || count <= 0 {
		return nil
	}

	var merged []domain.Image
	for _, query := range p.buildQueries(topic, keywords) {
		cred, err := p.pool.Acquire()
		if err != nil {
			log.Printf("pipeline: domain=%s image search skipped: %v", domainName, err)
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
		results, err := p.images.SearchImages(callCtx, cred, query, count)
		cancel()

		if err != nil {
			if errors.Is(err, ErrThrottled) {
				p.pool.RotateOnThrottle()
			}
			log.Printf("pipeline: domain=%s image query %q failed: %v", domainName, query, err)
			continue
		}

		p.pool.Record(cred)
		merged = append(merged, results...)
	}

	ranked := scoring.Rank(scoring.Dedup(merged), topic)
	if len(ranked) > count {
		ranked = ranked[:count]
	}
	return ranked
}

// buildQueries derives up to QueriesPerArticle search queries from the
// topic and its keywords, topped up with trending modifiers.
func (p *Pipeline) buildQueries(topic string, keywords []string) []string {
	queries := []string{topic}
	seen := map[string]struct{}{topic: {}}

	for _, kw := range keywords {
		if len(queries) >= p.config.QueriesPerArticle {
			return queries
		}
		kw = strings.TrimSpace(kw)
		if kw == "" || strings.EqualFold(kw, topic) {
			continue
		}
		q := topic + " " + kw
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}

	for _, mod := range trendingModifiers {
		if len(queries) >= p.config.QueriesPerArticle {
			break
		}
		q := topic + " " + mod
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}
