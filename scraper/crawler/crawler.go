// Package crawler walks MediaWiki category trees and collects page extracts.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"scolaire/scraper/mediawiki"
	"scolaire/scraper/metadata"
	"scolaire/types"
)

const (
	DefaultDelay         = time.Second
	DefaultMaxDepth      = 3
	DefaultMinExtract    = 50
	DefaultProgressEvery = 10 * time.Second
)

var (
	ErrUnknownSubject = errors.New("unknown subject")
	ErrUnknownLevel   = errors.New("unknown wikiversity level")
)

// PageSource is the upstream wiki. *mediawiki.Client implements it.
type PageSource interface {
	ListCategoryMembers(ctx context.Context, category string, kind mediawiki.MemberType, cont string) (mediawiki.MembersPage, error)
	GetPageExtract(ctx context.Context, title string) (*mediawiki.Extract, error)
	PageURL(title string) string
}

type Config struct {
	Source        types.Source
	Delay         time.Duration
	MaxDepth      int
	MinExtract    int
	ProgressEvery time.Duration
}

func DefaultConfig(source types.Source) Config {
	return Config{
		Source:        source,
		Delay:         DefaultDelay,
		MaxDepth:      DefaultMaxDepth,
		MinExtract:    DefaultMinExtract,
		ProgressEvery: DefaultProgressEvery,
	}
}

type Stats struct {
	Categories int
	OK         int
	Skipped    int
	Errors     int
}

// Crawler is single-use per run: its visited set is never reset.
type Crawler struct {
	source       PageSource
	cfg          Config
	limiter      *rate.Limiter
	logger       *slog.Logger
	visited      map[string]struct{}
	stats        Stats
	started      time.Time
	lastProgress time.Time
}

func New(source PageSource, cfg Config, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	now := time.Now()
	return &Crawler{
		source:       source,
		cfg:          cfg,
		limiter:      rate.NewLimiter(limit, 1),
		logger:       logger,
		visited:      make(map[string]struct{}),
		started:      now,
		lastProgress: now,
	}
}

func (c *Crawler) Stats() Stats {
	return c.stats
}

// Crawl collects every page reachable from root through sub-categories, up to
// the configured depth.
func (c *Crawler) Crawl(ctx context.Context, root string, subject types.Subject) []types.RawPage {
	c.logger.Info("[CRAWL] root category", "category", root, "subject", subject)
	return c.crawlCategory(ctx, root, subject, 0)
}

// CrawlSubject crawls all root categories of a subject.
func (c *Crawler) CrawlSubject(ctx context.Context, subject types.Subject) ([]types.RawPage, error) {
	roots := metadata.RootCategories(subject)
	if roots == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}

	var pages []types.RawPage
	for _, root := range roots {
		if ctx.Err() != nil {
			break
		}
		pages = append(pages, c.Crawl(ctx, root, subject)...)
	}
	c.progress(true)
	c.logger.Info("[CRAWL] subject done", "subject", subject, "pages", len(pages))
	return pages, nil
}

func (c *Crawler) CrawlAll(ctx context.Context) map[types.Subject][]types.RawPage {
	out := make(map[types.Subject][]types.RawPage)
	for _, subject := range metadata.Subjects() {
		if ctx.Err() != nil {
			break
		}
		pages, err := c.CrawlSubject(ctx, subject)
		if err != nil {
			c.logger.Error("[CRAWL] subject failed", "subject", subject, "error", err)
			continue
		}
		out[subject] = pages
	}
	return out
}

// CrawlLevel collects the lessons of one Wikiversité level. The subject of
// each lesson is detected from its categories.
func (c *Crawler) CrawlLevel(ctx context.Context, n int) ([]types.RawPage, error) {
	level, ok := metadata.WikiversityLevel(n)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, n)
	}
	category := fmt.Sprintf("Catégorie:Leçons de niveau %d", n)
	label := fmt.Sprintf("Niveau %d", n)

	c.stats.Categories++
	c.logger.Info("[CRAWL] wikiversity level", "category", category, "level", level)

	var pages []types.RawPage
	for _, title := range c.listMembers(ctx, category, mediawiki.MemberPage, mediawiki.NamespaceMain) {
		if c.seen(title) {
			c.stats.Skipped++
			continue
		}
		ext, ok := c.fetch(ctx, title)
		if !ok {
			continue
		}
		pages = append(pages, types.RawPage{
			Title:            ext.Title,
			Text:             ext.Text,
			URL:              c.source.PageURL(ext.Title),
			SourceCategory:   label,
			Subject:          metadata.SubjectFromFaculties(ext.Categories),
			Level:            level,
			Source:           c.cfg.Source,
			WikiversityLevel: n,
		})
		c.progress(false)
	}
	c.progress(true)
	return pages, nil
}

func (c *Crawler) crawlCategory(ctx context.Context, category string, subject types.Subject, depth int) []types.RawPage {
	if depth > c.cfg.MaxDepth || ctx.Err() != nil {
		return nil
	}
	if metadata.IsIgnored(category) {
		c.logger.Debug("[CRAWL] ignored category", "category", category)
		return nil
	}

	c.stats.Categories++
	c.logger.Info(fmt.Sprintf("[CAT %d]%s %s", c.stats.Categories, strings.Repeat("  ", depth), category), "depth", depth)

	var pages []types.RawPage
	for _, title := range c.listMembers(ctx, category, mediawiki.MemberPage, mediawiki.NamespaceMain, mediawiki.NamespaceCategory) {
		if c.seen(title) {
			c.stats.Skipped++
			continue
		}
		ext, ok := c.fetch(ctx, title)
		if !ok {
			continue
		}
		pages = append(pages, types.RawPage{
			Title:          ext.Title,
			Text:           ext.Text,
			URL:            c.source.PageURL(ext.Title),
			SourceCategory: category,
			Subject:        subject,
			Level:          types.LevelCollege,
			Source:         c.cfg.Source,
		})
		c.progress(false)
	}

	for _, sub := range c.listMembers(ctx, category, mediawiki.MemberSubcat, mediawiki.NamespaceMain, mediawiki.NamespaceCategory) {
		pages = append(pages, c.crawlCategory(ctx, sub, subject, depth+1)...)
	}
	return pages
}

// listMembers follows continuation tokens until the listing is exhausted.
// On error the members gathered so far are returned.
func (c *Crawler) listMembers(ctx context.Context, category string, kind mediawiki.MemberType, namespaces ...int) []string {
	var (
		titles []string
		cont   string
	)
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return titles
		}
		page, err := c.source.ListCategoryMembers(ctx, category, kind, cont)
		if err != nil {
			c.stats.Errors++
			c.logger.Error("[CRAWL] listing failed", "category", category, "type", kind, "error", err)
			return titles
		}
		for _, m := range page.Members {
			if slices.Contains(namespaces, m.Namespace) {
				titles = append(titles, m.Title)
			}
		}
		if page.Continue == "" || page.Continue == cont {
			return titles
		}
		cont = page.Continue
	}
}

// fetch extracts one page and marks its resolved title as visited. It reports
// false when the page is missing, too short, a duplicate or failed.
func (c *Crawler) fetch(ctx context.Context, title string) (*mediawiki.Extract, bool) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false
	}
	ext, err := c.source.GetPageExtract(ctx, title)
	if err != nil {
		c.stats.Errors++
		c.logger.Error("[CRAWL] extract failed", "title", title, "error", err)
		return nil, false
	}
	if ext == nil || ext.PageID <= 0 {
		c.stats.Skipped++
		c.logger.Debug("[CRAWL] missing page", "title", title)
		return nil, false
	}
	if len([]rune(strings.TrimSpace(ext.Text))) < c.cfg.MinExtract {
		c.stats.Skipped++
		c.logger.Debug("[CRAWL] extract too short", "title", title)
		return nil, false
	}
	if ext.Title == "" {
		ext.Title = title
	}
	if ext.Title != title && c.seen(ext.Title) {
		c.stats.Skipped++
		c.logger.Debug("[CRAWL] redirect to visited page", "title", title, "target", ext.Title)
		return nil, false
	}
	c.stats.OK++
	return ext, true
}

// seen reports whether title was already visited and marks it otherwise.
func (c *Crawler) seen(title string) bool {
	if _, ok := c.visited[title]; ok {
		return true
	}
	c.visited[title] = struct{}{}
	return false
}

func (c *Crawler) progress(force bool) {
	if !force && time.Since(c.lastProgress) < c.cfg.ProgressEvery {
		return
	}
	c.lastProgress = time.Now()
	c.logger.Info("[PROGRESS]",
		"ok", c.stats.OK,
		"skipped", c.stats.Skipped,
		"errors", c.stats.Errors,
		"categories", c.stats.Categories,
		"elapsed", time.Since(c.started).Round(time.Second),
	)
}
