// Package academie scrapes course pages from the Académie en ligne site.
package academie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"scolaire/scraper/mediawiki"
	"scolaire/scraper/metadata"
	"scolaire/textutil"
	"scolaire/types"
)

const (
	DefaultDelay      = 2 * time.Second
	DefaultMaxCourses = 5
	MinContentChars   = 100
	untitled          = "Sans titre"
)

var ErrUnknownLevel = errors.New("no index page for level")

var levelOrder = []types.Level{types.Level6eme, types.Level5eme, types.Level4eme, types.Level3eme}

var defaultIndexes = map[types.Level]string{
	types.Level6eme: "https://www.academie-en-ligne.fr/Ecole/Cours.aspx?INSTANCEID=103&PORTAL_ID=&NODEID=3489&level=6",
	types.Level5eme: "https://www.academie-en-ligne.fr/College/Cours.aspx?NODEID=3491",
	types.Level4eme: "https://www.academie-en-ligne.fr/College/Cours.aspx?NODEID=3493",
	types.Level3eme: "https://www.academie-en-ligne.fr/College/Cours.aspx?NODEID=3495",
}

var courseKeywords = []string{"cours", "sequence", "chapitre", "lecon"}

// Tried in order; the whole body is used when none matches.
var contentSelectors = []string{"main", ".main-content", ".content", "article", "#content"}

type Config struct {
	Indexes    map[types.Level]string
	MaxCourses int
	Delay      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Indexes:    maps.Clone(defaultIndexes),
		MaxCourses: DefaultMaxCourses,
		Delay:      DefaultDelay,
	}
}

type Scraper struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Scraper{
		cfg:     cfg,
		http:    &http.Client{Timeout: mediawiki.DefaultTimeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Levels returns the configured levels from 6eme to 3eme.
func (s *Scraper) Levels() []types.Level {
	var levels []types.Level
	for _, l := range levelOrder {
		if _, ok := s.cfg.Indexes[l]; ok {
			levels = append(levels, l)
		}
	}
	return levels
}

func (s *Scraper) ScrapeAll(ctx context.Context) map[types.Level][]types.RawPage {
	out := make(map[types.Level][]types.RawPage)
	for _, level := range s.Levels() {
		pages, err := s.ScrapeLevel(ctx, level)
		if err != nil {
			s.logger.Error("[ACADEMIE] level failed", "level", level, "error", err)
			continue
		}
		out[level] = pages
	}
	return out
}

// ScrapeLevel fetches the index page of a level and up to MaxCourses of the
// course pages it links to. Failing course pages are logged and skipped.
func (s *Scraper) ScrapeLevel(ctx context.Context, level types.Level) ([]types.RawPage, error) {
	index, ok := s.cfg.Indexes[level]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLevel, level)
	}
	s.logger.Info("[ACADEMIE] scraping level", "level", level, "url", index)

	doc, err := s.fetch(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", level, err)
	}

	links, err := courseLinks(doc, index)
	if err != nil {
		return nil, err
	}
	s.logger.Info("[ACADEMIE] course links", "level", level, "found", len(links))
	if s.cfg.MaxCourses > 0 && len(links) > s.cfg.MaxCourses {
		links = links[:s.cfg.MaxCourses]
	}

	var pages []types.RawPage
	for i, link := range links {
		s.logger.Info(fmt.Sprintf("[ACADEMIE] [%d/%d]", i+1, len(links)), "url", link)
		page, err := s.scrapeCourse(ctx, link, level)
		if err != nil {
			s.logger.Warn("[ACADEMIE] course failed", "url", link, "error", err)
			continue
		}
		if page == nil {
			continue
		}
		pages = append(pages, *page)
	}
	s.logger.Info("[ACADEMIE] level done", "level", level, "courses", len(pages))
	return pages, nil
}

func (s *Scraper) scrapeCourse(ctx context.Context, link string, level types.Level) (*types.RawPage, error) {
	doc, err := s.fetch(ctx, link)
	if err != nil {
		return nil, err
	}

	content := mainContent(doc)
	if utf8.RuneCountInString(content) <= MinContentChars {
		s.logger.Debug("[ACADEMIE] content too short", "url", link)
		return nil, nil
	}

	title := pageTitle(doc)
	return &types.RawPage{
		Title:          title,
		Text:           content,
		URL:            link,
		SourceCategory: "Cours " + string(level),
		Subject:        metadata.SubjectFromKeywords(title + " " + link),
		Level:          level,
		Source:         types.SourceAcademie,
	}, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", mediawiki.UserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch HTML, status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// courseLinks collects the distinct course links of an index page, made
// absolute against the site root.
func courseLinks(doc *goquery.Document, index string) ([]string, error) {
	base, err := url.Parse(index)
	if err != nil {
		return nil, fmt.Errorf("invalid index url: %w", err)
	}
	root := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !isCourseLink(href, a.Text()) {
			return
		}

		full := href
		if !strings.HasPrefix(href, "http") {
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			full = root.ResolveReference(ref).String()
		}
		if _, ok := seen[full]; ok {
			return
		}
		seen[full] = struct{}{}
		links = append(links, full)
	})
	return links, nil
}

func isCourseLink(href, text string) bool {
	href = textutil.Fold(href)
	text = textutil.Fold(text)
	for _, kw := range courseKeywords {
		if strings.Contains(href, kw) || strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func pageTitle(doc *goquery.Document) string {
	for _, sel := range []string{"title", "h1"} {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return untitled
}

// mainContent returns the text of the first matching content container, one
// text node per line.
func mainContent(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if text := textLines(s); text != "" {
				return text
			}
		}
	}
	return textLines(doc.Find("body").First())
}

func textLines(sel *goquery.Selection) string {
	var lines []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					lines = append(lines, t)
				}
			case "script", "style", "noscript", "#comment":
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	return strings.Join(lines, "\n")
}
