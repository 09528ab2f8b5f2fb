package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scolaire/scraper/academie"
	"scolaire/scraper/chunker"
	"scolaire/scraper/corpus"
	"scolaire/scraper/crawler"
	"scolaire/scraper/mediawiki"
	"scolaire/scraper/metadata"
	"scolaire/scraper/pipeline"
	"scolaire/types"
)

const allSubjects = "all"

var errUnknownSource = errors.New("unknown source")

type options struct {
	matiere    string
	source     string
	niveau     int
	out        string
	raw        string
	delay      time.Duration
	maxDepth   int
	maxCourses int
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := options{}

	rootCmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Build the collège course corpus from Vikidia, Wikiversité and Académie en ligne",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(opts.verbose)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &run{opts: opts, logger: logger, wiki: defaultWiki}
			return r.execute(ctx)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.matiere, "matiere", allSubjects, "Subject to crawl, or \"all\"")
	flags.StringVar(&opts.source, "source", string(types.SourceVikidia), "vikidia, wikiversite or academie_en_ligne")
	flags.IntVar(&opts.niveau, "niveau", 0, "Wikiversité lesson level (7 to 13), all levels when unset")
	flags.StringVar(&opts.out, "out", "data/processed", "Processed corpus directory")
	flags.StringVar(&opts.raw, "raw", "data/raw", "Raw snapshot directory")
	flags.DurationVar(&opts.delay, "delay", 0, "Delay between upstream requests (source default when unset)")
	flags.IntVar(&opts.maxDepth, "max-depth", crawler.DefaultMaxDepth, "Maximum category depth")
	flags.IntVar(&opts.maxCourses, "max-courses", academie.DefaultMaxCourses, "Courses fetched per Académie en ligne level")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")

	return rootCmd
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func defaultWiki(source types.Source) crawler.PageSource {
	if source == types.SourceWikiversite {
		return mediawiki.NewWikiversity()
	}
	return mediawiki.NewVikidia()
}

// snapshot is one raw dump written before processing.
type snapshot struct {
	name  string
	pages []types.RawPage
}

type run struct {
	opts     options
	logger   *slog.Logger
	wiki     func(types.Source) crawler.PageSource
	academie *academie.Config
}

func (r *run) execute(ctx context.Context) error {
	subject, err := r.subject()
	if err != nil {
		return err
	}

	var snaps []snapshot
	switch types.Source(r.opts.source) {
	case types.SourceVikidia:
		if r.opts.niveau != 0 {
			return errors.New("--niveau only applies to wikiversite")
		}
		snaps, err = r.crawlSubjects(ctx, types.SourceVikidia, subject)
	case types.SourceWikiversite:
		snaps, err = r.crawlLevels(ctx)
	case types.SourceAcademie:
		snaps = r.scrapeAcademie(ctx)
	default:
		return fmt.Errorf("%w: %q", errUnknownSource, r.opts.source)
	}
	if err != nil {
		return err
	}

	var pages []types.RawPage
	rawDir := filepath.Join(r.opts.raw, r.opts.source)
	for _, s := range snaps {
		path, err := corpus.SaveRaw(rawDir, s.name, s.pages)
		if err != nil {
			return err
		}
		r.logger.Info("[RAW] snapshot saved", "path", path, "pages", len(s.pages))
		pages = append(pages, s.pages...)
	}

	grouped := pipeline.GroupBySubject(pipeline.New(chunker.New(), r.logger).Process(pages))
	if subject != "" {
		// lessons found by level or keyword may belong to other subjects
		for s := range grouped {
			if s != subject {
				delete(grouped, s)
			}
		}
	}

	if err := corpus.NewStore(r.opts.out, r.logger).SaveAll(grouped); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.logger.Info("[SCRAPER] done", "source", r.opts.source, "pages", len(pages), "subjects", len(grouped))
	return nil
}

// subject returns the requested subject, "" meaning all of them.
func (r *run) subject() (types.Subject, error) {
	if r.opts.matiere == "" || r.opts.matiere == allSubjects {
		return "", nil
	}
	s := types.Subject(r.opts.matiere)
	if metadata.RootCategories(s) == nil {
		return "", fmt.Errorf("%w: %q (expected one of %v)", crawler.ErrUnknownSubject, s, metadata.Subjects())
	}
	return s, nil
}

func (r *run) crawlerConfig(source types.Source) crawler.Config {
	cfg := crawler.DefaultConfig(source)
	if r.opts.delay > 0 {
		cfg.Delay = r.opts.delay
	}
	cfg.MaxDepth = r.opts.maxDepth
	return cfg
}

func (r *run) crawlSubjects(ctx context.Context, source types.Source, subject types.Subject) ([]snapshot, error) {
	c := crawler.New(r.wiki(source), r.crawlerConfig(source), r.logger)
	defer func() { r.logStats(c.Stats()) }()

	if subject != "" {
		pages, err := c.CrawlSubject(ctx, subject)
		if err != nil {
			return nil, err
		}
		return []snapshot{{string(subject), pages}}, nil
	}

	all := c.CrawlAll(ctx)
	var snaps []snapshot
	for _, s := range metadata.Subjects() {
		if pages, ok := all[s]; ok {
			snaps = append(snaps, snapshot{string(s), pages})
		}
	}
	return snaps, nil
}

func (r *run) crawlLevels(ctx context.Context) ([]snapshot, error) {
	levels := metadata.WikiversityLevels()
	if r.opts.niveau != 0 {
		levels = []int{r.opts.niveau}
	}

	c := crawler.New(r.wiki(types.SourceWikiversite), r.crawlerConfig(types.SourceWikiversite), r.logger)
	defer func() { r.logStats(c.Stats()) }()

	var snaps []snapshot
	for _, n := range levels {
		if ctx.Err() != nil {
			break
		}
		pages, err := c.CrawlLevel(ctx, n)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snapshot{"niveau_" + strconv.Itoa(n), pages})
	}
	return snaps, nil
}

func (r *run) scrapeAcademie(ctx context.Context) []snapshot {
	cfg := academie.DefaultConfig()
	if r.academie != nil {
		cfg = *r.academie
	}
	if r.opts.delay > 0 {
		cfg.Delay = r.opts.delay
	}
	cfg.MaxCourses = r.opts.maxCourses

	s := academie.New(cfg, r.logger)
	all := s.ScrapeAll(ctx)
	var snaps []snapshot
	for _, level := range s.Levels() {
		if pages, ok := all[level]; ok {
			snaps = append(snaps, snapshot{string(level), pages})
		}
	}
	return snaps
}

func (r *run) logStats(st crawler.Stats) {
	r.logger.Info("[CRAWL] stats",
		"categories", st.Categories,
		"ok", st.OK,
		"skipped", st.Skipped,
		"errors", st.Errors,
	)
}
