package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scolaire/scraper/mediawiki"
	"scolaire/types"
)

type fakeSource struct {
	listings     map[string][][]mediawiki.Member
	extracts     map[string]*mediawiki.Extract
	failListing  map[string]bool
	failExtract  map[string]bool
	listCalls    []string
	extractCalls []string
	callTimes    []time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		listings:    make(map[string][][]mediawiki.Member),
		extracts:    make(map[string]*mediawiki.Extract),
		failListing: make(map[string]bool),
		failExtract: make(map[string]bool),
	}
}

func listingKey(category string, kind mediawiki.MemberType) string {
	return category + "|" + string(kind)
}

// category registers a single-page listing of pages and sub-categories.
func (f *fakeSource) category(name string, pages []string, subcats []string) {
	var pm, sm []mediawiki.Member
	for _, p := range pages {
		pm = append(pm, mediawiki.Member{Namespace: mediawiki.NamespaceMain, Title: p})
	}
	for _, s := range subcats {
		sm = append(sm, mediawiki.Member{Namespace: mediawiki.NamespaceCategory, Title: s})
	}
	f.listings[listingKey(name, mediawiki.MemberPage)] = [][]mediawiki.Member{pm}
	f.listings[listingKey(name, mediawiki.MemberSubcat)] = [][]mediawiki.Member{sm}
}

func (f *fakeSource) ListCategoryMembers(_ context.Context, category string, kind mediawiki.MemberType, cont string) (mediawiki.MembersPage, error) {
	f.callTimes = append(f.callTimes, time.Now())
	f.listCalls = append(f.listCalls, listingKey(category, kind))
	if f.failListing[listingKey(category, kind)] {
		return mediawiki.MembersPage{}, errors.New("connection reset")
	}

	pages := f.listings[listingKey(category, kind)]
	idx := 0
	if cont != "" {
		idx, _ = strconv.Atoi(cont)
	}
	if idx >= len(pages) {
		return mediawiki.MembersPage{}, nil
	}
	out := mediawiki.MembersPage{Members: pages[idx]}
	if idx+1 < len(pages) {
		out.Continue = strconv.Itoa(idx + 1)
	}
	return out, nil
}

func (f *fakeSource) GetPageExtract(_ context.Context, title string) (*mediawiki.Extract, error) {
	f.callTimes = append(f.callTimes, time.Now())
	f.extractCalls = append(f.extractCalls, title)
	if f.failExtract[title] {
		return nil, errors.New("timeout")
	}
	if ext, ok := f.extracts[title]; ok {
		return ext, nil
	}
	return &mediawiki.Extract{PageID: 1, Title: title, Text: longText(title)}, nil
}

func (f *fakeSource) PageURL(title string) string {
	return "https://wiki.test/wiki/" + strings.ReplaceAll(title, " ", "_")
}

func longText(title string) string {
	return title + " : " + strings.Repeat("contenu pédagogique ", 5)
}

func testConfigFor(source types.Source) Config {
	cfg := DefaultConfig(source)
	cfg.Delay = 0
	return cfg
}

func testConfig() Config {
	return testConfigFor(types.SourceVikidia)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func titles(pages []types.RawPage) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Title
	}
	return out
}

func TestCrawl_PagesAndSubcategories(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:A", []string{"Page un", "Page deux"}, []string{"Catégorie:B"})
	src.category("Catégorie:B", []string{"Page trois"}, nil)

	c := New(src, testConfig(), testLogger())
	pages := c.Crawl(context.Background(), "Catégorie:A", types.Mathematiques)

	require.Equal(t, []string{"Page un", "Page deux", "Page trois"}, titles(pages))
	assert.Equal(t, types.RawPage{
		Title:          "Page trois",
		Text:           longText("Page trois"),
		URL:            "https://wiki.test/wiki/Page_trois",
		SourceCategory: "Catégorie:B",
		Subject:        types.Mathematiques,
		Level:          types.LevelCollege,
		Source:         types.SourceVikidia,
	}, pages[2])
	assert.Equal(t, Stats{Categories: 2, OK: 3}, c.Stats())
}

func TestCrawl_VisitedTitlesAreSkipped(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:A", []string{"Commun"}, []string{"Catégorie:B"})
	src.category("Catégorie:B", []string{"Commun", "Autre page"}, nil)

	c := New(src, testConfig(), testLogger())
	pages := c.Crawl(context.Background(), "Catégorie:A", types.SVT)

	assert.Equal(t, []string{"Commun", "Autre page"}, titles(pages))
	assert.Equal(t, []string{"Commun", "Autre page"}, src.extractCalls)
	assert.Equal(t, 1, c.Stats().Skipped)
}

func TestCrawl_CycleStopsAtMaxDepth(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:A", []string{"Page A"}, []string{"Catégorie:B"})
	src.category("Catégorie:B", []string{"Page B"}, []string{"Catégorie:A"})

	cfg := testConfig()
	cfg.MaxDepth = 3
	c := New(src, cfg, testLogger())
	pages := c.Crawl(context.Background(), "Catégorie:A", types.Francais)

	assert.Equal(t, []string{"Page A", "Page B"}, titles(pages))
	// depths 0..3
	assert.Equal(t, 4, c.Stats().Categories)
	assert.Equal(t, 2, c.Stats().Skipped)
}

func TestCrawl_FollowsContinuation(t *testing.T) {
	src := newFakeSource()
	src.listings[listingKey("Catégorie:A", mediawiki.MemberPage)] = [][]mediawiki.Member{
		{{Namespace: 0, Title: "P1"}, {Namespace: 0, Title: "P2"}},
		{{Namespace: 2, Title: "Utilisateur:Bot"}, {Namespace: 0, Title: "P3"}},
		{{Namespace: 0, Title: "P4"}},
	}

	c := New(src, testConfig(), testLogger())
	pages := c.Crawl(context.Background(), "Catégorie:A", types.Technologie)

	assert.Equal(t, []string{"P1", "P2", "P3", "P4"}, titles(pages))
}

func TestCrawl_IgnoredCategoryIsNotListed(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:Mathématiques", []string{"Nombre"}, []string{"Catégorie:Mathématicien"})
	src.category("Catégorie:Mathématicien", []string{"Thalès"}, nil)

	c := New(src, testConfig(), testLogger())
	pages := c.Crawl(context.Background(), "Catégorie:Mathématiques", types.Mathematiques)

	assert.Equal(t, []string{"Nombre"}, titles(pages))
	for _, call := range src.listCalls {
		assert.NotContains(t, call, "Mathématicien")
	}
}

func TestCrawl_ErrorsAndRejectionsAreCounted(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:A", []string{"Bonne", "Cassée", "Absente", "Courte"}, []string{"Catégorie:B", "Catégorie:C"})
	src.category("Catégorie:C", []string{"Fin"}, nil)
	src.failListing[listingKey("Catégorie:B", mediawiki.MemberPage)] = true
	src.failExtract["Cassée"] = true
	src.extracts["Absente"] = &mediawiki.Extract{PageID: -1, Title: "Absente"}
	src.extracts["Courte"] = &mediawiki.Extract{PageID: 5, Title: "Courte", Text: "   trop court   "}

	c := New(src, testConfig(), testLogger())
	pages := c.Crawl(context.Background(), "Catégorie:A", types.Anglais)

	assert.Equal(t, []string{"Bonne", "Fin"}, titles(pages))
	assert.Equal(t, Stats{Categories: 3, OK: 2, Skipped: 2, Errors: 2}, c.Stats())
}

func TestCrawl_RedirectToVisitedPage(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:A", []string{"Pythagore", "Pythago"}, nil)
	src.extracts["Pythago"] = &mediawiki.Extract{PageID: 9, Title: "Pythagore", Text: longText("Pythagore")}

	c := New(src, testConfig(), testLogger())
	pages := c.Crawl(context.Background(), "Catégorie:A", types.Mathematiques)

	assert.Equal(t, []string{"Pythagore"}, titles(pages))
	assert.Equal(t, 1, c.Stats().Skipped)
}

func TestCrawl_RedirectedTitleIsUsed(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:A", []string{"Pythago"}, nil)
	src.extracts["Pythago"] = &mediawiki.Extract{PageID: 9, Title: "Théorème de Pythagore", Text: longText("x")}

	c := New(src, testConfig(), testLogger())
	pages := c.Crawl(context.Background(), "Catégorie:A", types.Mathematiques)

	require.Len(t, pages, 1)
	assert.Equal(t, "Théorème de Pythagore", pages[0].Title)
	assert.Equal(t, "https://wiki.test/wiki/Théorème_de_Pythagore", pages[0].URL)
}

func TestCrawl_PacesRequests(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:A", []string{"P1", "P2", "P3"}, nil)

	cfg := testConfig()
	cfg.Delay = 30 * time.Millisecond
	c := New(src, cfg, testLogger())
	c.Crawl(context.Background(), "Catégorie:A", types.Mathematiques)

	// listing pages, three extracts, listing subcats
	require.Len(t, src.callTimes, 5)
	for i := 1; i < len(src.callTimes); i++ {
		gap := src.callTimes[i].Sub(src.callTimes[i-1])
		assert.GreaterOrEqual(t, gap, 20*time.Millisecond, "call %d came %v after the previous one", i, gap)
	}
}

func TestCrawl_CancelledContext(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:A", []string{"P1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(src, testConfig(), testLogger())
	assert.Empty(t, c.Crawl(ctx, "Catégorie:A", types.Mathematiques))
	assert.Empty(t, src.listCalls)
}

func TestCrawlSubject(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:Histoire", []string{"Révolution française"}, nil)
	src.category("Catégorie:Géographie", []string{"Fleuve"}, nil)

	c := New(src, testConfig(), testLogger())
	pages, err := c.CrawlSubject(context.Background(), types.HistoireGeo)
	require.NoError(t, err)
	assert.Equal(t, []string{"Révolution française", "Fleuve"}, titles(pages))
	assert.Equal(t, "Catégorie:Géographie", pages[1].SourceCategory)

	_, err = c.CrawlSubject(context.Background(), types.Subject("latin"))
	assert.ErrorIs(t, err, ErrUnknownSubject)

	_, err = c.CrawlSubject(context.Background(), types.Autre)
	assert.ErrorIs(t, err, ErrUnknownSubject)
}

func TestCrawlAll(t *testing.T) {
	src := newFakeSource()
	src.category("Catégorie:Espagnol", []string{"Verbe ser"}, nil)

	c := New(src, testConfig(), testLogger())
	all := c.CrawlAll(context.Background())

	assert.Len(t, all, 8)
	assert.Equal(t, []string{"Verbe ser"}, titles(all[types.Espagnol]))
	assert.Empty(t, all[types.Mathematiques])
}

func TestCrawlLevel(t *testing.T) {
	src := newFakeSource()
	src.listings[listingKey("Catégorie:Leçons de niveau 9", mediawiki.MemberPage)] = [][]mediawiki.Member{{
		{Namespace: 0, Title: "Relief terrestre"},
		{Namespace: 14, Title: "Catégorie:Sous-niveau"},
		{Namespace: 0, Title: "Sans faculté"},
	}}
	src.extracts["Relief terrestre"] = &mediawiki.Extract{
		PageID:     3,
		Title:      "Relief terrestre",
		Text:       longText("Relief"),
		Categories: []string{"Catégorie:Leçons de niveau 9", "Catégorie:Leçons de la faculté de géographie"},
	}

	c := New(src, testConfigFor(types.SourceWikiversite), testLogger())
	pages, err := c.CrawlLevel(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, types.RawPage{
		Title:            "Relief terrestre",
		Text:             longText("Relief"),
		URL:              "https://wiki.test/wiki/Relief_terrestre",
		SourceCategory:   "Niveau 9",
		Subject:          types.HistoireGeo,
		Level:            types.Level5eme,
		Source:           types.SourceWikiversite,
		WikiversityLevel: 9,
	}, pages[0])
	assert.Equal(t, types.Autre, pages[1].Subject)
	assert.NotContains(t, src.extractCalls, "Catégorie:Sous-niveau")

	_, err = c.CrawlLevel(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(types.SourceVikidia)
	assert.Equal(t, time.Second, cfg.Delay)
	assert.Equal(t, 3, cfg.MaxDepth)
	assert.Equal(t, 50, cfg.MinExtract)
	assert.Equal(t, 10*time.Second, cfg.ProgressEvery)
	assert.Equal(t, types.SourceVikidia, cfg.Source)
}
