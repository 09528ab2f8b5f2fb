package pipeline

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scolaire/scraper/chunker"
	"scolaire/scraper/cleaner"
	"scolaire/types"
)

func newTestPipeline(opts ...chunker.Option) *Pipeline {
	return New(chunker.New(opts...), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCleanThenChunk(t *testing.T) {
	raw := "== Voir aussi ==\nLien\n\nParagraphe un. Paragraphe deux."
	chunks := chunker.New(chunker.WithChunkChars(100000)).Split(cleaner.Clean(raw), "Test")

	require.Len(t, chunks, 1)
	assert.Equal(t, "[Test]\nParagraphe un. Paragraphe deux.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestProcess(t *testing.T) {
	body := "== Définition ==\nUn triangle est un polygone à trois côtés. " +
		"La somme de ses angles vaut cent quatre-vingts degrés.\n\n== Voir aussi ==\n* [[Carré]]"
	pages := []types.RawPage{
		{
			Title:          "Triangle",
			Text:           body,
			URL:            "https://fr.vikidia.org/wiki/Triangle",
			SourceCategory: "Catégorie:Géométrie",
			Subject:        types.Mathematiques,
			Source:         types.SourceVikidia,
		},
		{
			Title:          "Trop court",
			Text:           "{{Ébauche}} Rien.",
			SourceCategory: "Catégorie:Géométrie",
			Source:         types.SourceVikidia,
		},
	}

	records := newTestPipeline().Process(pages)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "[Triangle]\nDéfinition\n\nUn triangle est un polygone à trois côtés. La somme de ses angles vaut cent quatre-vingts degrés.", r.Text)
	assert.Equal(t, types.Metadata{
		Source:     types.SourceVikidia,
		Matiere:    types.Mathematiques,
		Niveau:     types.LevelCollege,
		Titre:      "Triangle",
		URL:        "https://fr.vikidia.org/wiki/Triangle",
		Categorie:  "Catégorie:Géométrie",
		ChunkIndex: 0,
	}, r.Metadata)
}

func TestProcess_SubjectFallsBackToCategory(t *testing.T) {
	page := types.RawPage{
		Title:          "Verbe",
		Text:           strings.Repeat("Le verbe exprime une action. ", 4),
		SourceCategory: "Catégorie:Grammaire",
		Source:         types.SourceVikidia,
	}

	records := newTestPipeline().Process([]types.RawPage{page})
	require.Len(t, records, 1)
	assert.Equal(t, types.Francais, records[0].Metadata.Matiere)
}

func TestProcess_KeepsOrderAndChunkIndex(t *testing.T) {
	para := strings.Repeat("Une phrase de cours assez longue pour remplir. ", 3)
	text := strings.Join([]string{para, para, para, para}, "\n\n")
	pages := []types.RawPage{
		{Title: "Premier", Text: text, Subject: types.SVT, Source: types.SourceVikidia},
		{Title: "Second", Text: text, Subject: types.SVT, Source: types.SourceVikidia},
	}

	records := newTestPipeline(chunker.WithChunkChars(300), chunker.WithOverlapChars(30), chunker.WithMinChars(50)).Process(pages)
	require.Greater(t, len(records), 2)

	var seenSecond bool
	next := 0
	for _, r := range records {
		if r.Metadata.Titre == "Second" && !seenSecond {
			seenSecond = true
			next = 0
		}
		if seenSecond {
			assert.Equal(t, "Second", r.Metadata.Titre, "pages interleaved")
		}
		assert.Equal(t, next, r.Metadata.ChunkIndex)
		next++
	}
	assert.True(t, seenSecond)
}

func TestProcess_WikiversityLevelIsCarried(t *testing.T) {
	page := types.RawPage{
		Title:            "Fractions",
		Text:             strings.Repeat("Une fraction représente un partage. ", 3),
		SourceCategory:   "Niveau 9",
		Subject:          types.Mathematiques,
		Level:            types.Level5eme,
		Source:           types.SourceWikiversite,
		WikiversityLevel: 9,
	}

	records := newTestPipeline().Process([]types.RawPage{page})
	require.Len(t, records, 1)
	assert.Equal(t, types.Level5eme, records[0].Metadata.Niveau)
	assert.Equal(t, 9, records[0].Metadata.NiveauWikiversite)
}

func TestGroupBySubject(t *testing.T) {
	rec := func(text string, s types.Subject) types.ChunkRecord {
		return types.ChunkRecord{Text: text, Metadata: types.Metadata{Matiere: s}}
	}
	grouped := GroupBySubject([]types.ChunkRecord{
		rec("a", types.SVT),
		rec("b", types.Anglais),
		rec("c", types.SVT),
	})

	require.Len(t, grouped, 2)
	assert.Equal(t, []types.ChunkRecord{rec("a", types.SVT), rec("c", types.SVT)}, grouped[types.SVT])
	assert.Equal(t, []types.ChunkRecord{rec("b", types.Anglais)}, grouped[types.Anglais])
}
