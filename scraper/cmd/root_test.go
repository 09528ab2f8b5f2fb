package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scolaire/scraper/corpus"
	"scolaire/scraper/crawler"
	"scolaire/scraper/mediawiki"
	"scolaire/types"
)

var cercleText = strings.Repeat("Un cercle est l'ensemble des points situés à égale distance du centre. ", 4)

func fakeWiki(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var body any
		switch {
		case q.Get("list") == "categorymembers" && q.Get("cmtitle") == "Catégorie:Mathématiques" && q.Get("cmtype") == "page":
			body = map[string]any{"query": map[string]any{"categorymembers": []map[string]any{
				{"pageid": 1, "ns": 0, "title": "Cercle"},
			}}}
		case q.Get("list") == "categorymembers":
			body = map[string]any{"query": map[string]any{"categorymembers": []any{}}}
		case q.Get("titles") == "Cercle":
			body = map[string]any{"query": map[string]any{"pages": map[string]any{
				"1": map[string]any{"pageid": 1, "title": "Cercle", "extract": cercleText},
			}}}
		default:
			body = map[string]any{"query": map[string]any{"pages": map[string]any{"-1": map[string]any{"title": q.Get("titles")}}}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_VikidiaSubject(t *testing.T) {
	srv := fakeWiki(t)
	dir := t.TempDir()

	r := &run{
		opts: options{
			matiere:  string(types.Mathematiques),
			source:   string(types.SourceVikidia),
			out:      filepath.Join(dir, "processed"),
			raw:      filepath.Join(dir, "raw"),
			delay:    time.Millisecond,
			maxDepth: crawler.DefaultMaxDepth,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		wiki: func(types.Source) crawler.PageSource {
			return mediawiki.NewClient(srv.URL+"/w/api.php", srv.URL+"/wiki/")
		},
	}
	require.NoError(t, r.execute(context.Background()))

	raw, err := corpus.LoadRaw(filepath.Join(dir, "raw", "vikidia", "mathematiques.json"))
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "Cercle", raw[0].Title)

	records, err := corpus.NewStore(filepath.Join(dir, "processed"), nil).Load(types.Mathematiques)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, strings.HasPrefix(records[0].Text, "[Cercle]\nUn cercle"))
	assert.Equal(t, types.Metadata{
		Source:    types.SourceVikidia,
		Matiere:   types.Mathematiques,
		Niveau:    types.LevelCollege,
		Titre:     "Cercle",
		URL:       srv.URL + "/wiki/Cercle",
		Categorie: "Catégorie:Mathématiques",
	}, records[0].Metadata)
}

func TestRootCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown source", []string{"--source", "wikipedia"}, errUnknownSource},
		{"unknown subject", []string{"--matiere", "latin"}, crawler.ErrUnknownSubject},
		{"unknown level", []string{"--source", "wikiversite", "--niveau", "42"}, crawler.ErrUnknownLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cmd := newRootCommand()
			cmd.SetArgs(append(tt.args, "--out", filepath.Join(dir, "out"), "--raw", filepath.Join(dir, "raw")))
			cmd.SetErr(io.Discard)
			assert.ErrorIs(t, cmd.Execute(), tt.want)

			_, err := os.Stat(filepath.Join(dir, "out"))
			assert.True(t, os.IsNotExist(err), "nothing written on configuration errors")
		})
	}
}

func TestRootCommand_LevelOnlyForWikiversite(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--niveau", "9"})
	cmd.SetErr(io.Discard)
	assert.ErrorContains(t, cmd.Execute(), "--niveau")
}
