// Package mediawiki is a small client for the MediaWiki query API used by
// Vikidia and Wikiversité.
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	VikidiaAPI      = "https://fr.vikidia.org/w/api.php"
	VikidiaWiki     = "https://fr.vikidia.org/wiki/"
	WikiversityAPI  = "https://fr.wikiversity.org/w/api.php"
	WikiversityWiki = "https://fr.wikiversity.org/wiki/"

	DefaultTimeout = 30 * time.Second
	UserAgent      = "ScolaireRAG/1.0 (educational project; collège course corpus)"

	membersLimit    = 50
	categoriesLimit = 100
)

// Standard MediaWiki namespaces.
const (
	NamespaceMain     = 0
	NamespaceCategory = 14
)

type MemberType string

const (
	MemberPage   MemberType = "page"
	MemberSubcat MemberType = "subcat"
)

var ErrAPI = errors.New("mediawiki api error")

type Member struct {
	PageID    int    `json:"pageid"`
	Namespace int    `json:"ns"`
	Title     string `json:"title"`
}

// MembersPage is one page of a category listing. Continue is empty on the last page.
type MembersPage struct {
	Members  []Member
	Continue string
}

// Extract is the plain-text extract of one page. PageID is negative when the
// page does not exist.
type Extract struct {
	PageID     int
	Title      string
	Text       string
	Categories []string
}

type Client struct {
	apiURL  string
	wikiURL string
	http    *http.Client
}

func NewClient(apiURL, wikiURL string) *Client {
	return &Client{
		apiURL:  apiURL,
		wikiURL: wikiURL,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

func NewVikidia() *Client {
	return NewClient(VikidiaAPI, VikidiaWiki)
}

func NewWikiversity() *Client {
	return NewClient(WikiversityAPI, WikiversityWiki)
}

// PageURL returns the public URL of a page title.
func (c *Client) PageURL(title string) string {
	return c.wikiURL + strings.ReplaceAll(title, " ", "_")
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type membersResponse struct {
	Error    *apiError `json:"error"`
	Continue struct {
		CMContinue string `json:"cmcontinue"`
	} `json:"continue"`
	Query struct {
		CategoryMembers []Member `json:"categorymembers"`
	} `json:"query"`
}

type extractResponse struct {
	Error *apiError `json:"error"`
	Query struct {
		Pages map[string]struct {
			PageID     int    `json:"pageid"`
			Title      string `json:"title"`
			Extract    string `json:"extract"`
			Categories []struct {
				Title string `json:"title"`
			} `json:"categories"`
		} `json:"pages"`
	} `json:"query"`
}

// ListCategoryMembers returns one page of the members of category.
// Pass the Continue token of the previous page to get the next one.
func (c *Client) ListCategoryMembers(ctx context.Context, category string, kind MemberType, cont string) (MembersPage, error) {
	params := url.Values{
		"action":  {"query"},
		"list":    {"categorymembers"},
		"cmtitle": {category},
		"cmtype":  {string(kind)},
		"cmlimit": {strconv.Itoa(membersLimit)},
		"format":  {"json"},
	}
	if cont != "" {
		params.Set("cmcontinue", cont)
	}

	var resp membersResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return MembersPage{}, fmt.Errorf("list members of %q: %w", category, err)
	}
	if resp.Error != nil {
		return MembersPage{}, fmt.Errorf("list members of %q: %w: %s: %s", category, ErrAPI, resp.Error.Code, resp.Error.Info)
	}
	return MembersPage{
		Members:  resp.Query.CategoryMembers,
		Continue: resp.Continue.CMContinue,
	}, nil
}

// GetPageExtract fetches the plain-text extract and the categories of a page,
// following redirects.
func (c *Client) GetPageExtract(ctx context.Context, title string) (*Extract, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts|categories"},
		"explaintext": {"1"},
		"redirects":   {"1"},
		"titles":      {title},
		"cllimit":     {strconv.Itoa(categoriesLimit)},
		"format":      {"json"},
	}

	var resp extractResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("extract %q: %w", title, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("extract %q: %w: %s: %s", title, ErrAPI, resp.Error.Code, resp.Error.Info)
	}

	for key, p := range resp.Query.Pages {
		id, err := strconv.Atoi(key)
		if err != nil {
			id = p.PageID
		}
		ext := &Extract{
			PageID: id,
			Title:  p.Title,
			Text:   p.Extract,
		}
		if ext.Title == "" {
			ext.Title = title
		}
		for _, cat := range p.Categories {
			ext.Categories = append(ext.Categories, cat.Title)
		}
		return ext, nil
	}
	return &Extract{PageID: -1, Title: title}, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
