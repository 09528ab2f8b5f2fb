// Package cleaner turns raw MediaWiki extracts into plain instructional text.
package cleaner

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var excludedSections = []string{
	"Voir aussi",
	"Liens externes",
	"Lien externe",
	"Références",
	"Notes et références",
	"Notes",
	"Bibliographie",
	"Sources",
	"Liens internes",
	"Articles connexes",
}

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Structural commands go before the catch-all so their arguments are removed with them.
var latexRules = []rule{
	{regexp.MustCompile(`\{\\displaystyle[^}]*\}`), " "},
	{regexp.MustCompile(`\{\\scriptstyle[^}]*\}`), " "},
	{regexp.MustCompile(`\{\\textstyle[^}]*\}`), " "},
	{regexp.MustCompile(`\\displaystyle\s*`), " "},
	{regexp.MustCompile(`\\scriptstyle\s*`), " "},
	{regexp.MustCompile(`\\textstyle\s*`), " "},
	{regexp.MustCompile(`\\frac\{[^}]*\}\{[^}]*\}`), " "},
	{regexp.MustCompile(`\\(?:left|right)[(\[{)\]}]`), " "},
	{regexp.MustCompile(`\\(?:times|cdot|pm|mp|leq|geq|neq|approx|equiv|sim)\b`), " "},
	{regexp.MustCompile(`\\(?:alpha|beta|gamma|delta|epsilon|theta|lambda|mu|pi|sigma|omega|phi|psi)\b`), " "},
	{regexp.MustCompile(`\\(?:sum|prod|int|lim|inf|sup|max|min|log|ln|sin|cos|tan)\b`), " "},
	{regexp.MustCompile(`\\(?:mathbb|mathrm|mathbf|mathcal|mathit)\{[^}]*\}`), " "},
	{regexp.MustCompile(`\\(?:text|mbox)\{[^}]*\}`), " "},
	{regexp.MustCompile(`\\(?:overline|underline|hat|tilde|vec|bar)\{[^}]*\}`), " "},
	{latexCommand, " "},
}

var (
	latexCommand = regexp.MustCompile(`\\[a-zA-Z]+`)
	emptyBraces  = regexp.MustCompile(`\{[\s,]*\}`)

	headingLine  = regexp.MustCompile(`^(={2,})[ \t]*(.+?)[ \t]*={2,}[ \t]*$`)
	heading      = regexp.MustCompile(`={2,}[ \t]*(.+?)[ \t]*={2,}`)
	htmlTag      = regexp.MustCompile(`<[^>]+>`)
	template     = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	orphanBraces = regexp.MustCompile(`\{\{|\}\}`)
	internalLink = regexp.MustCompile(`\[\[(?:[^|\]]*\|)?([^\]]*)\]\]`)
	labelledLink = regexp.MustCompile(`\[https?://[^\s\]]+[ \t]+([^\]]*)\]`)
	bareLink     = regexp.MustCompile(`\[https?://[^\s\]]*\]`)
	bullet       = regexp.MustCompile(`(?m)^[ \t]*\*+[ \t]*`)
	blankRuns    = regexp.MustCompile(`[ \t]+`)
	lineEdges    = regexp.MustCompile(`(?m)^ +| +$`)
	newlineRuns  = regexp.MustCompile(`\n{3,}`)
)

// maxResiduePasses bounds the residue loop; real extracts settle in two or three passes.
const maxResiduePasses = 8

// Clean strips excluded sections, LaTeX fragments and wiki markup from raw,
// then normalizes whitespace. It accepts any string.
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "")
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = removeSections(text)
	text = stripLatex(text)
	text = stripMarkup(text)
	return normalizeSpaces(text)
}

func removeSections(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); {
		m := headingLine.FindStringSubmatch(lines[i])
		if m == nil || !isExcluded(m[2]) {
			out = append(out, lines[i])
			i++
			continue
		}
		i = sectionEnd(lines, i+1, len(m[1]))
	}
	return strings.Join(out, "\n")
}

// sectionEnd returns the index of the first line after the section body that
// starts at from. The body stops at the next heading of the same or a higher
// level; a trailing section without one stops at its first blank line.
func sectionEnd(lines []string, from, level int) int {
	for j := from; j < len(lines); j++ {
		if m := headingLine.FindStringSubmatch(lines[j]); m != nil && len(m[1]) <= level {
			return j
		}
	}

	j := from
	for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
		j++
	}
	for j < len(lines) && strings.TrimSpace(lines[j]) != "" {
		j++
	}
	return j
}

func isExcluded(title string) bool {
	title = strings.TrimSpace(title)
	for _, s := range excludedSections {
		if strings.EqualFold(title, s) {
			return true
		}
	}
	return false
}

func stripLatex(text string) string {
	for _, r := range latexRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return emptyBraces.ReplaceAllString(text, "")
}

func stripMarkup(text string) string {
	for range maxResiduePasses {
		next := stripMarkupOnce(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func stripMarkupOnce(text string) string {
	text = heading.ReplaceAllString(text, "\n$1\n")
	text = htmlTag.ReplaceAllString(text, "")
	for template.MatchString(text) {
		text = template.ReplaceAllString(text, "")
	}
	text = orphanBraces.ReplaceAllString(text, "")
	text = internalLink.ReplaceAllString(text, "$1")
	text = labelledLink.ReplaceAllString(text, "$1")
	text = bareLink.ReplaceAllString(text, "")
	text = latexCommand.ReplaceAllString(text, " ")
	text = emptyBraces.ReplaceAllString(text, "")
	return bullet.ReplaceAllString(text, "- ")
}

func normalizeSpaces(text string) string {
	text = blankRuns.ReplaceAllString(text, " ")
	text = lineEdges.ReplaceAllString(text, "")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
