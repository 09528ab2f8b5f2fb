package internal

import (
	"regexp"
	"strings"
)

type mdTokenType int

const (
	tokenText mdTokenType = iota
	tokenImage
	tokenTable
)

type mdToken struct {
	Type     mdTokenType
	Content  string
	Table    []TableRow
	IsHeader bool
}

type TableRow struct {
	Key   string
	Value string
}

var (
	imgRegex      = regexp.MustCompile(`!\[[^\]]*\]\(data:image/[a-zA-Z]+;base64,[^)]*\)`)
	mdHeading     = regexp.MustCompile(`^(#{1,6})[ \t]+(.+?)[ \t#]*$`)
	mdEmphasis    = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// NormalizeMarkdown rewrites converter markdown into wiki-like text the
// cleaner understands: "#" headings become "== title ==" lines, table rows
// become "key : value" lines and embedded images are dropped.
func NormalizeMarkdown(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	tokens := mergeAdjacentTables(mergeAdjacentText(tokenizeMD(md)))

	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		switch t.Type {
		case tokenText:
			parts = append(parts, normalizeText(t.Content))
		case tokenTable:
			parts = append(parts, renderTable(t.Table))
		}
	}
	out := strings.Join(parts, "\n\n")
	return strings.TrimSpace(blankLineRuns.ReplaceAllString(out, "\n\n"))
}

func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if m := mdHeading.FindStringSubmatch(line); m != nil {
			marks := strings.Repeat("=", len(m[1])+1)
			lines[i] = "\n" + marks + " " + m[2] + " " + marks
			continue
		}
		lines[i] = mdEmphasis.ReplaceAllString(line, "$2")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func renderTable(rows []TableRow) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		switch {
		case r.Key == "":
			lines = append(lines, r.Value)
		case r.Value == "":
			lines = append(lines, r.Key)
		default:
			lines = append(lines, r.Key+" : "+r.Value)
		}
	}
	return strings.Join(lines, "\n")
}

func tokenizeMD(md string) []mdToken {
	lines := strings.Split(md, "\n")
	var tokens []mdToken

	var buf strings.Builder
	flushText := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			tokens = append(tokens, mdToken{Type: tokenText, Content: s})
		}
		buf.Reset()
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if isTableRow(line) {
			flushText()
			rows, next, hasHeader := parseMarkdownTableAt(lines, i)
			tokens = append(tokens, mdToken{
				Type:     tokenTable,
				Table:    rows,
				IsHeader: hasHeader,
			})
			i = next - 1
			continue
		}

		if imgRegex.MatchString(line) {
			flushText()
			tokens = append(tokens, mdToken{Type: tokenImage})
			line = imgRegex.ReplaceAllString(line, "")
			if strings.TrimSpace(line) == "" {
				continue
			}
		}

		buf.WriteString(line)
		buf.WriteString("\n")
	}

	flushText()
	return tokens
}

func isTableRow(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func isSeparatorRow(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "|") && strings.Contains(line, "---") &&
		strings.Trim(line, "|-: \t") == ""
}

func splitRow(line string) []string {
	parts := strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

// parseMarkdownTableAt reads the table starting at lines[start] and returns
// its rows, the index of the first line after it and whether it opened with
// a header row. Rows whose first cell is empty continue the previous row.
func parseMarkdownTableAt(lines []string, start int) ([]TableRow, int, bool) {
	var rows []TableRow
	i := start
	hasHeader := i+1 < len(lines) && isSeparatorRow(lines[i+1])

	for ; i < len(lines) && isTableRow(lines[i]); i++ {
		if isSeparatorRow(lines[i]) {
			continue
		}
		cells := splitRow(lines[i])
		key := cells[0]
		val := strings.Join(nonEmpty(cells[1:]), " ; ")

		if key == "" && len(rows) > 0 {
			prev := &rows[len(rows)-1]
			prev.Value = strings.TrimSpace(prev.Value + " " + val)
			continue
		}
		if key == "" && val == "" {
			continue
		}
		rows = append(rows, TableRow{Key: key, Value: val})
	}
	return rows, i, hasHeader
}

func nonEmpty(cells []string) []string {
	out := cells[:0:0]
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// mergeAdjacentText drops images and joins the text around them.
func mergeAdjacentText(tokens []mdToken) []mdToken {
	var result []mdToken
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			result = append(result, mdToken{
				Type:    tokenText,
				Content: strings.TrimSpace(buf.String()),
			})
			buf.Reset()
		}
	}

	for _, t := range tokens {
		switch t.Type {
		case tokenImage:
			continue
		case tokenText:
			buf.WriteString(t.Content)
			buf.WriteString("\n\n")
			continue
		}
		flush()
		result = append(result, t)
	}

	flush()
	return result
}

// mergeAdjacentTables glues a table split across pages back together unless
// the second part opens with its own header.
func mergeAdjacentTables(tokens []mdToken) []mdToken {
	var out []mdToken
	for _, t := range tokens {
		if t.Type == tokenTable && len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Type == tokenTable && !t.IsHeader {
				prev.Table = append(prev.Table, t.Table...)
				continue
			}
		}
		out = append(out, t)
	}
	return out
}
