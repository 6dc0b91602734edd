// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package converter

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TextileToMarkdown converts the Textile subset used in Redmine to
// CommonMark. It handles headings, block quotes, bullet and numbered lists,
// tables, pre and bc. code blocks, inline code, links, images, and the
// phrase modifiers for emphasis, strike, insertion, superscript and
// subscript. Text inside code is left alone.
type TextileToMarkdown struct {
	headingOffset int
}

type textileOptions struct {
	HeadingOffset int `json:"headingOffset"`
}

func newTextileToMarkdown(opts Options) (Converter, error) {
	var o textileOptions
	if err := DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.HeadingOffset < 0 || o.HeadingOffset > 5 {
		return nil, invalidOptions("headingOffset must be between 0 and 5, got %d", o.HeadingOffset)
	}
	return &TextileToMarkdown{headingOffset: o.HeadingOffset}, nil
}

var (
	reHeading    = regexp.MustCompile(`^h([1-6])((?:\([^)]*\)|\{[^}]*\}|\[[^\]]*\]|[<>=()])*)\.\s+(.*)$`)
	reBlockQuote = regexp.MustCompile(`^bq((?:\([^)]*\)|\{[^}]*\})*)(\.\.?)\s+(.*)$`)
	reParagraph  = regexp.MustCompile(`^p((?:\([^)]*\)|\{[^}]*\}|[<>=()])*)(\.\.?)\s+(.*)$`)
	reBlockCode  = regexp.MustCompile(`^bc((?:\([^)]*\)|\{[^}]*\})*)(\.\.?)\s?(.*)$`)
	reListItem   = regexp.MustCompile(`^([*#]+)\s+(.*)$`)
	rePreOpen    = regexp.MustCompile(`^<pre>\s*(?:<code(?:\s+class="([^"]*)")?\s*>)?`)
	reCellAttr   = regexp.MustCompile(`^((?:[_<>=^~]|\\\d+|/\d+|\([^)]*\)|\{[^}]*\})+)\.\s*`)
	reInlineCode = regexp.MustCompile(`@([^@\s](?:[^@\n]*[^@\s])?)@`)
	reLink       = regexp.MustCompile(`"([^"\n]+)":([^\s<>"]+)`)
	reLinkTitle  = regexp.MustCompile(`^(.*?)\s*\(([^()]*)\)$`)
	reImage      = regexp.MustCompile(`!([<>=]{0,2})([^\s!()]+)(?:\(([^)]*)\))?!(?::([^\s<>"]+))?`)
)

// Convert implements Converter.
func (t *TextileToMarkdown) Convert(_ context.Context, text string, _ FieldContext) (string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if m := rePreOpen.FindStringSubmatchIndex(trimmed); m != nil {
			lang := ""
			if m[2] >= 0 {
				lang = trimmed[m[2]:m[3]]
			}
			var body []string
			body, i = collectPre(trimmed[m[1]:], lines, i)
			out = append(out, fence(lang, body)...)
			continue
		}

		if m := reBlockCode.FindStringSubmatch(trimmed); m != nil {
			var body []string
			if m[2] == ".." {
				body, i = collectExtended(m[3], lines, i)
				if body[0] == "" {
					body = body[1:]
				}
			} else {
				body = []string{m[3]}
				for i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
					i++
					body = append(body, lines[i])
				}
			}
			out = append(out, fence("", body)...)
			continue
		}

		if m := reHeading.FindStringSubmatch(trimmed); m != nil {
			level, _ := strconv.Atoi(m[1])
			level = min(level+t.headingOffset, 6)
			out = append(out, strings.Repeat("#", level)+" "+convertInline(m[3]))
			continue
		}

		if m := reBlockQuote.FindStringSubmatch(trimmed); m != nil {
			body := []string{m[3]}
			if m[2] == ".." {
				body, i = collectExtended(m[3], lines, i)
			}
			for _, l := range body {
				if strings.TrimSpace(l) == "" {
					out = append(out, ">")
					continue
				}
				out = append(out, "> "+convertInline(l))
			}
			continue
		}

		if m := reParagraph.FindStringSubmatch(trimmed); m != nil {
			body := []string{m[3]}
			if m[2] == ".." {
				body, i = collectExtended(m[3], lines, i)
			}
			for _, l := range body {
				out = append(out, convertInline(l))
			}
			continue
		}

		if m := reListItem.FindStringSubmatch(trimmed); m != nil {
			out = append(out, listItem(m[1], convertInline(m[2])))
			continue
		}

		if isTableRow(trimmed) {
			rows := []string{trimmed}
			for i+1 < len(lines) && isTableRow(strings.TrimSpace(lines[i+1])) {
				i++
				rows = append(rows, strings.TrimSpace(lines[i]))
			}
			out = append(out, convertTable(rows)...)
			continue
		}

		out = append(out, convertInline(line))
	}

	return strings.Join(out, "\n"), nil
}

// collectExtended gathers the body of an extended block (bc.., bq.., p..)
// that starts on lines[i] with first as its text. The block runs across
// blank lines until a block signature opens a new paragraph. Trailing blank
// lines are left to the caller. It returns the body and the index of its
// last line.
func collectExtended(first string, lines []string, i int) ([]string, int) {
	body := []string{first}
	last := i
	for j := i + 1; j < len(lines); j++ {
		if strings.TrimSpace(lines[j-1]) == "" && isBlockSignature(strings.TrimSpace(lines[j])) {
			break
		}
		body = append(body, lines[j])
		if strings.TrimSpace(lines[j]) != "" {
			last = j
		}
	}
	return body[:last-i+1], last
}

func isBlockSignature(s string) bool {
	return reHeading.MatchString(s) || reBlockQuote.MatchString(s) || reParagraph.MatchString(s) ||
		reBlockCode.MatchString(s) || rePreOpen.MatchString(s)
}

// collectPre gathers the body of a <pre> block whose opening tag sits on
// lines[i] with rest following it. It returns the body lines and the index
// of the closing line. An unterminated block runs to the end of the text.
func collectPre(rest string, lines []string, i int) ([]string, int) {
	if body, ok := cutPreClose(rest); ok {
		return []string{body}, i
	}
	var body []string
	if strings.TrimSpace(rest) != "" {
		body = append(body, rest)
	}
	for i+1 < len(lines) {
		i++
		if before, ok := cutPreClose(lines[i]); ok {
			if strings.TrimSpace(before) != "" {
				body = append(body, before)
			}
			return body, i
		}
		body = append(body, lines[i])
	}
	return body, i
}

func cutPreClose(s string) (string, bool) {
	before, _, ok := strings.Cut(s, "</pre>")
	if !ok {
		return "", false
	}
	before = strings.TrimSuffix(strings.TrimRight(before, " \t"), "</code>")
	return before, true
}

func fence(lang string, body []string) []string {
	out := make([]string, 0, len(body)+2)
	out = append(out, "```"+lang)
	out = append(out, body...)
	return append(out, "```")
}

// listItem renders one list line. Markers nest: "#*" is a bullet inside a
// numbered item. Indentation follows the width of each parent marker.
func listItem(marks, content string) string {
	var indent strings.Builder
	for _, m := range marks[:len(marks)-1] {
		if m == '*' {
			indent.WriteString("  ")
		} else {
			indent.WriteString("   ")
		}
	}
	if marks[len(marks)-1] == '*' {
		return indent.String() + "- " + content
	}
	return indent.String() + "1. " + content
}

func isTableRow(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, "|") && strings.HasSuffix(s, "|")
}

// convertTable renders Textile table rows as a pipe table. Markdown needs a
// header row, so a table that does not start with _. cells gets an empty one.
func convertTable(rows []string) []string {
	var out []string
	for i, row := range rows {
		cells, header := splitRow(row)
		if i == 0 {
			if header {
				out = append(out, pipeRow(cells), separator(len(cells)))
				continue
			}
			out = append(out, pipeRow(make([]string, len(cells))), separator(len(cells)))
		}
		out = append(out, pipeRow(cells))
	}
	return out
}

func splitRow(row string) ([]string, bool) {
	parts := strings.Split(row[1:len(row)-1], "|")
	cells := make([]string, len(parts))
	header := len(parts) > 0
	for i, p := range parts {
		p = strings.TrimSpace(p)
		isHeader := false
		if m := reCellAttr.FindStringSubmatch(p); m != nil {
			isHeader = strings.Contains(m[1], "_")
			p = strings.TrimSpace(p[len(m[0]):])
		}
		header = header && isHeader
		cells[i] = strings.ReplaceAll(convertInline(p), "|", `\|`)
	}
	return cells, header
}

func pipeRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func separator(n int) string {
	return "|" + strings.Repeat(" --- |", n)
}

// convertInline converts phrase-level markup on one line. Inline code spans
// are cut out first so their content passes through untouched.
func convertInline(s string) string {
	var b strings.Builder
	pos := 0
	for pos < len(s) {
		loc := reInlineCode.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !boundaryBefore(s, start) || !boundaryAfter(s, end) {
			b.WriteString(convertSpans(s[pos : start+1]))
			pos = start + 1
			continue
		}
		b.WriteString(convertSpans(s[pos:start]))
		b.WriteString("`" + s[pos+loc[2]:pos+loc[3]] + "`")
		pos = end
	}
	b.WriteString(convertSpans(s[pos:]))
	return b.String()
}

type span struct {
	re          *regexp.Regexp
	open, close string
}

// Order matters: bold must run before italic because italic emits single
// asterisks.
var spans = []span{
	{regexp.MustCompile(`\*\*?([^*\n]+?)\*\*?`), "**", "**"},
	{regexp.MustCompile(`__?([^_\n]+?)__?`), "*", "*"},
	{regexp.MustCompile(`-([^-\n]+?)-`), "~~", "~~"},
	{regexp.MustCompile(`\+([^+\n]+?)\+`), "<ins>", "</ins>"},
	{regexp.MustCompile(`\^([^^\n]+?)\^`), "<sup>", "</sup>"},
	{regexp.MustCompile(`~([^~\n]+?)~`), "<sub>", "</sub>"},
}

func convertSpans(s string) string {
	if s == "" {
		return s
	}
	s = convertImages(s)
	s = convertLinks(s)
	for _, sp := range spans {
		s = sp.apply(s)
	}
	return s
}

func (sp span) apply(s string) string {
	var b strings.Builder
	pos := 0
	for pos < len(s) {
		loc := sp.re.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		inner := s[pos+loc[2] : pos+loc[3]]
		if !boundaryBefore(s, start) || !boundaryAfter(s, end) || strings.TrimSpace(inner) != inner {
			b.WriteString(s[pos : start+1])
			pos = start + 1
			continue
		}
		b.WriteString(s[pos:start])
		b.WriteString(sp.open)
		b.WriteString(inner)
		b.WriteString(sp.close)
		pos = end
	}
	b.WriteString(s[pos:])
	return b.String()
}

func convertLinks(s string) string {
	var b strings.Builder
	pos := 0
	for pos < len(s) {
		loc := reLink.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		text := s[pos+loc[2] : pos+loc[3]]
		url := s[pos+loc[4] : pos+loc[5]]
		trimmedURL := strings.TrimRight(url, ".,;:!?)]'")
		end := pos + loc[5] - (len(url) - len(trimmedURL))

		title := ""
		if m := reLinkTitle.FindStringSubmatch(text); m != nil && m[1] != "" {
			text, title = m[1], m[2]
		}

		b.WriteString(s[pos:start])
		if title != "" {
			fmt.Fprintf(&b, "[%s](%s %q)", text, trimmedURL, title)
		} else {
			fmt.Fprintf(&b, "[%s](%s)", text, trimmedURL)
		}
		pos = end
	}
	b.WriteString(s[pos:])
	return b.String()
}

func convertImages(s string) string {
	var b strings.Builder
	pos := 0
	for pos < len(s) {
		loc := reImage.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !boundaryBefore(s, start) {
			b.WriteString(s[pos : start+1])
			pos = start + 1
			continue
		}
		src := s[pos+loc[4] : pos+loc[5]]
		alt := ""
		if loc[6] >= 0 {
			alt = s[pos+loc[6] : pos+loc[7]]
		}
		img := fmt.Sprintf("![%s](%s)", alt, src)
		if loc[8] >= 0 {
			img = fmt.Sprintf("[%s](%s)", img, s[pos+loc[8]:pos+loc[9]])
		}
		b.WriteString(s[pos:start])
		b.WriteString(img)
		pos = end
	}
	b.WriteString(s[pos:])
	return b.String()
}

func boundaryBefore(s string, i int) bool {
	return i == 0 || strings.IndexByte(" \t([{>\"'", s[i-1]) >= 0
}

func boundaryAfter(s string, i int) bool {
	return i == len(s) || strings.IndexByte(" \t.,;:!?)]}<\"'-", s[i]) >= 0
}
