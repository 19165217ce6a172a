// Package parsing - pdf.go extracts content from the PDF text layer:
// form-feed page splits, heading detection by line shape, table detection
// by aligned column runs.
package parsing

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/fieldwise/agrokb/internal/types"
)

// pdfMagic is the required file signature; payloads without it fail fast
// before any extraction attempt.
var pdfMagic = []byte("%PDF-")

const pdfMIMEType = "application/pdf"

// maxHeadingLength bounds heading candidates: real PDF headings are short.
const maxHeadingLength = 80

// headingCapRatio is the minimum share of letter-initial words that must be
// capitalized for a line to count as a Title Case / ALL CAPS heading.
const headingCapRatio = 0.6

// cellSplitPattern separates columns: runs of 2+ spaces or tabs, the way
// pdftotext lays out tabular regions.
var cellSplitPattern = regexp.MustCompile(`\t+| {2,}`)

// ParsePDF validates the magic header and extracts the text layer.
func (p *Parser) ParsePDF(data []byte, rawURL string) (*types.ParsedContent, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, &InvalidPDFError{URL: rawURL, Head: string(firstBytes(data, 16))}
	}

	res, err := docconv.Convert(bytes.NewReader(data), pdfMIMEType, false)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "PDF text extraction failed", Cause: err}
	}

	title := ""
	if res.Meta != nil {
		title = strings.TrimSpace(res.Meta["Title"])
	}
	return p.assemblePDF(res.Body, title, rawURL)
}

// assemblePDF builds sections and tables from extracted PDF text. Pages are
// split on form feeds; within a page, table spans are located first, then
// the remaining lines are classified as captions, headings, or paragraph
// text. Sections stay open across page breaks; paragraphs do not.
func (p *Parser) assemblePDF(text, title, rawURL string) (*types.ParsedContent, error) {
	b := &contentBuilder{title: title}

	for _, page := range strings.Split(text, "\f") {
		lines := strings.Split(page, "\n")
		spans := findTableSpans(lines)

		si := 0
		for i := 0; i < len(lines); i++ {
			if si < len(spans) && i == spans[si].start {
				b.flushParagraph()
				b.addTable(types.Table{Caption: spans[si].caption, Rows: spans[si].rows})
				i = spans[si].end
				si++
				continue
			}

			line := strings.TrimSpace(lines[i])
			switch {
			case line == "":
				b.flushParagraph()
			case isPageNumber(line):
				// bare page numbers carry no content
			case si < len(spans) && i == spans[si].start-1 && mentionsTableOrFigure(line):
				spans[si].caption = line
			case isHeadingLine(line):
				b.startSection(line)
			default:
				b.addLine(line)
			}
		}
		b.flushParagraph()
	}

	pc, err := b.build(rawURL)
	if err != nil {
		return nil, err
	}
	if pc.Title == "" {
		for _, s := range pc.Sections {
			if s.Heading != "" {
				pc.Title = s.Heading
				break
			}
		}
	}
	return pc, nil
}

// tableSpan is a run of consecutive lines forming one detected table.
type tableSpan struct {
	start, end int // inclusive line indexes within the page
	caption    string
	rows       [][]string
}

// findTableSpans locates runs of two or more consecutive lines that split
// into the same number (>= 2) of aligned cells.
func findTableSpans(lines []string) []tableSpan {
	var spans []tableSpan

	i := 0
	for i < len(lines) {
		first := splitCells(lines[i])
		if len(first) < 2 {
			i++
			continue
		}

		rows := [][]string{first}
		j := i + 1
		for j < len(lines) {
			next := splitCells(lines[j])
			if len(next) != len(first) {
				break
			}
			rows = append(rows, next)
			j++
		}

		if len(rows) >= 2 {
			spans = append(spans, tableSpan{start: i, end: j - 1, rows: rows})
			i = j
			continue
		}
		i++
	}

	return spans
}

// splitCells splits a line on column boundaries, dropping empty cells.
func splitCells(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	parts := cellSplitPattern.Split(trimmed, -1)
	var cells []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			cells = append(cells, part)
		}
	}
	return cells
}

// isHeadingLine reports whether a line looks like a PDF heading: short, no
// terminal punctuation, and Title Case or ALL CAPS.
func isHeadingLine(line string) bool {
	if line == "" || len(line) > maxHeadingLength {
		return false
	}
	if strings.ContainsAny(line[len(line)-1:], ".,;") {
		return false
	}

	letterWords, capWords := 0, 0
	for _, word := range strings.Fields(line) {
		r, _ := utf8.DecodeRuneInString(word)
		if unicode.IsLetter(r) {
			letterWords++
			if unicode.IsUpper(r) {
				capWords++
			}
		}
	}
	if letterWords == 0 {
		return false
	}
	return float64(capWords)/float64(letterWords) >= headingCapRatio
}

// isPageNumber reports a line that is nothing but a short digit run.
func isPageNumber(line string) bool {
	if line == "" || len(line) > 4 {
		return false
	}
	for _, r := range line {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func mentionsTableOrFigure(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "table") || strings.Contains(lower, "figure")
}

func firstBytes(data []byte, n int) []byte {
	if len(data) < n {
		return data
	}
	return data[:n]
}
