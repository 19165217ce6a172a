// Package parsing extracts uniform structured content (sections, tables,
// images) from fetched documents. The HTML path walks the main-content DOM
// with readability-style heuristics; the PDF path works over the extracted
// text layer. Extraction is best-effort: heuristics favor recall of
// narrative agronomic text over perfect fidelity.
package parsing

import (
	"fmt"
	"strings"

	"github.com/fieldwise/agrokb/internal/classify"
	"github.com/fieldwise/agrokb/internal/types"
)

// DefaultMinMainTextLen is the minimum text length a preferred content
// container must hold before the parser trusts it over a full-body walk.
const DefaultMinMainTextLen = 200

// DefaultMinImageDim filters icons and logos: images whose width and height
// attributes are both below this are skipped.
const DefaultMinImageDim = 50

// Parser extracts ParsedContent from classified documents. The zero value
// uses no thresholds; construct with NewParser.
type Parser struct {
	MinMainTextLen int
	MinImageDim    int
}

// NewParser returns a Parser with default thresholds.
func NewParser() *Parser {
	return &Parser{
		MinMainTextLen: DefaultMinMainTextLen,
		MinImageDim:    DefaultMinImageDim,
	}
}

// Parse dispatches a scraped document to the path matching its classified
// content type. Unknown types are a per-document content error; callers
// collect these and continue the batch.
func (p *Parser) Parse(doc types.ScrapedDocument) (*types.ParsedContent, error) {
	switch classify.Kind(doc.ContentType) {
	case classify.KindPDF:
		return p.ParsePDF(doc.RawContent, doc.URL)
	case classify.KindHTML:
		return p.ParseHTML(string(doc.RawContent), doc.URL)
	default:
		return nil, &Error{URL: doc.URL, Message: fmt.Sprintf("unsupported content type %q", doc.ContentType)}
	}
}

// contentBuilder assembles sections and tables in document order; both
// parse paths feed it. Headings close the current section and open the
// next; blank input flushes the pending paragraph.
type contentBuilder struct {
	title    string
	sections []types.Section
	tables   []types.Table
	current  types.Section
	para     []string
}

func (b *contentBuilder) startSection(heading string) {
	b.closeSection()
	b.current = types.Section{Heading: heading}
}

func (b *contentBuilder) closeSection() {
	b.flushParagraph()
	if strings.TrimSpace(b.current.Text) != "" || len(b.current.Images) > 0 {
		b.sections = append(b.sections, b.current)
	}
	b.current = types.Section{}
}

// addLine buffers one line of the pending paragraph; an empty line flushes.
func (b *contentBuilder) addLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		b.flushParagraph()
		return
	}
	b.para = append(b.para, line)
}

func (b *contentBuilder) flushParagraph() {
	if len(b.para) == 0 {
		return
	}
	text := strings.Join(b.para, "\n")
	b.para = b.para[:0]
	b.addParagraph(text)
}

func (b *contentBuilder) addParagraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.current.Text == "" {
		b.current.Text = text
	} else {
		b.current.Text += "\n\n" + text
	}
}

// lastParagraph returns the most recent accumulated text, used as image
// context.
func (b *contentBuilder) lastParagraph() string {
	if len(b.para) > 0 {
		return strings.Join(b.para, "\n")
	}
	if i := strings.LastIndex(b.current.Text, "\n\n"); i >= 0 {
		return b.current.Text[i+2:]
	}
	return b.current.Text
}

func (b *contentBuilder) addImage(img types.ImageData) {
	img.SectionHeading = b.current.Heading
	b.current.Images = append(b.current.Images, img)
}

// addTable records a table, inheriting the current section heading when the
// table has none of its own.
func (b *contentBuilder) addTable(t types.Table) {
	if t.Heading == "" {
		t.Heading = b.current.Heading
	}
	b.tables = append(b.tables, t)
}

// build finishes assembly and derives the counts used for progress
// reporting and cost estimation.
func (b *contentBuilder) build(rawURL string) (*types.ParsedContent, error) {
	b.closeSection()

	pc := &types.ParsedContent{
		Title:      b.title,
		Sections:   b.sections,
		Tables:     b.tables,
		TableCount: len(b.tables),
	}
	for _, s := range pc.Sections {
		pc.WordCount += len(strings.Fields(s.Text))
		pc.ImageCount += len(s.Images)
	}
	for _, t := range pc.Tables {
		for _, row := range t.Rows {
			for _, cell := range row {
				pc.WordCount += len(strings.Fields(cell))
			}
		}
	}

	if len(pc.Sections) == 0 && len(pc.Tables) == 0 {
		return nil, &EmptyContentError{URL: rawURL}
	}
	return pc, nil
}

// cleanText collapses all whitespace runs to single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateText caps context snippets attached to images.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max])
}
