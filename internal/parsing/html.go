// Package parsing - html.go walks the main-content DOM: headings open
// sections, paragraphs and list items accumulate text, tables and images
// become structured records.
package parsing

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fieldwise/agrokb/internal/types"
)

// contentSelectors is the preference order for locating the main content
// container. The first match holding enough text wins; otherwise the walk
// falls back to <body>.
var contentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	".content",
	"#content",
	".main-content",
	"#main-content",
}

// noiseSelectors are stripped from the document before extraction.
var noiseSelectors = []string{
	"script", "style", "noscript", "iframe",
	"nav", "header", "footer", "aside", "form",
	".ad", ".ads", ".advertisement",
	".sidebar", ".menu", ".navigation",
	".breadcrumb", ".breadcrumbs",
	".cookie-banner", ".cookie-consent", ".popup",
	".social-share", ".share-buttons",
}

// imageContextLen caps the surrounding-text snippet carried by each image.
const imageContextLen = 300

// ParseHTML extracts sections, tables, and images from an HTML page.
func (p *Parser) ParseHTML(html, rawURL string) (*types.ParsedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "failed to parse HTML", Cause: err}
	}

	title := cleanText(doc.Find("title").First().Text())
	if title == "" {
		title = cleanText(doc.Find("h1").First().Text())
	}

	doc.Find(strings.Join(noiseSelectors, ", ")).Remove()
	container := p.mainContainer(doc)

	base, _ := url.Parse(rawURL)
	b := &contentBuilder{title: title}

	container.Find("h1, h2, h3, h4, p, li, table, img, figure").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3", "h4":
			if heading := cleanText(s.Text()); heading != "" {
				b.startSection(heading)
			}
		case "p":
			// Paragraphs inside list items, figures, or tables are covered
			// by their container's visit.
			if s.ParentsFiltered("li, figure, table").Length() > 0 {
				return
			}
			b.addParagraph(cleanText(s.Text()))
		case "li":
			if s.ParentsFiltered("li, table").Length() > 0 {
				return
			}
			if item := cleanText(s.Text()); item != "" {
				b.addParagraph("- " + item)
			}
		case "table":
			if s.ParentsFiltered("table").Length() > 0 {
				return
			}
			if t, ok := extractTable(s); ok {
				b.addTable(t)
			}
		case "img":
			if s.ParentsFiltered("figure").Length() > 0 {
				return
			}
			if img, ok := p.extractImage(s, base, b.lastParagraph()); ok {
				b.addImage(img)
			}
		case "figure":
			if img, ok := p.extractFigure(s, base); ok {
				b.addImage(img)
			}
		}
	})

	return b.build(rawURL)
}

// mainContainer returns the first preferred selector match holding enough
// text to be a plausible article body, falling back to <body>.
func (p *Parser) mainContainer(doc *goquery.Document) *goquery.Selection {
	for _, selector := range contentSelectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		candidate := sel.First()
		if len(strings.TrimSpace(candidate.Text())) >= p.MinMainTextLen {
			return candidate
		}
	}
	return doc.Find("body")
}

// extractTable turns a <table> into a rows matrix. Layout shells (fewer
// than two rows, or no multi-column row) are dropped.
func extractTable(s *goquery.Selection) (types.Table, bool) {
	var t types.Table
	t.Caption = cleanText(s.Find("caption").First().Text())

	tableNode := s.Get(0)
	s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) != tableNode {
			return
		}
		var row []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, cleanText(cell.Text()))
		})
		if len(row) > 0 {
			t.Rows = append(t.Rows, row)
		}
	})

	if len(t.Rows) < 2 {
		return t, false
	}
	for _, row := range t.Rows {
		if len(row) >= 2 {
			return t, true
		}
	}
	return t, false
}

// extractImage builds an ImageData from an <img>, resolving its URL against
// the document URL and filtering inline data and icon-sized images.
func (p *Parser) extractImage(s *goquery.Selection, base *url.URL, context string) (types.ImageData, bool) {
	src := strings.TrimSpace(s.AttrOr("src", ""))
	if src == "" || strings.HasPrefix(src, "data:") {
		return types.ImageData{}, false
	}
	if p.iconSized(s) {
		return types.ImageData{}, false
	}
	abs := resolveImageURL(base, src)
	if abs == "" {
		return types.ImageData{}, false
	}

	return types.ImageData{
		URL:     abs,
		AltText: cleanText(s.AttrOr("alt", "")),
		Context: truncateText(cleanText(context), imageContextLen),
	}, true
}

// extractFigure extracts a figure's image with its figcaption.
func (p *Parser) extractFigure(s *goquery.Selection, base *url.URL) (types.ImageData, bool) {
	imgSel := s.Find("img").First()
	if imgSel.Length() == 0 {
		return types.ImageData{}, false
	}
	img, ok := p.extractImage(imgSel, base, "")
	if !ok {
		return types.ImageData{}, false
	}
	img.Caption = cleanText(s.Find("figcaption").First().Text())
	return img, true
}

// iconSized reports whether both declared dimensions are below the minimum.
func (p *Parser) iconSized(s *goquery.Selection) bool {
	w, werr := strconv.Atoi(s.AttrOr("width", ""))
	h, herr := strconv.Atoi(s.AttrOr("height", ""))
	return werr == nil && herr == nil && w < p.MinImageDim && h < p.MinImageDim
}

// resolveImageURL resolves src against the document URL, handling
// root-relative and path-relative references.
func resolveImageURL(base *url.URL, src string) string {
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if base == nil {
		if ref.IsAbs() {
			return ref.String()
		}
		return ""
	}
	return base.ResolveReference(ref).String()
}
