// Package classify decides whether a fetched payload is a PDF, an HTML
// document, or something else. Decisions are made from the payload bytes
// first; URL extensions and server-declared content types are only
// consulted as weak fallbacks because extension sites routinely serve HTML
// error pages with 200 OK at .pdf URLs.
package classify

import (
	"bytes"
	"strings"
)

// Kind is the detected content kind of a payload.
type Kind string

const (
	// KindPDF is a payload carrying the %PDF- magic header.
	KindPDF Kind = "pdf"
	// KindHTML is a payload recognized as an HTML document.
	KindHTML Kind = "html"
	// KindUnknown is a payload that matched no reliable signal.
	KindUnknown Kind = "unknown"
)

// markerScanWindow is how many leading bytes are scanned for HTML markers
// after prefix checks fail. Real documents put their doctype or <html> tag
// well within this window; anything later is not worth trusting.
const markerScanWindow = 100

// pdfMagic is the PDF file signature.
var pdfMagic = []byte("%PDF-")

// htmlPrefixes are byte prefixes that identify an HTML/XML document
// outright. Compared case-insensitively after BOM/whitespace trimming.
var htmlPrefixes = []string{
	"<!doctype",
	"<html",
	"<head",
	"<?xml",
}

// htmlMarkers are substrings searched for within the scan window when no
// prefix matched (some pages open with comments or stray bytes).
var htmlMarkers = []string{
	"<html",
	"<!doctype",
	"<head",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Classifier decides content kinds. The zero value is usable; set Warnf to
// receive diagnostics about suspicious payloads (e.g. non-PDF bytes at a
// .pdf URL).
type Classifier struct {
	Warnf func(format string, args ...any)
}

func (c *Classifier) warnf(format string, args ...any) {
	if c != nil && c.Warnf != nil {
		c.Warnf(format, args...)
	}
}

// Classify inspects payload bytes and returns the detected kind.
// rawURL and declaredType (the Content-Type header, may be empty) are
// fallback signals only; bytes always win.
func (c *Classifier) Classify(data []byte, rawURL, declaredType string) Kind {
	trimmed := trimLeading(data)

	// Magic bytes are authoritative.
	if bytes.HasPrefix(trimmed, pdfMagic) {
		return KindPDF
	}

	head := strings.ToLower(string(window(trimmed, markerScanWindow)))
	for _, prefix := range htmlPrefixes {
		if strings.HasPrefix(head, prefix) {
			return KindHTML
		}
	}
	for _, marker := range htmlMarkers {
		if strings.Contains(head, marker) {
			return KindHTML
		}
	}

	// A .pdf URL whose bytes are not PDF is most likely an error page or a
	// redirect stub. Never trust the extension here.
	lowerURL := strings.ToLower(rawURL)
	if strings.HasSuffix(lowerURL, ".pdf") {
		c.warnf("url %s ends in .pdf but payload is not a PDF (first bytes: %q)", rawURL, window(trimmed, 16))
		return KindUnknown
	}
	if strings.HasSuffix(lowerURL, ".html") || strings.HasSuffix(lowerURL, ".htm") {
		return KindHTML
	}

	declared := strings.ToLower(declaredType)
	switch {
	case strings.Contains(declared, "pdf"):
		return KindPDF
	case strings.Contains(declared, "html"):
		return KindHTML
	}

	return KindUnknown
}

// Classify is the zero-configuration entry point.
func Classify(data []byte, rawURL, declaredType string) Kind {
	var c Classifier
	return c.Classify(data, rawURL, declaredType)
}

// GuessFromURL guesses a kind from the URL alone, before any bytes exist.
// Used only to pick the fetch path (PDF payloads skip browser rendering);
// the byte-level Classify decision always overrides this guess.
func GuessFromURL(rawURL string) Kind {
	trimmed := strings.ToLower(rawURL)
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	switch {
	case strings.HasSuffix(trimmed, ".pdf"):
		return KindPDF
	case strings.HasSuffix(trimmed, ".html"), strings.HasSuffix(trimmed, ".htm"):
		return KindHTML
	}
	return KindUnknown
}

// trimLeading drops a UTF-8 BOM and leading whitespace so prefix checks see
// the first meaningful byte.
func trimLeading(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	return bytes.TrimLeft(data, " \t\r\n")
}

func window(data []byte, n int) []byte {
	if len(data) < n {
		return data
	}
	return data[:n]
}
