// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/fieldwise/agrokb/internal/db"
	"github.com/fieldwise/agrokb/internal/pipeline"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintReport outputs a human-readable summary of one ingestion run.
func (p *Printer) PrintReport(report *pipeline.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Outcome:  %s\n", report.Outcome))
	if report.DryRun {
		sb.WriteString("Mode:     dry run (no database writes)\n")
	}
	sb.WriteString(fmt.Sprintf("Elapsed:  %.1fs\n", report.ElapsedSeconds))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Sources:  %d planned", report.SourcesPlanned))
	if report.Unreachable > 0 {
		sb.WriteString(fmt.Sprintf(", %d unreachable", report.Unreachable))
	}
	if report.Failed > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", report.Failed))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Scraped:  %d   Parsed: %d\n", report.Scraped, report.Parsed))

	sb.WriteString(fmt.Sprintf("Chunks:   %d text", report.TextChunks))
	if report.DroppedProductChunks > 0 {
		sb.WriteString(fmt.Sprintf(" (%d suppressed)", report.DroppedProductChunks))
	}
	sb.WriteString(fmt.Sprintf(", %d embedded\n", report.EmbeddedChunks))
	sb.WriteString(fmt.Sprintf("Upserts:  %s\n", formatUpserts(report.ChunkUpserts)))

	if report.ImagesFound > 0 {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Images:   %d found, %d captioned\n", report.ImagesFound, report.ImagesCaptioned))
		sb.WriteString(fmt.Sprintf("          %s\n", formatUpserts(report.ImageUpserts)))
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Cost:     ~$%.4f (%d embed tokens, %d captions)",
		report.Cost.USD, report.Cost.EmbeddingTokens, report.Cost.Captions))

	p.printBox("INGESTION RUN SUMMARY", sb.String())
}

// PrintTotals outputs the knowledge base row counts.
func (p *Printer) PrintTotals(totals db.Totals) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Sources:       %d\n", totals.Sources))
	sb.WriteString(fmt.Sprintf("Text chunks:   %d\n", totals.TextChunks))
	sb.WriteString(fmt.Sprintf("Image chunks:  %d", totals.ImageChunks))

	p.printBox("KNOWLEDGE BASE TOTALS", sb.String())
}

// PrintSources outputs the stored source inventory with per-source status.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSources(sources []db.Source) {
	if len(sources) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO SOURCES INGESTED YET")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total sources: %d\n\n", len(sources)))

	count := min(len(sources), maxItemsToShow)
	for i := 0; i < count; i++ {
		src := sources[i]
		title := src.Title
		if title == "" {
			title = src.URL
		}
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		sb.WriteString(fmt.Sprintf("• %s\n", title))

		detail := fmt.Sprintf("%s, %d chunks", statusIndicator(src.Status), src.ChunksCount)
		if src.Institution != "" {
			detail += ", " + src.Institution
		}
		if len(detail) > 50 {
			detail = detail[:47] + "..."
		}
		sb.WriteString(fmt.Sprintf("  %s\n", detail))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(sources) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more sources", len(sources)-maxItemsToShow))
	}

	p.printBox("KNOWLEDGE BASE SOURCES", sb.String())
}

// statusIndicator prefixes a source status with a glanceable marker.
func statusIndicator(status string) string {
	switch status {
	case db.StatusReady:
		return "✓ " + status
	case db.StatusError:
		return "⚠ " + status
	default:
		return status
	}
}

// formatUpserts renders upsert stats in a fixed inserted/updated/skipped order.
func formatUpserts(stats db.UpsertStats) string {
	return fmt.Sprintf("%d inserted, %d updated, %d skipped",
		stats.Inserted, stats.Updated, stats.Skipped)
}
