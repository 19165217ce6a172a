// Package pipeline orchestrates the ingestion run: validate URLs, scrape,
// upsert sources, parse, chunk, embed, and upsert chunks, with optional
// image phases at the end. Each phase's output is snapshotted before the
// next begins, so a failed or interrupted run can be re-entered with the
// --skip-* flags instead of recomputed.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldwise/agrokb/internal/classify"
	"github.com/fieldwise/agrokb/internal/db"
	"github.com/fieldwise/agrokb/internal/embed"
	"github.com/fieldwise/agrokb/internal/sources"
	"github.com/fieldwise/agrokb/internal/types"
)

// Fetcher retrieves documents. Satisfied by fetch.Fetcher.
type Fetcher interface {
	FetchHTML(ctx context.Context, rawURL string, useBrowser bool) (string, error)
	FetchPDF(ctx context.Context, rawURL string) ([]byte, error)
	Check(ctx context.Context, rawURL string) (int, error)
}

// Parser turns a scraped document into structured content. Satisfied by
// parsing.Parser.
type Parser interface {
	Parse(doc types.ScrapedDocument) (*types.ParsedContent, error)
}

// Chunker splits parsed content into retrieval-sized chunks and reports
// how many were suppressed by content policy. Satisfied by
// chunk.AgronomyChunker.
type Chunker interface {
	Chunk(pc *types.ParsedContent, sourceID string, base types.ChunkMetadata) ([]types.ChunkData, int)
}

// Embedder fills in embeddings for chunks and images. Satisfied by
// embed.Embedder.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []types.ChunkData) ([]types.ChunkData, error)
	EmbedImages(ctx context.Context, images []types.ProcessedImage) ([]types.ProcessedImage, error)
	Cost() embed.CostSummary
}

// Store persists sources and chunks. Satisfied by db.DB. Left nil for dry
// runs, which never reach it.
type Store interface {
	UpsertSources(ctx context.Context, docs []types.ScrapedDocument) (map[string]uuid.UUID, error)
	UpsertTextChunks(ctx context.Context, chunks []types.ChunkData) (db.UpsertStats, error)
	UpsertImageChunks(ctx context.Context, images []types.ProcessedImage) (db.UpsertStats, error)
	RecomputeChunkCounts(ctx context.Context, sourceIDs []uuid.UUID) error
	MarkSourceError(ctx context.Context, url, reason string) error
}

// Options holds per-run configuration for the pipeline.
type Options struct {
	Descriptors []sources.Descriptor
	Limit       int // cap on documents per run, 0 for no cap

	SkipScrape     bool // reuse the scraped snapshot instead of fetching
	SkipImages     bool // bypass the image phases
	SkipValidation bool // bypass the URL reachability pre-check
	DryRun         bool // mock source IDs, never touch the store
	UseBrowser     bool // force the headless browser for every fetch
	Verbose        bool
}

// Pipeline wires the phase collaborators together. All fields except
// Store are required; Store may be nil only when every run is dry.
type Pipeline struct {
	Fetcher   Fetcher
	Parser    Parser
	Chunker   Chunker
	Embedder  Embedder
	Store     Store
	Snapshots Snapshots
}

// parsedDoc pairs a document with its parse result through the chunk phase.
type parsedDoc struct {
	doc     types.ScrapedDocument
	content *types.ParsedContent
}

// Run executes the pipeline. Per-document failures accumulate into the
// failure snapshot and the run continues; embedding or store errors abort
// it, leaving the snapshots already written valid for a --skip-scrape
// retry.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{StartedAt: time.Now(), DryRun: opts.DryRun}
	var failures []FailedDocument

	descriptors := opts.Descriptors
	if opts.Limit > 0 && opts.Limit < len(descriptors) {
		descriptors = descriptors[:opts.Limit]
	}
	report.SourcesPlanned = len(descriptors)

	// Phase 1: URL validation.
	if !opts.SkipScrape && !opts.SkipValidation {
		p.logPhase(PhaseValidate, fmt.Sprintf("checking %d URLs", len(descriptors)))
		reachable, statuses := p.validateURLs(ctx, descriptors, &failures)
		if err := p.Snapshots.SaveURLStatus(statuses); err != nil {
			return nil, fmt.Errorf("url validation failed: %w", err)
		}
		report.Unreachable = len(descriptors) - len(reachable)
		descriptors = reachable
	}

	// Phase 2: Scrape, or reuse the previous run's snapshot.
	var docs []types.ScrapedDocument
	if opts.SkipScrape {
		p.logPhase(PhaseScrape, "loading scraped snapshot")
		loaded, err := p.Snapshots.LoadScrapedDocuments()
		if err != nil {
			return nil, fmt.Errorf("scrape failed: %w", err)
		}
		if opts.Limit > 0 && opts.Limit < len(loaded) {
			loaded = loaded[:opts.Limit]
		}
		docs = loaded
	} else {
		p.logPhase(PhaseScrape, fmt.Sprintf("%d sources", len(descriptors)))
		docs = p.scrape(ctx, descriptors, opts.UseBrowser, &failures)
		if err := p.Snapshots.SaveScrapedDocuments(docs); err != nil {
			return nil, fmt.Errorf("scrape failed: %w", err)
		}
	}
	report.Scraped = len(docs)

	// Phase 3: Source upsert. A dry run substitutes mock IDs so the
	// downstream phases still exercise real identities.
	p.logPhase(PhaseUpsertSources, fmt.Sprintf("%d documents", len(docs)))
	var sourceIDs map[string]uuid.UUID
	if opts.DryRun {
		sourceIDs = make(map[string]uuid.UUID, len(docs))
		for _, doc := range docs {
			sourceIDs[doc.URL] = uuid.New()
		}
	} else {
		ids, err := p.Store.UpsertSources(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("source upsert failed: %w", err)
		}
		sourceIDs = ids
	}

	// Phase 4: Parse.
	p.logPhase(PhaseParse, fmt.Sprintf("%d documents", len(docs)))
	parsed := p.parse(ctx, docs, opts.DryRun, &failures)
	report.Parsed = len(parsed)
	if opts.Verbose {
		for _, pd := range parsed {
			fmt.Printf("[VERBOSE] parsed %s: %d words, %d tables, %d images\n",
				pd.doc.URL, pd.content.WordCount, pd.content.TableCount, pd.content.ImageCount)
		}
	}

	// Phase 5: Chunk.
	p.logPhase(PhaseChunk, fmt.Sprintf("%d parsed documents", len(parsed)))
	chunks, images, dropped := p.chunk(parsed, sourceIDs)
	report.TextChunks = len(chunks)
	report.DroppedProductChunks = dropped
	if dropped > 0 {
		fmt.Printf("Suppressed %d product-recommendation chunks\n", dropped)
	}

	// Phase 6: Embed. Failures here are fatal: retry budgets are already
	// spent inside the embedder.
	p.logPhase(PhaseEmbed, fmt.Sprintf("%d chunks", len(chunks)))
	embedded, err := p.Embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	report.EmbeddedChunks = len(embedded)

	// Phase 7: Chunk upsert.
	if opts.DryRun {
		fmt.Printf("Dry run: skipping chunk upsert (%d chunks ready)\n", len(embedded))
	} else {
		p.logPhase(PhaseUpsertChunks, fmt.Sprintf("%d chunks", len(embedded)))
		stats, err := p.Store.UpsertTextChunks(ctx, embedded)
		if err != nil {
			return nil, fmt.Errorf("chunk upsert failed: %w", err)
		}
		report.ChunkUpserts = stats
		if err := p.Store.RecomputeChunkCounts(ctx, affectedSourceIDs(parsed, sourceIDs)); err != nil {
			return nil, fmt.Errorf("chunk upsert failed: %w", err)
		}
	}

	// Phases 8-10: images.
	if !opts.SkipImages {
		if err := p.runImagePhases(ctx, images, opts.DryRun, report); err != nil {
			return nil, err
		}
	}

	report.Failed = len(failures)
	if err := p.Snapshots.SaveFailedDocuments(failures); err != nil {
		return nil, fmt.Errorf("failed to write failure log: %w", err)
	}

	report.Cost = p.Embedder.Cost()
	report.finish()
	if err := p.Snapshots.SaveSummary(report); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}
	fmt.Printf("%s: %s\n", PhaseComplete, report.Outcome)
	return report, nil
}

// validateURLs checks reachability ahead of the scrape so a dead link
// costs one request, not a retry budget mid-run.
func (p *Pipeline) validateURLs(ctx context.Context, descriptors []sources.Descriptor, failures *[]FailedDocument) ([]sources.Descriptor, []URLStatus) {
	reachable := make([]sources.Descriptor, 0, len(descriptors))
	statuses := make([]URLStatus, 0, len(descriptors))
	for _, d := range descriptors {
		status := URLStatus{URL: d.URL}
		code, err := p.Fetcher.Check(ctx, d.URL)
		status.StatusCode = code
		switch {
		case err != nil:
			status.Error = err.Error()
			*failures = append(*failures, FailedDocument{URL: d.URL, Title: d.Title, Reason: fmt.Sprintf("unreachable: %v", err)})
		case code >= 400:
			*failures = append(*failures, FailedDocument{URL: d.URL, Title: d.Title, Reason: fmt.Sprintf("unreachable: status %d", code)})
		default:
			status.Reachable = true
			reachable = append(reachable, d)
		}
		statuses = append(statuses, status)
	}
	return reachable, statuses
}

// scrape fetches every descriptor, classifies the payload by its bytes,
// and keeps going past individual failures.
func (p *Pipeline) scrape(ctx context.Context, descriptors []sources.Descriptor, forceBrowser bool, failures *[]FailedDocument) []types.ScrapedDocument {
	docs := make([]types.ScrapedDocument, 0, len(descriptors))
	for i, d := range descriptors {
		fmt.Printf("  [%d/%d] %s\n", i+1, len(descriptors), d.URL)
		doc, err := p.scrapeOne(ctx, d, forceBrowser)
		if err != nil {
			fmt.Printf("  Warning: failed to scrape %s: %v\n", d.URL, err)
			*failures = append(*failures, FailedDocument{URL: d.URL, Title: d.Title, Reason: err.Error()})
			continue
		}
		docs = append(docs, *doc)
	}
	return docs
}

// scrapeOne fetches one descriptor. The URL suffix only picks the fetch
// path; the stored content type comes from classifying the actual payload,
// so a PDF link serving an HTML error page is ingested as HTML.
func (p *Pipeline) scrapeOne(ctx context.Context, d sources.Descriptor, forceBrowser bool) (*types.ScrapedDocument, error) {
	var raw []byte
	if classify.GuessFromURL(d.URL) == classify.KindPDF {
		data, err := p.Fetcher.FetchPDF(ctx, d.URL)
		if err != nil {
			return nil, err
		}
		raw = data
	} else {
		html, err := p.Fetcher.FetchHTML(ctx, d.URL, d.UseBrowser || forceBrowser)
		if err != nil {
			return nil, err
		}
		raw = []byte(html)
	}

	kind := classify.Classify(raw, d.URL, "")
	if kind == classify.KindUnknown {
		return nil, fmt.Errorf("unknown content type for %s", d.URL)
	}

	return &types.ScrapedDocument{
		URL:         d.URL,
		Title:       d.Title,
		RawContent:  raw,
		ContentType: string(kind),
		SourceType:  d.SourceType,
		Metadata: types.SourceMetadata{
			Institution: d.Institution,
			Crops:       d.Crops,
			Topics:      d.Topics,
			Region:      d.Region,
			Priority:    d.Priority,
		},
	}, nil
}

// parse runs every document through the parser. Failures are recorded and
// the source marked errored in the store, but the run continues.
func (p *Pipeline) parse(ctx context.Context, docs []types.ScrapedDocument, dryRun bool, failures *[]FailedDocument) []parsedDoc {
	parsed := make([]parsedDoc, 0, len(docs))
	for _, doc := range docs {
		content, err := p.Parser.Parse(doc)
		if err != nil {
			fmt.Printf("  Warning: failed to parse %s: %v\n", doc.URL, err)
			*failures = append(*failures, FailedDocument{URL: doc.URL, Title: doc.Title, Reason: err.Error()})
			if !dryRun {
				if markErr := p.Store.MarkSourceError(ctx, doc.URL, err.Error()); markErr != nil {
					fmt.Printf("  Warning: failed to mark source %s as errored: %v\n", doc.URL, markErr)
				}
			}
			continue
		}
		parsed = append(parsed, parsedDoc{doc: doc, content: content})
	}
	return parsed
}

// chunk splits every parsed document and collects its images for the
// later image phases.
func (p *Pipeline) chunk(parsed []parsedDoc, sourceIDs map[string]uuid.UUID) ([]types.ChunkData, []types.ProcessedImage, int) {
	var (
		chunks  []types.ChunkData
		images  []types.ProcessedImage
		dropped int
	)
	for _, pd := range parsed {
		sourceID := sourceIDs[pd.doc.URL].String()
		base := chunkMetadata(pd.doc)

		cs, d := p.Chunker.Chunk(pd.content, sourceID, base)
		chunks = append(chunks, cs...)
		dropped += d

		for _, sec := range pd.content.Sections {
			for _, img := range sec.Images {
				meta := base
				meta.ContentType = types.ChunkTypeImage
				meta.Section = img.SectionHeading
				images = append(images, types.ProcessedImage{
					Image:    img,
					SourceID: sourceID,
					Metadata: meta,
				})
			}
		}
	}
	return chunks, images, dropped
}

// runImagePhases captions, embeds, and upserts the images collected while
// chunking.
func (p *Pipeline) runImagePhases(ctx context.Context, images []types.ProcessedImage, dryRun bool, report *Report) error {
	p.logPhase(PhaseImageExtract, fmt.Sprintf("%d images", len(images)))
	report.ImagesFound = len(images)
	if len(images) == 0 {
		return nil
	}

	p.logPhase(PhaseImageEmbed, fmt.Sprintf("%d images", len(images)))
	captioned, err := p.Embedder.EmbedImages(ctx, images)
	if err != nil {
		return fmt.Errorf("image embedding failed: %w", err)
	}
	report.ImagesCaptioned = len(captioned)

	if dryRun {
		fmt.Printf("Dry run: skipping image upsert (%d images ready)\n", len(captioned))
		return nil
	}
	p.logPhase(PhaseImageUpsert, fmt.Sprintf("%d images", len(captioned)))
	stats, err := p.Store.UpsertImageChunks(ctx, captioned)
	if err != nil {
		return fmt.Errorf("image upsert failed: %w", err)
	}
	report.ImageUpserts = stats
	return nil
}

// chunkMetadata builds the metadata every chunk of a document inherits.
func chunkMetadata(doc types.ScrapedDocument) types.ChunkMetadata {
	return types.ChunkMetadata{
		SourceURL:   doc.URL,
		Institution: doc.Metadata.Institution,
		Crops:       doc.Metadata.Crops,
		Topics:      doc.Metadata.Topics,
		Region:      doc.Metadata.Region,
	}
}

// affectedSourceIDs lists the sources whose chunk counts need
// reconciliation after an upsert batch.
func affectedSourceIDs(parsed []parsedDoc, sourceIDs map[string]uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(parsed))
	for _, pd := range parsed {
		ids = append(ids, sourceIDs[pd.doc.URL])
	}
	return ids
}

func (p *Pipeline) logPhase(ph Phase, detail string) {
	fmt.Printf("Phase %d/%d: %s (%s)\n", int(ph)+1, phaseCount, ph, detail)
}
