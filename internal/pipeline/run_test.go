package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwise/agrokb/internal/chunk"
	"github.com/fieldwise/agrokb/internal/db"
	"github.com/fieldwise/agrokb/internal/embed"
	"github.com/fieldwise/agrokb/internal/fetch"
	"github.com/fieldwise/agrokb/internal/parsing"
	"github.com/fieldwise/agrokb/internal/sources"
	"github.com/fieldwise/agrokb/internal/types"
)

// The real collaborators must satisfy the pipeline interfaces.
var (
	_ Fetcher  = (*fetch.Fetcher)(nil)
	_ Parser   = (*parsing.Parser)(nil)
	_ Chunker  = (*chunk.AgronomyChunker)(nil)
	_ Embedder = (*embed.Embedder)(nil)
	_ Store    = (*db.DB)(nil)
)

type fakeFetcher struct {
	html      map[string]string
	pdf       map[string][]byte
	checkCode map[string]int
	checkErr  map[string]error

	htmlCalls  []string
	pdfCalls   []string
	checkCalls []string
	browser    []bool
}

func (f *fakeFetcher) FetchHTML(_ context.Context, rawURL string, useBrowser bool) (string, error) {
	f.htmlCalls = append(f.htmlCalls, rawURL)
	f.browser = append(f.browser, useBrowser)
	h, ok := f.html[rawURL]
	if !ok {
		return "", fmt.Errorf("no HTML fixture for %s", rawURL)
	}
	return h, nil
}

func (f *fakeFetcher) FetchPDF(_ context.Context, rawURL string) ([]byte, error) {
	f.pdfCalls = append(f.pdfCalls, rawURL)
	data, ok := f.pdf[rawURL]
	if !ok {
		return nil, fmt.Errorf("no PDF fixture for %s", rawURL)
	}
	return data, nil
}

func (f *fakeFetcher) Check(_ context.Context, rawURL string) (int, error) {
	f.checkCalls = append(f.checkCalls, rawURL)
	if err, ok := f.checkErr[rawURL]; ok {
		return 0, err
	}
	if code, ok := f.checkCode[rawURL]; ok {
		return code, nil
	}
	return 200, nil
}

type fakeParser struct {
	fail map[string]error
}

func (f *fakeParser) Parse(doc types.ScrapedDocument) (*types.ParsedContent, error) {
	if err, ok := f.fail[doc.URL]; ok {
		return nil, err
	}
	return &types.ParsedContent{
		Title: doc.Title,
		Sections: []types.Section{{
			Heading: "Symptoms",
			Text:    "Interveinal chlorosis appears on the lower leaves first.",
			Images: []types.ImageData{{
				URL:            doc.URL + "/fig1.jpg",
				AltText:        "chlorotic leaf",
				SectionHeading: "Symptoms",
			}},
		}},
		WordCount:  8,
		ImageCount: 1,
	}, nil
}

type fakeChunker struct {
	dropPerDoc int
}

func (f *fakeChunker) Chunk(pc *types.ParsedContent, sourceID string, base types.ChunkMetadata) ([]types.ChunkData, int) {
	content := pc.Sections[0].Text
	meta := base
	meta.ContentType = types.ChunkTypeSymptom
	meta.Section = pc.Sections[0].Heading
	return []types.ChunkData{{
		Content:     content,
		SourceID:    sourceID,
		ChunkIndex:  0,
		TokenCount:  len(content) / 4,
		ContentHash: chunk.ContentHash(sourceID, 0, content),
		Metadata:    meta,
	}}, f.dropPerDoc
}

type fakeEmbedder struct {
	chunkErr   error
	imageErr   error
	chunkCalls int
	imageCalls int
}

func (f *fakeEmbedder) EmbedChunks(_ context.Context, chunks []types.ChunkData) ([]types.ChunkData, error) {
	f.chunkCalls++
	if f.chunkErr != nil {
		return nil, f.chunkErr
	}
	out := make([]types.ChunkData, len(chunks))
	copy(out, chunks)
	for i := range out {
		out[i].Embedding = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedImages(_ context.Context, images []types.ProcessedImage) ([]types.ProcessedImage, error) {
	f.imageCalls++
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	out := make([]types.ProcessedImage, len(images))
	copy(out, images)
	for i := range out {
		out[i].Caption = "caption of " + out[i].Image.URL
		out[i].Embedding = []float32{0.4, 0.5}
	}
	return out, nil
}

func (f *fakeEmbedder) Cost() embed.CostSummary {
	return embed.CostSummary{EmbeddingTokens: 420, Batches: 2, USD: 0.0084}
}

type fakeStore struct {
	sources    []types.ScrapedDocument
	chunks     []types.ChunkData
	images     []types.ProcessedImage
	recomputed []uuid.UUID
	errored    map[string]string
}

func (f *fakeStore) UpsertSources(_ context.Context, docs []types.ScrapedDocument) (map[string]uuid.UUID, error) {
	f.sources = append(f.sources, docs...)
	ids := make(map[string]uuid.UUID, len(docs))
	for _, d := range docs {
		ids[d.URL] = uuid.New()
	}
	return ids, nil
}

func (f *fakeStore) UpsertTextChunks(_ context.Context, chunks []types.ChunkData) (db.UpsertStats, error) {
	f.chunks = append(f.chunks, chunks...)
	return db.UpsertStats{Inserted: len(chunks)}, nil
}

func (f *fakeStore) UpsertImageChunks(_ context.Context, images []types.ProcessedImage) (db.UpsertStats, error) {
	f.images = append(f.images, images...)
	return db.UpsertStats{Inserted: len(images)}, nil
}

func (f *fakeStore) RecomputeChunkCounts(_ context.Context, sourceIDs []uuid.UUID) error {
	f.recomputed = append(f.recomputed, sourceIDs...)
	return nil
}

func (f *fakeStore) MarkSourceError(_ context.Context, url, reason string) error {
	if f.errored == nil {
		f.errored = make(map[string]string)
	}
	f.errored[url] = reason
	return nil
}

const fixtureHTML = `<!DOCTYPE html><html><body><h2>Symptoms</h2><p>text</p></body></html>`

func testDescriptors(urls ...string) []sources.Descriptor {
	out := make([]sources.Descriptor, 0, len(urls))
	for _, u := range urls {
		out = append(out, sources.Descriptor{
			URL:         u,
			Title:       "Fixture " + u,
			SourceType:  sources.TypeExtensionBulletin,
			Institution: "Test Extension",
			Crops:       []string{"corn"},
			Region:      "midwest",
			Priority:    "high",
		})
	}
	return out
}

func newTestPipeline(t *testing.T, fetcher *fakeFetcher, store *fakeStore) (*Pipeline, *fakeEmbedder, string) {
	t.Helper()
	dir := t.TempDir()
	embedder := &fakeEmbedder{}
	p := &Pipeline{
		Fetcher:   fetcher,
		Parser:    &fakeParser{},
		Chunker:   &fakeChunker{},
		Embedder:  embedder,
		Snapshots: NewSnapshots(dir),
	}
	if store != nil {
		p.Store = store
	}
	return p, embedder, dir
}

func TestRun_FullPipeline(t *testing.T) {
	urls := []string{"https://a.example/corn", "https://b.example/soy"}
	fetcher := &fakeFetcher{html: map[string]string{
		urls[0]: fixtureHTML,
		urls[1]: fixtureHTML,
	}}
	store := &fakeStore{}
	p, _, dir := newTestPipeline(t, fetcher, store)

	report, err := p.Run(context.Background(), Options{Descriptors: testDescriptors(urls...)})
	require.NoError(t, err)

	assert.Equal(t, 2, report.SourcesPlanned)
	assert.Equal(t, 0, report.Unreachable)
	assert.Equal(t, 2, report.Scraped)
	assert.Equal(t, 2, report.Parsed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, report.TextChunks)
	assert.Equal(t, 2, report.EmbeddedChunks)
	assert.Equal(t, db.UpsertStats{Inserted: 2}, report.ChunkUpserts)
	assert.Equal(t, 2, report.ImagesFound)
	assert.Equal(t, 2, report.ImagesCaptioned)
	assert.Equal(t, db.UpsertStats{Inserted: 2}, report.ImageUpserts)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, 420, report.Cost.EmbeddingTokens)

	// The store received embedded chunks and captioned images.
	require.Len(t, store.chunks, 2)
	assert.NotEmpty(t, store.chunks[0].Embedding)
	assert.Equal(t, "Test Extension", store.chunks[0].Metadata.Institution)
	require.Len(t, store.images, 2)
	assert.Contains(t, store.images[0].Caption, "caption of")
	assert.Equal(t, types.ChunkTypeImage, store.images[0].Metadata.ContentType)
	assert.Len(t, store.recomputed, 2)

	// Every snapshot file exists and is single-line JSON.
	for _, name := range []string{ScrapedDocumentsFile, URLStatusFile, FailedDocumentsFile, SummaryFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotContains(t, string(data), "\n", "%s must be newline-free", name)
	}
}

func TestRun_UnreachableURLDropped(t *testing.T) {
	good, dead := "https://a.example/corn", "https://b.example/gone"
	fetcher := &fakeFetcher{
		html:      map[string]string{good: fixtureHTML},
		checkCode: map[string]int{dead: 404},
	}
	store := &fakeStore{}
	p, _, dir := newTestPipeline(t, fetcher, store)

	report, err := p.Run(context.Background(), Options{Descriptors: testDescriptors(good, dead)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unreachable)
	assert.Equal(t, 1, report.Scraped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, OutcomePartial, report.Outcome)
	assert.NotContains(t, fetcher.htmlCalls, dead, "unreachable URL must not be fetched")

	data, err := os.ReadFile(filepath.Join(dir, URLStatusFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reachable":true`)
	assert.Contains(t, string(data), `"reachable":false`)
	assert.Contains(t, string(data), `"status_code":404`)
}

func TestRun_ParseFailureContinues(t *testing.T) {
	good, bad := "https://a.example/corn", "https://b.example/empty"
	fetcher := &fakeFetcher{html: map[string]string{
		good: fixtureHTML,
		bad:  fixtureHTML,
	}}
	store := &fakeStore{}
	p, _, dir := newTestPipeline(t, fetcher, store)
	p.Parser = &fakeParser{fail: map[string]error{bad: errors.New("no main content found")}}

	report, err := p.Run(context.Background(), Options{Descriptors: testDescriptors(good, bad)})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scraped)
	assert.Equal(t, 1, report.Parsed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, OutcomePartial, report.Outcome)
	assert.Equal(t, "no main content found", store.errored[bad])

	data, err := os.ReadFile(filepath.Join(dir, FailedDocumentsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), bad)
	assert.Contains(t, string(data), "no main content found")
}

func TestRun_DryRunNeverTouchesStore(t *testing.T) {
	url := "https://a.example/corn"
	fetcher := &fakeFetcher{html: map[string]string{url: fixtureHTML}}
	// Store stays nil: any store call would panic.
	p, embedder, dir := newTestPipeline(t, fetcher, nil)

	report, err := p.Run(context.Background(), Options{
		Descriptors: testDescriptors(url),
		DryRun:      true,
	})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Scraped)
	assert.Equal(t, 1, report.EmbeddedChunks, "dry run still embeds")
	assert.Equal(t, db.UpsertStats{}, report.ChunkUpserts)
	assert.Equal(t, db.UpsertStats{}, report.ImageUpserts)
	assert.Equal(t, 1, embedder.chunkCalls)
	assert.Equal(t, OutcomeSuccess, report.Outcome)

	_, err = os.Stat(filepath.Join(dir, SummaryFile))
	assert.NoError(t, err, "dry run still writes the summary")
}

func TestRun_DryRunParseFailureSkipsMarkError(t *testing.T) {
	bad := "https://a.example/empty"
	fetcher := &fakeFetcher{html: map[string]string{bad: fixtureHTML}}
	p, _, _ := newTestPipeline(t, fetcher, nil)
	p.Parser = &fakeParser{fail: map[string]error{bad: errors.New("no main content found")}}

	report, err := p.Run(context.Background(), Options{
		Descriptors: testDescriptors(bad),
		DryRun:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, OutcomeFailed, report.Outcome, "nothing parsed means a failed outcome")
}

func TestRun_SkipScrapeLoadsSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := &fakeStore{}
	p, _, _ := newTestPipeline(t, fetcher, store)

	docs := []types.ScrapedDocument{{
		URL:         "https://a.example/corn",
		Title:       "Cached Corn Doc",
		RawContent:  []byte(fixtureHTML),
		ContentType: "html",
		SourceType:  sources.TypeExtensionBulletin,
		Metadata:    types.SourceMetadata{Institution: "Test Extension"},
	}}
	require.NoError(t, p.Snapshots.SaveScrapedDocuments(docs))

	report, err := p.Run(context.Background(), Options{SkipScrape: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scraped)
	assert.Equal(t, 1, report.Parsed)
	assert.Empty(t, fetcher.htmlCalls, "skip-scrape must not fetch")
	assert.Empty(t, fetcher.checkCalls, "skip-scrape bypasses validation")
	require.Len(t, store.sources, 1)
	assert.Equal(t, "Cached Corn Doc", store.sources[0].Title)
}

func TestRun_SkipScrapeWithoutSnapshotFails(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeFetcher{}, &fakeStore{})

	_, err := p.Run(context.Background(), Options{SkipScrape: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--skip-scrape")
}

func TestRun_SkipImages(t *testing.T) {
	url := "https://a.example/corn"
	fetcher := &fakeFetcher{html: map[string]string{url: fixtureHTML}}
	store := &fakeStore{}
	p, embedder, _ := newTestPipeline(t, fetcher, store)

	report, err := p.Run(context.Background(), Options{
		Descriptors: testDescriptors(url),
		SkipImages:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.ImagesFound)
	assert.Equal(t, 0, embedder.imageCalls)
	assert.Empty(t, store.images)
}

func TestRun_EmbedFailureAborts(t *testing.T) {
	url := "https://a.example/corn"
	fetcher := &fakeFetcher{html: map[string]string{url: fixtureHTML}}
	store := &fakeStore{}
	p, embedder, dir := newTestPipeline(t, fetcher, store)
	embedder.chunkErr = errors.New("rate limited after 5 attempts")

	_, err := p.Run(context.Background(), Options{Descriptors: testDescriptors(url)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding failed")
	assert.Empty(t, store.chunks)

	// Snapshots written before the failure survive for a --skip-scrape retry.
	_, statErr := os.Stat(filepath.Join(dir, ScrapedDocumentsFile))
	assert.NoError(t, statErr)
}

func TestRun_ImageEmbedFailureAborts(t *testing.T) {
	url := "https://a.example/corn"
	fetcher := &fakeFetcher{html: map[string]string{url: fixtureHTML}}
	store := &fakeStore{}
	p, embedder, _ := newTestPipeline(t, fetcher, store)
	embedder.imageErr = errors.New("vision model unavailable")

	_, err := p.Run(context.Background(), Options{Descriptors: testDescriptors(url)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image embedding failed")
	assert.NotEmpty(t, store.chunks, "text chunks land before the image phases")
}

func TestRun_PDFLinkServingHTML(t *testing.T) {
	url := "https://a.example/guides/corn.pdf"
	fetcher := &fakeFetcher{pdf: map[string][]byte{
		url: []byte(`<!DOCTYPE html><html><body>Not Found</body></html>`),
	}}
	store := &fakeStore{}
	p, _, _ := newTestPipeline(t, fetcher, store)

	report, err := p.Run(context.Background(), Options{Descriptors: testDescriptors(url)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scraped)
	assert.Equal(t, []string{url}, fetcher.pdfCalls, "pdf suffix picks the fetch path")
	assert.Empty(t, fetcher.htmlCalls)
	require.Len(t, store.sources, 1)
	assert.Equal(t, "html", store.sources[0].ContentType,
		"payload bytes decide the content type, not the URL")
}

func TestRun_LimitCapsRun(t *testing.T) {
	urls := []string{"https://a.example/1", "https://b.example/2", "https://c.example/3"}
	fetcher := &fakeFetcher{html: map[string]string{
		urls[0]: fixtureHTML,
		urls[1]: fixtureHTML,
		urls[2]: fixtureHTML,
	}}
	store := &fakeStore{}
	p, _, _ := newTestPipeline(t, fetcher, store)

	report, err := p.Run(context.Background(), Options{
		Descriptors: testDescriptors(urls...),
		Limit:       2,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.SourcesPlanned)
	assert.Equal(t, 2, report.Scraped)
	assert.Len(t, fetcher.checkCalls, 2)
}

func TestRun_DescriptorUseBrowserPropagates(t *testing.T) {
	url := "https://spa.example/corn"
	fetcher := &fakeFetcher{html: map[string]string{url: fixtureHTML}}
	store := &fakeStore{}
	p, _, _ := newTestPipeline(t, fetcher, store)

	descriptors := testDescriptors(url)
	descriptors[0].UseBrowser = true

	_, err := p.Run(context.Background(), Options{Descriptors: descriptors})
	require.NoError(t, err)

	require.Len(t, fetcher.browser, 1)
	assert.True(t, fetcher.browser[0])
}

func TestRun_DroppedChunksReported(t *testing.T) {
	url := "https://a.example/corn"
	fetcher := &fakeFetcher{html: map[string]string{url: fixtureHTML}}
	store := &fakeStore{}
	p, _, _ := newTestPipeline(t, fetcher, store)
	p.Chunker = &fakeChunker{dropPerDoc: 3}

	report, err := p.Run(context.Background(), Options{Descriptors: testDescriptors(url)})
	require.NoError(t, err)
	assert.Equal(t, 3, report.DroppedProductChunks)
	assert.Equal(t, OutcomeSuccess, report.Outcome, "suppressed chunks are not failures")
}
