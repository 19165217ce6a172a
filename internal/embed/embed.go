// Package embed turns chunk text and image captions into vectors through a
// batched provider client. Batches are packed under a conservative
// per-request token ceiling, retried with backoff on rate limits, and
// bisected when the provider still rejects a request for length; batches
// run strictly sequentially to respect shared rate limits.
package embed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fieldwise/agrokb/internal/chunk"
	"github.com/fieldwise/agrokb/internal/tokens"
	"github.com/fieldwise/agrokb/internal/types"
)

// DefaultMaxTokensPerRequest stays well under the provider's advertised
// 20k-token request ceiling: the chars/4 estimate drifts from the
// provider's tokenizer, and the margin absorbs that drift.
const DefaultMaxTokensPerRequest = 18000

const (
	// MaxRetries bounds rate-limit retries per request.
	MaxRetries = 5

	retryBaseDelay  = time.Second
	interBatchDelay = 200 * time.Millisecond

	truncationMarker = "...[truncated]"
)

// Client is the provider surface the embedder needs. GeminiClient is the
// production implementation; tests substitute fakes.
type Client interface {
	// EmbedBatch embeds texts in one request, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Caption describes an image. Image data may be nil for text-only
	// prompts; format is the image subtype ("jpeg", "png").
	Caption(ctx context.Context, prompt string, image []byte, format string) (string, error)
	// ModelName returns the embedding model identifier, stamped into chunk
	// metadata so rows embedded by older models stay identifiable.
	ModelName() string
	// Close releases any resources held by the client.
	Close() error
}

// Embedder batches text through a Client. Construct with New; fields may be
// tuned before first use.
type Embedder struct {
	MaxTokensPerRequest int
	CaptionMode         CaptionMode
	// FetchImage retrieves image bytes for vision captioning. Defaults to a
	// plain HTTP GET; tests substitute a stub.
	FetchImage ImageFetchFunc
	Verbose    bool

	client Client
	cost   *CostTracker
	sleep  func(context.Context, time.Duration) error
}

// New returns an Embedder with default limits over the given client.
func New(client Client) *Embedder {
	return &Embedder{
		MaxTokensPerRequest: DefaultMaxTokensPerRequest,
		CaptionMode:         CaptionModeText,
		FetchImage:          fetchImageHTTP,
		client:              client,
		cost:                NewCostTracker(),
		sleep:               sleepCtx,
	}
}

// Cost returns the usage accumulated so far.
func (e *Embedder) Cost() CostSummary {
	return e.cost.Summary()
}

// item is one embeddable text plus the identity used in error reports and
// the destination its vector is written to.
type item struct {
	text   string
	ref    string // chunk content hash or image URL
	tokens int
	assign func(vec []float32)
}

// EmbedChunks embeds every chunk's content and returns a copy with vectors
// and the embedding model stamped into metadata. Order is preserved. A
// chunk whose estimate exceeds the request ceiling (whole-table chunks are
// unbounded) is truncated to fit and its token count and hash recomputed,
// so the stored hash stays a true digest of the stored content.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []types.ChunkData) ([]types.ChunkData, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	out := make([]types.ChunkData, len(chunks))
	copy(out, chunks)

	model := e.client.ModelName()
	items := make([]*item, len(out))
	for i := range out {
		ch := &out[i]
		if est := tokens.Estimate(ch.Content); est > e.MaxTokensPerRequest {
			e.vlogf("[EMBED] chunk %s estimated at %d tokens, truncating to fit the request ceiling", ch.ContentHash, est)
			ch.Content = truncateToFit(ch.Content, e.MaxTokensPerRequest)
			ch.TokenCount = tokens.Estimate(ch.Content)
			ch.ContentHash = chunk.ContentHash(ch.SourceID, ch.ChunkIndex, ch.Content)
		}
		items[i] = &item{
			text:   ch.Content,
			ref:    ch.ContentHash,
			tokens: tokens.Estimate(ch.Content),
			assign: func(vec []float32) {
				ch.Embedding = vec
				ch.Metadata.EmbeddingModel = model
			},
		}
	}

	if err := e.embedItems(ctx, items); err != nil {
		return nil, err
	}
	return out, nil
}

// embedItems packs items into batches under the request ceiling and ships
// them sequentially with a fixed inter-batch delay.
func (e *Embedder) embedItems(ctx context.Context, items []*item) error {
	batches := packItems(items, e.MaxTokensPerRequest)
	for i, batch := range batches {
		if i > 0 {
			if err := e.sleep(ctx, interBatchDelay); err != nil {
				return err
			}
		}
		if err := e.shipBatch(ctx, batch); err != nil {
			return err
		}
		e.vlogf("[EMBED] batch %d/%d done (%d texts); running cost %s",
			i+1, len(batches), len(batch), e.cost.Summary())
	}
	return nil
}

// packItems greedily fills batches while the running token sum stays under
// the ceiling. Items are assumed individually under the ceiling.
func packItems(items []*item, ceiling int) [][]*item {
	var batches [][]*item
	var cur []*item
	curTokens := 0
	for _, it := range items {
		if len(cur) > 0 && curTokens+it.tokens > ceiling {
			batches = append(batches, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, it)
		curTokens += it.tokens
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// shipBatch embeds one batch, retrying rate limits and bisecting on
// provider length rejections.
func (e *Embedder) shipBatch(ctx context.Context, batch []*item) error {
	texts := make([]string, len(batch))
	total := 0
	for i, it := range batch {
		texts[i] = it.text
		total += it.tokens
	}

	var vecs [][]float32
	err := e.withRateLimitRetry(ctx, func() error {
		var callErr error
		vecs, callErr = e.client.EmbedBatch(ctx, texts)
		return callErr
	})
	if err != nil {
		if IsContextLength(err) {
			return e.bisectBatch(ctx, batch, err)
		}
		return &Error{Message: fmt.Sprintf("embedding batch of %d", len(batch)), Cause: err}
	}
	if len(vecs) != len(batch) {
		return &Error{Message: fmt.Sprintf("embedding count mismatch: sent %d texts, got %d vectors", len(batch), len(vecs))}
	}

	for i, it := range batch {
		it.assign(vecs[i])
	}
	e.cost.AddEmbedding(total)
	return nil
}

// bisectBatch handles a provider length rejection by splitting the batch in
// half and shipping each half independently. Halving terminates at size 1;
// a singleton the provider still rejects is the terminal TokenCeilingError.
func (e *Embedder) bisectBatch(ctx context.Context, batch []*item, cause error) error {
	if len(batch) == 1 {
		return &TokenCeilingError{Ref: batch[0].ref, TokenCount: batch[0].tokens, Cause: cause}
	}
	e.vlogf("[EMBED] provider rejected a batch of %d for length, bisecting", len(batch))
	mid := len(batch) / 2
	if err := e.shipBatch(ctx, batch[:mid]); err != nil {
		return err
	}
	return e.shipBatch(ctx, batch[mid:])
}

// withRateLimitRetry runs op, retrying with exponential backoff while it
// fails rate-limited, up to MaxRetries attempts. Other errors return
// immediately.
func (e *Embedder) withRateLimitRetry(ctx context.Context, op func() error) error {
	delay := retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsRateLimited(lastErr) {
			return lastErr
		}
		if attempt == MaxRetries {
			break
		}
		e.vlogf("[EMBED] rate limited (attempt %d/%d), retrying in %s", attempt, MaxRetries, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return fmt.Errorf("rate limited after %d attempts: %w", MaxRetries, lastErr)
}

// truncateToFit returns the longest prefix of content that still fits the
// ceiling with the truncation marker appended, binary-searched over rune
// length and re-estimated per probe.
func truncateToFit(content string, ceiling int) string {
	runes := []rune(content)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if tokens.Estimate(string(runes[:mid])+truncationMarker) <= ceiling {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.TrimSpace(string(runes[:lo])) + truncationMarker
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Embedder) vlogf(format string, args ...any) {
	if e.Verbose {
		log.Printf(format, args...)
	}
}
