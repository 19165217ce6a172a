package embed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldwise/agrokb/internal/prompts"
	"github.com/fieldwise/agrokb/internal/tokens"
	"github.com/fieldwise/agrokb/internal/types"
)

// CaptionMode selects how image descriptions are derived before embedding.
type CaptionMode string

const (
	// CaptionModeVision fetches each image and asks the vision model to
	// describe it.
	CaptionModeVision CaptionMode = "vision"
	// CaptionModeText concatenates the alt/caption/context text already
	// extracted from the page. Free, but only as good as the page markup.
	CaptionModeText CaptionMode = "text"
)

// captionConcurrency bounds the vision fan-out. Text embedding stays
// sequential; only per-image caption calls run concurrently.
const captionConcurrency = 5

// imageInputTokens is the provider's flat per-image token charge.
const imageInputTokens = 258

const (
	imageFetchTimeout = 30 * time.Second
	maxImageBytes     = 8 << 20
)

// ImageFetchFunc retrieves image bytes plus their format ("jpeg", "png")
// for vision captioning.
type ImageFetchFunc func(ctx context.Context, url string) ([]byte, string, error)

// EmbedImages derives a caption per image according to the configured mode,
// embeds the captions like chunk text, and returns the images that produced
// both. An image whose caption cannot be derived (vision failure, or no
// page text in text mode) is logged and skipped; embedding failures abort.
func (e *Embedder) EmbedImages(ctx context.Context, images []types.ProcessedImage) ([]types.ProcessedImage, error) {
	if len(images) == 0 {
		return nil, nil
	}

	out := make([]types.ProcessedImage, len(images))
	copy(out, images)

	// Caption fan-out. Failures skip the image rather than abort: one broken
	// image link must not cost the document its remaining images.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(captionConcurrency)
	for i := range out {
		g.Go(func() error {
			caption, err := e.caption(gctx, out[i].Image)
			if err != nil {
				e.vlogf("[EMBED] captioning %s failed, skipping image: %v", out[i].Image.URL, err)
				return nil
			}
			out[i].Caption = strings.TrimSpace(caption)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]types.ProcessedImage, 0, len(out))
	for _, img := range out {
		if img.Caption != "" {
			kept = append(kept, img)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	model := e.client.ModelName()
	items := make([]*item, len(kept))
	for i := range kept {
		img := &kept[i]
		if est := tokens.Estimate(img.Caption); est > e.MaxTokensPerRequest {
			img.Caption = truncateToFit(img.Caption, e.MaxTokensPerRequest)
		}
		items[i] = &item{
			text:   img.Caption,
			ref:    img.Image.URL,
			tokens: tokens.Estimate(img.Caption),
			assign: func(vec []float32) {
				img.Embedding = vec
				img.Metadata.EmbeddingModel = model
			},
		}
	}

	if err := e.embedItems(ctx, items); err != nil {
		return nil, err
	}
	return kept, nil
}

// caption derives the text to embed for one image.
func (e *Embedder) caption(ctx context.Context, img types.ImageData) (string, error) {
	if e.CaptionMode == CaptionModeVision {
		return e.visionCaption(ctx, img)
	}
	if !img.HasText() {
		return "", &Error{Message: fmt.Sprintf("image %s carries no alt, caption, or context text", img.URL)}
	}
	return textualCaption(img), nil
}

// textualCaption concatenates the description text the parser pulled from
// the page.
func textualCaption(img types.ImageData) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{img.AltText, img.Caption, img.Context} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ". ")
}

// visionCaption fetches the image and asks the caption model to describe
// it, retrying rate limits like any other provider call.
func (e *Embedder) visionCaption(ctx context.Context, img types.ImageData) (string, error) {
	data, format, err := e.FetchImage(ctx, img.URL)
	if err != nil {
		return "", &Error{Message: "fetching image " + img.URL, Cause: err}
	}

	prompt := visionPrompt(img)

	var caption string
	err = e.withRateLimitRetry(ctx, func() error {
		var callErr error
		caption, callErr = e.client.Caption(ctx, prompt, data, format)
		return callErr
	})
	if err != nil {
		return "", err
	}

	e.cost.AddCaption(tokens.Estimate(prompt)+imageInputTokens, tokens.Estimate(caption))
	return caption, nil
}

// visionPrompt builds the caption prompt, folding in whatever page context
// the parser attached to the image.
func visionPrompt(img types.ImageData) string {
	context := textualCaption(img)
	if img.SectionHeading != "" {
		context = strings.TrimSpace(img.SectionHeading + ". " + context)
	}
	if context == "" {
		return prompts.MustGet("captioning.json", "describe-image-bare")
	}
	template := prompts.MustGet("captioning.json", "describe-image")
	return prompts.Format(template, map[string]string{
		"Context": context,
	})
}

// fetchImageHTTP is the default ImageFetchFunc: a plain GET with a size cap.
func fetchImageHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, imageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	return data, imageFormat(resp.Header.Get("Content-Type"), rawURL), nil
}

// imageFormat derives the genai image subtype from the response content
// type, falling back to the URL extension, then to jpeg.
func imageFormat(contentType, rawURL string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if f, ok := strings.CutPrefix(ct, "image/"); ok && f != "" {
		return f
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".png":
			return "png"
		case ".gif":
			return "gif"
		case ".webp":
			return "webp"
		}
	}
	return "jpeg"
}
