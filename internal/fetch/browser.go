// Package fetch - browser.go provides headless browser rendering for
// JS-rendered pages (interactive disease guides, SPA-style extension sites).
package fetch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the minimum visible text length below which a plain
// HTTP fetch is assumed to be a JavaScript shell and worth re-rendering.
const MinContentLength = 500

// ShouldUseBrowser reports whether extracted text is too short to be a real
// document body, indicating a JS-rendered page.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// renderPage renders rawURL in a headless browser, honoring the rate
// limiter and the browser's own hard timeout.
func (f *Fetcher) renderPage(ctx context.Context, rawURL string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	f.stats.Requests++
	f.stats.BrowserRenders++
	return RenderPage(ctx, rawURL, f.browserTimeout, f.verbose)
}

// RenderPage loads a page in headless Chrome, waits for the DOM to settle,
// and returns the serialized document. Requires Chrome/Chromium on the
// system.
func RenderPage(ctx context.Context, rawURL string, timeout time.Duration, verbose bool) (string, error) {
	if verbose {
		log.Printf("[BROWSER] Starting headless browser for: %s", rawURL)
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		// Give client-side rendering a moment to fill the page.
		chromedp.Sleep(3*time.Second),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Dismiss common cookie banners; ignore when absent.
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"]`, chromedp.NodeVisible).Do(ctx)
			return nil
		}),
		chromedp.Sleep(1*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	if verbose {
		log.Printf("[BROWSER] Rendered HTML: %d bytes", len(html))
	}

	return html, nil
}
