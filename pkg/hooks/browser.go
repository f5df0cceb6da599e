// pkg/hooks/browser.go
package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/valpere/ResilientFetch/internal/fallback"
)

// BrowserOptions tunes the headless-browser hook.
type BrowserOptions struct {
	// Timeout bounds the whole navigate-and-render pass. Zero means 60s.
	Timeout time.Duration
	// WaitVisible, when set, delays extraction until this selector renders.
	WaitVisible string
}

// NewBrowserHook builds a scraping hook that renders url in a headless
// browser before extracting the selector's matches. Use it for sources whose
// markup is script-generated; plain pages are cheaper through NewHTMLHook.
func NewBrowserHook(url, selector string, opts BrowserOptions) fallback.ScrapingHook {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return func(ctx context.Context, query string) ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
			append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", true),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
			)...)
		defer allocCancel()

		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		defer browserCancel()

		actions := []chromedp.Action{chromedp.Navigate(url)}
		if opts.WaitVisible != "" {
			actions = append(actions, chromedp.WaitVisible(opts.WaitVisible, chromedp.ByQuery))
		}
		var html string
		actions = append(actions, chromedp.OuterHTML("html", &html))

		if err := chromedp.Run(browserCtx, actions...); err != nil {
			return nil, fmt.Errorf("browser rendering failed: %w", err)
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("failed to parse rendered HTML: %w", err)
		}
		return extract(doc, url, selector)
	}
}
