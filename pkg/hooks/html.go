// pkg/hooks/html.go
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/ResilientFetch/internal/fallback"
)

// defaultUserAgent is sent when the caller does not supply a client with its
// own transport.
const defaultUserAgent = "ResilientFetch/1.0 (+https://github.com/valpere/ResilientFetch)"

// extraction is the JSON shape emitted by the HTML and browser hooks: the
// texts matched by the selector, in document order.
type extraction struct {
	URL       string    `json:"url"`
	Selector  string    `json:"selector"`
	Values    []string  `json:"values"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewHTMLHook builds a scraping hook that fetches url, parses it, and
// extracts the text of every node matching the CSS selector. The hook errors
// when the selector matches nothing, so the chain moves on instead of caching
// an empty extraction.
func NewHTMLHook(url, selector string, client *http.Client) fallback.ScrapingHook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return func(ctx context.Context, query string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", defaultUserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML: %w", err)
		}
		return extract(doc, url, selector)
	}
}

// extract pulls the selector's matches out of a parsed document.
func extract(doc *goquery.Document, url, selector string) ([]byte, error) {
	var values []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			values = append(values, text)
		}
	})
	if len(values) == 0 {
		return nil, fmt.Errorf("selector %q matched nothing at %s", selector, url)
	}

	return json.Marshal(extraction{
		URL:       url,
		Selector:  selector,
		Values:    values,
		FetchedAt: time.Now().UTC(),
	})
}
