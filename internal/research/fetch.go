// Package research fetches and condenses source material for article research.
package research

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout bounds a single source fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies draftsmith to source servers.
	DefaultUserAgent = "Mozilla/5.0 (compatible; draftsmith/1.0)"

	// maxConcurrentFetches caps parallel source downloads.
	maxConcurrentFetches = 4

	// maxSourceChars truncates extracted text so prompts stay bounded.
	maxSourceChars = 6000
)

// Source holds the extracted content of one fetched URL.
type Source struct {
	URL        string
	Title      string
	Text       string
	StatusCode int
}

// Error reports a failure fetching or parsing a single source.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fetcher downloads source pages and extracts their main text.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxChars  int
	log       *slog.Logger
}

// NewFetcher returns a Fetcher with the given timeout. A zero timeout
// falls back to DefaultTimeout.
func NewFetcher(timeout time.Duration, log *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: DefaultUserAgent,
		maxChars:  maxSourceChars,
		log:       log,
	}
}

// Fetch retrieves one URL and extracts its title and main body text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Source, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &Error{URL: rawURL, Message: "invalid URL", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "building request", Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "reading body", Cause: err}
	}

	title, text, err := extractText(string(body))
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "parsing HTML", Cause: err}
	}
	if len(text) > f.maxChars {
		text = text[:f.maxChars]
	}

	return &Source{
		URL:        rawURL,
		Title:      title,
		Text:       text,
		StatusCode: resp.StatusCode,
	}, nil
}

// FetchAll downloads the given URLs concurrently. Individual failures are
// logged and skipped so one dead link does not sink the research pass; the
// returned slice holds only the sources that succeeded, in input order.
// It returns an error only when the context is cancelled.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]Source, error) {
	results := make([]*Source, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, u := range urls {
		g.Go(func() error {
			src, err := f.Fetch(gctx, u)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.log.Warn("source fetch failed", "url", u, "error", err)
				return nil
			}
			results[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(urls))
	for _, src := range results {
		if src != nil {
			sources = append(sources, *src)
		}
	}
	return sources, nil
}

// contentSelectors locate the main content region, tried in order.
var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".post-content",
	".article-body",
}

// extractText parses HTML and returns the page title and main body text
// with navigation chrome and scripts stripped out.
func extractText(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("nav, footer, header, script, style, noscript, aside, .ad, .ads, .sidebar, .cookie-banner").Remove()

	var main *goquery.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			main = s.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	return title, cleanWhitespace(main.Text()), nil
}

// cleanWhitespace collapses blank lines and trims each remaining one.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// Digest renders fetched sources as a context block for a research prompt.
// It returns the empty string when there are no sources.
func Digest(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Source material:\n")
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n%s\n", i+1, title, src.URL, src.Text)
	}
	return b.String()
}
