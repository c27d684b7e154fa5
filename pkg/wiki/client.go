// Package wiki provides a client for the MediaWiki action API. It fetches
// article source for a batch of topics in a single query and normalizes
// the text for use as background passages.
package wiki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ragbench/genread/internal/resilience"
)

const (
	defaultBaseURL = "https://en.wikipedia.org/w/api.php"

	// maxPageChars bounds each article's contribution to a prompt.
	maxPageChars = 10_000
)

// Client fetches encyclopedia pages for topic keys.
type Client interface {
	FetchPages(ctx context.Context, topics []string) (*PageResult, error)
}

// PageResult pairs normalized page texts with their resolved titles.
// Pages and Titles are index-aligned with each other, but not with the
// requested topics: the service reorders and follows redirects, so a
// resolved title may differ from the topic that produced it.
type PageResult struct {
	Pages  []string
	Titles []string
}

type querySlot struct {
	Content string `json:"*"`
}

type queryRevision struct {
	Slots map[string]querySlot `json:"slots"`
}

type queryPage struct {
	Title     string          `json:"title"`
	Missing   json.RawMessage `json:"missing"`
	Revisions []queryRevision `json:"revisions"`
}

type queryContainer struct {
	Pages map[string]queryPage `json:"pages"`
}

type queryResponse struct {
	Warnings json.RawMessage `json:"warnings"`
	Query    *queryContainer `json:"query"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the default retry policy (3 attempts, 10s apart).
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a MediaWiki query client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.FetchRetry(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.Logged("wiki", "fetch_pages")
	}
	return c
}

// FetchPages looks up every topic in one batched query. Pages that are
// missing or have no revision content (deleted pages, broken redirects)
// are skipped; a response carrying a warning or no query container
// degrades to an empty result rather than an error. Lookups are
// idempotent and cheap next to generation, so the whole call is retried
// on transient failure.
func (c *httpClient) FetchPages(ctx context.Context, topics []string) (*PageResult, error) {
	// A lone empty topic is the "nothing extracted" sentinel; skip the
	// network round-trip entirely.
	if len(topics) == 0 || (len(topics) == 1 && topics[0] == "") {
		return &PageResult{Pages: []string{}, Titles: []string{}}, nil
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*PageResult, error) {
		return c.fetchOnce(ctx, topics)
	})
}

func (c *httpClient) fetchOnce(ctx context.Context, topics []string) (*PageResult, error) {
	params := url.Values{
		"action":    {"query"},
		"titles":    {strings.Join(topics, "|")},
		"format":    {"json"},
		"prop":      {"revisions"},
		"rvslots":   {"*"},
		"rvprop":    {"content"},
		"redirects": {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "wiki: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wiki: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wiki: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("wiki: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("wiki: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result queryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "wiki: unmarshal response"), resp.StatusCode)
	}

	out := &PageResult{Pages: []string{}, Titles: []string{}}

	// Warnings or an absent query container mean the batch as a whole
	// was rejected (oversized title list, bad characters). Background
	// documents are best-effort, so degrade to empty rather than fail.
	if len(result.Warnings) > 0 || result.Query == nil {
		zap.L().Warn("wiki: degraded response, returning no pages",
			zap.Int("topics", len(topics)),
			zap.ByteString("warnings", result.Warnings),
		)
		return out, nil
	}

	for _, page := range result.Query.Pages {
		if page.Missing != nil || len(page.Revisions) == 0 {
			continue
		}
		slot, ok := page.Revisions[0].Slots["main"]
		if !ok {
			continue
		}
		out.Pages = append(out.Pages, normalize(slot.Content))
		out.Titles = append(out.Titles, page.Title)
	}
	return out, nil
}

// normalize collapses all whitespace runs to single spaces and truncates
// to maxPageChars.
func normalize(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) > maxPageChars {
		return string(runes[:maxPageChars])
	}
	return collapsed
}
