// Package completion provides a client for OpenAI-style text completion
// APIs. A single request carries a batch of prompts; the service expands
// each prompt into n sampled completions and returns a flat choice list
// ordered prompt-major.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/ragbench/genread/internal/resilience"
)

const defaultBaseURL = "https://api.openai.com"

// ErrOverloaded is returned when the service responds without a choices
// field or with an error field. The two are not distinguished: a
// malformed response from an overloaded service looks the same as a true
// overload, and both are retried.
var ErrOverloaded = eris.New("completion: service overloaded")

// Client performs batched text completions.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is the request body for POST /v1/completions.
type Request struct {
	Model       string   `json:"model"`
	Prompts     []string `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	N           int      `json:"n"`
}

// Response holds the flat completion texts, ordered prompt-major then
// sequence-minor, plus token usage when the service reports it.
type Response struct {
	Texts []string
	Usage Usage
}

// Usage reports token consumption for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiChoice struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   *Usage      `json:"usage"`
	Error   *apiError   `json:"error"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
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

// WithRetry overrides the default retry policy (50 attempts, 10s apart).
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRateLimiter gates each attempt behind limiter.Wait.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = limiter
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	limiter *rate.Limiter
}

// NewClient creates a completion API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.CompletionRetry(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.Logged("completion", "complete")
	}
	return c
}

// Complete issues one batched completion request, retrying overload and
// transport failures under the configured policy. On success the result
// holds exactly len(req.Prompts) × req.N texts. Retry exhaustion
// propagates the final error; the batch is not partially recovered.
func (c *httpClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.N <= 0 {
		req.N = 1
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "completion: rate limiter")
			}
		}
		return c.completeOnce(ctx, req)
	})
}

func (c *httpClient) completeOnce(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "completion: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "completion: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "completion: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "completion: read response")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("completion: status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("completion: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "completion: unmarshal response"), resp.StatusCode)
	}

	if result.Error != nil || result.Choices == nil {
		return nil, resilience.NewTransientError(overloadErr(result.Error), resp.StatusCode)
	}

	want := len(req.Prompts) * req.N
	if len(result.Choices) != want {
		return nil, resilience.NewTransientError(
			eris.Errorf("completion: got %d choices, want %d", len(result.Choices), want),
			resp.StatusCode,
		)
	}

	out := &Response{Texts: make([]string, 0, len(result.Choices))}
	for _, choice := range result.Choices {
		out.Texts = append(out.Texts, choice.Text)
	}
	if result.Usage != nil {
		out.Usage = *result.Usage
	}
	return out, nil
}

func overloadErr(apiErr *apiError) error {
	if apiErr != nil && apiErr.Message != "" {
		return eris.Wrapf(ErrOverloaded, "%s (%s)", apiErr.Message, apiErr.Type)
	}
	return ErrOverloaded
}
