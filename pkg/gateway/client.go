package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tb0hdan/polyprompt-mcp/pkg/cost"
	"github.com/tb0hdan/polyprompt-mcp/pkg/registry"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	chatCompletionsPath = "/chat/completions"
	maxErrorBodyBytes   = 4 << 10
)

// Invoker performs a single model call. Implementations never return an
// error; failures are reported through Result.Error.
type Invoker interface {
	Invoke(ctx context.Context, prompt, model string) Result
}

// Config holds the upstream gateway settings.
type Config struct {
	BaseURL string
	APIKey  string
	// CallTimeout bounds each model call. Zero disables the limit.
	CallTimeout time.Duration
	// Referer and Title are sent as HTTP-Referer / X-Title attribution headers when set.
	Referer string
	Title   string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	logger      zerolog.Logger
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	referer     string
	title       string
	callTimeout time.Duration
	registry    *registry.Registry
	estimator   *cost.Estimator
}

// Compile-time interface check.
var _ Invoker = (*Client)(nil)

// statusError describes a non-2xx upstream response.
type statusError struct {
	StatusCode int
	Message    string
}

func (e *statusError) Error() string {
	msg := fmt.Sprintf("upstream returned status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// NewClient creates a gateway client. A nil registry falls back to the
// built-in catalog.
func NewClient(logger zerolog.Logger, cfg Config, reg *registry.Registry) *Client {
	if reg == nil {
		reg = registry.New()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		logger:      logger.With().Str("component", "gateway").Logger(),
		httpClient:  httpClient,
		endpoint:    baseURL + chatCompletionsPath,
		apiKey:      cfg.APIKey,
		referer:     cfg.Referer,
		title:       cfg.Title,
		callTimeout: cfg.CallTimeout,
		registry:    reg,
		estimator:   cost.NewEstimator(reg),
	}
}

// Invoke sends prompt to model and normalizes the outcome. Latency is always
// recorded, including on failure.
func (c *Client) Invoke(ctx context.Context, prompt, model string) (result Result) {
	start := time.Now()
	upstreamID, provider := c.registry.Resolve(model)
	result = Result{Model: model, Provider: provider}

	defer func() {
		if r := recover(); r != nil {
			result = failed(model, provider, fmt.Errorf("panic: %v", r))
		}
		result.LatencyMs = time.Since(start).Milliseconds()
	}()

	output, usage, err := c.complete(ctx, upstreamID, prompt)
	if err != nil {
		c.logger.Warn().Err(err).Str("model", model).Str("upstream", upstreamID).Msg("model call failed")
		return failed(model, provider, err)
	}

	result.Output = &output
	result.TokensIn = usage.PromptTokens
	result.TokensOut = usage.CompletionTokens
	result.CostUSD = c.estimator.Estimate(model, usage.PromptTokens, usage.CompletionTokens)

	c.logger.Debug().
		Str("model", model).
		Int("tokens_in", result.TokensIn).
		Int("tokens_out", result.TokensOut).
		Float64("cost_usd", result.CostUSD).
		Msg("model call completed")

	return result
}

func failed(model, provider string, err error) Result {
	msg := err.Error()
	return Result{
		Model:    model,
		Provider: provider,
		Error:    &msg,
	}
}

func (c *Client) complete(ctx context.Context, upstreamID, prompt string) (string, chatCompletionUsage, error) {
	var usage chatCompletionUsage

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:    upstreamID,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", usage, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", usage, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", usage, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", usage, &statusError{
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(raw),
		}
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", usage, fmt.Errorf("decoding response: %w", err)
	}

	output := ""
	if len(decoded.Choices) > 0 {
		output = decoded.Choices[0].Message.Content
	}
	if decoded.Usage != nil {
		usage = *decoded.Usage
	}

	return output, usage, nil
}

func parseErrorMessage(raw []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == nil {
		return ""
	}
	return strings.TrimSpace(env.Error.Message)
}
