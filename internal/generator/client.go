package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/intellisearch/synthesizer/internal/metrics"
	"github.com/intellisearch/synthesizer/internal/synthesis"
	"github.com/intellisearch/synthesizer/internal/tracing"
)

const (
	defaultServiceURL = "http://generation-service:8000"
	defaultMaxRetries = 2
	defaultRateLimit  = 5.0 // requests per second
	defaultBurst      = 10

	// Dynamic timeout: base plus a per-requested-word allowance, capped.
	baseTimeout    = 60 * time.Second
	timeoutPerWord = 50 * time.Millisecond
	maxTimeout     = 300 * time.Second
)

// Config holds generation service client settings.
type Config struct {
	BaseURL    string  `mapstructure:"base_url"`
	MaxRetries int     `mapstructure:"max_retries"`
	RateLimit  float64 `mapstructure:"rate_limit"`
	Burst      int     `mapstructure:"burst"`
}

// Client calls the external text-generation service over HTTP. It implements
// synthesis.Generator. Requests are rate limited and retried on transient
// failures; a hard failure surfaces as an error and the synthesis engine
// degrades to a placeholder.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
}

// NewClient builds a generation client. An empty BaseURL falls back to the
// GENERATION_SERVICE_URL environment variable, then the in-cluster default.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("GENERATION_SERVICE_URL")
	}
	if baseURL == "" {
		baseURL = defaultServiceURL
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = defaultMaxRetries
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{}, // per-request timeouts via context
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries: retries,
		logger:     logger,
	}
}

// generationRequest is the wire format of a section draft request.
type generationRequest struct {
	Query       string  `json:"query"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	AgentID     string  `json:"agent_id"`
}

// generationResponse mirrors the generation service's reply envelope.
type generationResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Metadata struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"metadata"`
	ModelUsed string `json:"model_used"`
	Provider  string `json:"provider"`
}

// GenerateSection drafts one report section from its evidence chunks.
func (c *Client) GenerateSection(ctx context.Context, req synthesis.SectionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, span := tracing.StartSpan(ctx, "generator.section")
	defer span.End()

	body, err := json.Marshal(generationRequest{
		Query:       buildSectionPrompt(req),
		MaxTokens:   maxTokensFor(req.TargetWords),
		Temperature: 0.3,
		AgentID:     "report_synthesizer",
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	timeout := baseTimeout + time.Duration(req.TargetWords)*timeoutPerWord
	if timeout > maxTimeout {
		timeout = maxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.GeneratorRetries.Inc()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		text, retryable, err := c.doRequest(ctx, body)
		if err == nil {
			metrics.GeneratorRequests.WithLabelValues("ok").Inc()
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("Generation request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.String("section", req.Title),
			zap.Error(err),
		)
	}

	metrics.GeneratorRequests.WithLabelValues("error").Inc()
	return "", fmt.Errorf("generate section %q: %w", req.Title, lastErr)
}

// doRequest performs one HTTP attempt. retryable reports whether the failure
// is worth another attempt (network errors and 5xx responses are; 4xx and
// malformed replies are not).
func (c *Client) doRequest(ctx context.Context, body []byte) (string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/agent/query", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("generation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("generation service returned HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("generation service returned HTTP %d", resp.StatusCode)
	}

	var genResp generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", false, fmt.Errorf("decode generation response: %w", err)
	}
	if !genResp.Success {
		return "", false, fmt.Errorf("generation service reported failure")
	}
	return strings.TrimSpace(genResp.Response), false, nil
}

// buildSectionPrompt assembles the drafting instruction: the section
// contract, the avoid-repetition directive, and the numbered evidence chunks.
func buildSectionPrompt(req synthesis.SectionRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Write the %q section of a research report on: %s\n", req.Title, req.Topic)
	fmt.Fprintf(&sb, "Target length: about %d words of markdown prose. Do not include the section heading.\n", req.TargetWords)
	fmt.Fprintf(&sb, "Reference evidence inline using its bracketed number, e.g. [2].\n")
	if req.Directive != "" {
		sb.WriteString(req.Directive)
		sb.WriteString("\n")
	}

	if len(req.Chunks) > 0 {
		sb.WriteString("\n## Evidence:\n")
		for _, chunk := range req.Chunks {
			content := chunk.Content
			if len(content) > 1500 {
				content = content[:1500] + "..."
			}
			fmt.Fprintf(&sb, "[%d] %s (%s)\n    %s\n", chunk.CitationNumber, chunk.SourceTitle, chunk.SourceURL, content)
		}
	}

	return sb.String()
}

// maxTokensFor gives the model headroom above the word target. Roughly 1.5
// tokens per word, doubled for slack, floored for very small sections.
func maxTokensFor(targetWords int) int {
	tokens := targetWords * 3
	if tokens < 512 {
		tokens = 512
	}
	if tokens > 8192 {
		tokens = 8192
	}
	return tokens
}
