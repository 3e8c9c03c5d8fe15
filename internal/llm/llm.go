// Package llm wraps the Anthropic Messages API with validation, token-budget
// truncation, classified retries, and usage/cost accounting. Pricing
// defaults match Anthropic's published Sonnet-class rates: $3/M input
// tokens, $15/M output tokens.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/avast/retry-go/v4"
	pkgerrors "github.com/pkg/errors"

	"github.com/tbourn/whatsapp-llm-gateway/internal/services"
)

// Roles accepted in a completion request's message list.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// tokenBudget is the default ceiling on the estimated token count of the
// retained message list before an API call.
const tokenBudget = 8000

// defaultMaxOutputTokens is the default maximum-output-token budget for a
// completion request.
const defaultMaxOutputTokens = 1024

// defaultSystemPrompt is used when the caller does not supply one.
const defaultSystemPrompt = "You are a helpful assistant responding to WhatsApp messages. Keep replies concise."

const (
	maxAttempts  = 3
	initialDelay = 1 * time.Second
)

// Message is one turn in a completion request's message list.
type Message struct {
	Role    string
	Content string
}

// Result is the metrics-carrying outcome of a completion request.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
	TokensUsed   int
	LatencyMs    int
	Model        string
	StopReason   string
	Cost         float64
}

// pricing holds per-token USD rates. Defaults match Anthropic's published
// Sonnet-class pricing: $3/M input, $15/M output.
type pricing struct {
	inputPerToken  float64
	outputPerToken float64
}

var defaultPricing = pricing{
	inputPerToken:  3.0 / 1_000_000,
	outputPerToken: 15.0 / 1_000_000,
}

// priceTable holds per-model overrides; it is empty, so every model
// (including the configured default) is charged at defaultPricing.
var priceTable = map[string]pricing{}

func priceFor(model string) pricing {
	if p, ok := priceTable[model]; ok {
		return p
	}
	return defaultPricing
}

// apiResponse is a narrowed, SDK-independent view of a completion response,
// letting tests substitute a fake anthropicClient without constructing the
// SDK's response content-block union types.
type apiResponse struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// anthropicClient is the subset of the SDK client this package calls,
// narrowed to an interface so tests can substitute a fake without making
// real HTTP requests.
type anthropicClient interface {
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (apiResponse, error)
}

type sdkClientAdapter struct {
	client anthropic.Client
}

func (a sdkClientAdapter) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (apiResponse, error) {
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return apiResponse{}, err
	}
	return apiResponse{
		Text:         concatenateText(resp),
		Model:        string(resp.Model),
		StopReason:   string(resp.StopReason),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// Config configures a Service.
type Config struct {
	APIKey         string
	Model          string
	MaxOutputTokens int
	Temperature    float64
	SystemPrompt   string
	RequestTimeout time.Duration
}

// Service validates, truncates, and completes a conversation turn against
// the Anthropic Messages API.
type Service struct {
	client anthropicClient
	cfg    Config
}

// New constructs a Service backed by the real Anthropic client.
func New(cfg Config) *Service {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	client := anthropic.NewClient(opts...)
	return &Service{client: sdkClientAdapter{client: client}, cfg: cfg}
}

// newWithClient is a test seam allowing a fake anthropicClient.
func newWithClient(cfg Config, client anthropicClient) *Service {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Service{client: client, cfg: cfg}
}

// Validate rejects a malformed message list: empty, an item with an
// unrecognized role, an item whose content is empty after trimming, or a
// list whose last item is not role=user.
func Validate(messages []Message) error {
	if len(messages) == 0 {
		return pkgerrors.Wrap(services.ErrBadRequest, "message list must not be empty")
	}
	for i, m := range messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return pkgerrors.Wrapf(services.ErrBadRequest, "message %d has unrecognized role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return pkgerrors.Wrapf(services.ErrBadRequest, "message %d has empty content", i)
		}
	}
	if messages[len(messages)-1].Role != RoleUser {
		return pkgerrors.Wrap(services.ErrBadRequest, "last message must have role=user")
	}
	return nil
}

// estimateTokens approximates a token count as ceil(len(content)/4), the
// same heuristic used by the truncation budget.
func estimateTokens(content string) int {
	return int(math.Ceil(float64(len(content)) / 4))
}

// Truncate drops messages from the oldest end until the sum of estimated
// tokens across the retained list is at or under tokenBudget, preserving the
// suffix (most recent messages).
func Truncate(messages []Message) []Message {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}
	start := 0
	for total > tokenBudget && start < len(messages)-1 {
		total -= estimateTokens(messages[start].Content)
		start++
	}
	return messages[start:]
}

// CompleteWithMetrics validates, truncates, and completes messages, calling
// the Anthropic API with up to 3 attempts on a strict 1s/2s back-off
// schedule. It returns a classified sentinel error on exhaustion
// (services.ErrRateLimited / ErrBadRequest / ErrUnauthenticated /
// ErrUpstreamUnavailable / ErrUpstreamError).
func (s *Service) CompleteWithMetrics(ctx context.Context, messages []Message) (*Result, error) {
	if err := Validate(messages); err != nil {
		return nil, err
	}
	truncated := Truncate(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.cfg.Model),
		MaxTokens:   int64(s.cfg.MaxOutputTokens),
		Temperature: anthropic.Float(s.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: s.cfg.SystemPrompt}},
		Messages:    toAnthropicMessages(truncated),
	}

	start := time.Now()
	resp, err := s.callWithRetry(ctx, params)
	latency := time.Since(start)

	if err != nil {
		return nil, classifyError(err)
	}

	p := priceFor(resp.Model)
	cost := float64(resp.InputTokens)*p.inputPerToken + float64(resp.OutputTokens)*p.outputPerToken

	return &Result{
		Content:      resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TokensUsed:   resp.InputTokens + resp.OutputTokens,
		LatencyMs:    int(latency.Milliseconds()),
		Model:        resp.Model,
		StopReason:   resp.StopReason,
		Cost:         cost,
	}, nil
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(block))
		default:
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func concatenateText(resp *anthropic.Message) string {
	var parts []string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// callWithRetry runs the API call under retry.Do with a strict 1s/2s fixed
// back-off schedule and up to maxAttempts attempts, honoring ctx
// cancellation between attempts.
func (s *Service) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (apiResponse, error) {
	var resp apiResponse
	err := retry.Do(
		func() error {
			var apiErr error
			resp, apiErr = s.client.CreateMessage(ctx, params)
			return apiErr
		},
		retry.RetryIf(isRetryableError),
		retry.Attempts(maxAttempts),
		retry.Delay(initialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	return resp, err
}

// isRetryableError classifies an error as retryable per the gateway's
// policy: HTTP 429, HTTP >= 500, or a network-class error whose message
// matches timeout/network/econnreset (case-insensitive).
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"timeout", "network", "econnreset"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// classifyError maps a post-retry failure to one of the gateway's sentinel
// error kinds.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return pkgerrors.Wrap(services.ErrRateLimited, apiErr.Error())
		case apiErr.StatusCode == 400:
			return pkgerrors.Wrap(services.ErrBadRequest, apiErr.Error())
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return pkgerrors.Wrap(services.ErrUnauthenticated, apiErr.Error())
		case apiErr.StatusCode >= 500:
			return pkgerrors.Wrap(services.ErrUpstreamUnavailable, apiErr.Error())
		}
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"timeout", "network", "econnreset"} {
		if strings.Contains(msg, needle) {
			return pkgerrors.Wrap(services.ErrUpstreamUnavailable, err.Error())
		}
	}
	return pkgerrors.Wrap(services.ErrUpstreamError, fmt.Sprintf("llm: %v", err))
}
