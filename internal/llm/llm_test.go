package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/tbourn/whatsapp-llm-gateway/internal/services"
)

func TestValidate_RejectsEmptyList(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("expected error for empty message list")
	}
}

func TestValidate_RejectsUnrecognizedRole(t *testing.T) {
	err := Validate([]Message{{Role: "moderator", Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for unrecognized role")
	}
}

func TestValidate_RejectsEmptyContent(t *testing.T) {
	err := Validate([]Message{{Role: RoleUser, Content: "   "}})
	if err == nil {
		t.Fatal("expected error for blank content")
	}
}

func TestValidate_RejectsNonUserLastMessage(t *testing.T) {
	err := Validate([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	if err == nil {
		t.Fatal("expected error when last message is not role=user")
	}
}

func TestValidate_AcceptsWellFormedConversation(t *testing.T) {
	err := Validate([]Message{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "how are you?"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTruncate_KeepsAllWhenUnderBudget(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "short"},
		{Role: RoleAssistant, Content: "also short"},
	}
	out := Truncate(msgs)
	if len(out) != len(msgs) {
		t.Fatalf("expected no truncation, got %d of %d", len(out), len(msgs))
	}
}

func TestTruncate_DropsOldestPreservingSuffix(t *testing.T) {
	big := strings.Repeat("x", tokenBudget*4+100)
	msgs := []Message{
		{Role: RoleUser, Content: "old turn that should be dropped"},
		{Role: RoleAssistant, Content: big},
		{Role: RoleUser, Content: "most recent turn"},
	}
	out := Truncate(msgs)
	if len(out) == 0 {
		t.Fatal("expected at least one message retained")
	}
	if out[len(out)-1].Content != "most recent turn" {
		t.Fatalf("expected the suffix preserved, last message was %q", out[len(out)-1].Content)
	}
}

func TestTruncate_NeverDropsLastMessage(t *testing.T) {
	huge := strings.Repeat("y", tokenBudget*10)
	msgs := []Message{{Role: RoleUser, Content: huge}}
	out := Truncate(msgs)
	if len(out) != 1 {
		t.Fatalf("expected the sole message retained even over budget, got %d", len(out))
	}
}

// fakeClient is a seam substitute for the real Anthropic SDK client.
type fakeClient struct {
	calls int
	resp  apiResponse
	err   error
}

func (f *fakeClient) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (apiResponse, error) {
	f.calls++
	if f.err != nil {
		return apiResponse{}, f.err
	}
	return f.resp, nil
}

func TestCompleteWithMetrics_Success(t *testing.T) {
	fc := &fakeClient{resp: apiResponse{
		Text: "hello there", Model: "claude-3-5-haiku-20241022",
		StopReason: "end_turn", InputTokens: 10, OutputTokens: 5,
	}}
	svc := newWithClient(Config{Model: "claude-3-5-haiku-20241022", MaxOutputTokens: 256}, fc)

	result, err := svc.CompleteWithMetrics(context.Background(), []Message{
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("CompleteWithMetrics: %v", err)
	}
	if result.Content != "hello there" {
		t.Fatalf("content = %q", result.Content)
	}
	if result.TokensUsed != 15 {
		t.Fatalf("tokens used = %d, want 15", result.TokensUsed)
	}
	if result.Cost <= 0 {
		t.Fatalf("expected a positive cost estimate, got %v", result.Cost)
	}
	if fc.calls != 1 {
		t.Fatalf("expected exactly one call on success, got %d", fc.calls)
	}
}

func TestCompleteWithMetrics_RejectsInvalidInput(t *testing.T) {
	fc := &fakeClient{}
	svc := newWithClient(Config{Model: "claude-3-5-haiku-20241022"}, fc)

	_, err := svc.CompleteWithMetrics(context.Background(), nil)
	if err == nil {
		t.Fatal("expected validation error for empty message list")
	}
	if fc.calls != 0 {
		t.Fatalf("expected no API call for invalid input, got %d calls", fc.calls)
	}
}

func TestCompleteWithMetrics_RetriesOnNetworkError(t *testing.T) {
	fc := &fakeClient{err: errors.New("dial tcp: i/o timeout")}
	svc := newWithClient(Config{Model: "claude-3-5-haiku-20241022"}, fc)

	_, err := svc.CompleteWithMetrics(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if !errors.Is(err, services.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if fc.calls != maxAttempts {
		t.Fatalf("expected %d attempts for a retryable error, got %d", maxAttempts, fc.calls)
	}
}

func TestCompleteWithMetrics_DoesNotRetryOnNonRetryableError(t *testing.T) {
	fc := &fakeClient{err: errors.New("malformed request body")}
	svc := newWithClient(Config{Model: "claude-3-5-haiku-20241022"}, fc)

	_, err := svc.CompleteWithMetrics(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, services.ErrUpstreamError) {
		t.Fatalf("expected ErrUpstreamError, got %v", err)
	}
	if fc.calls != 1 {
		t.Fatalf("expected a single attempt for a non-retryable error, got %d", fc.calls)
	}
}
