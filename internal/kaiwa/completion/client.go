// Package completion adapts the OpenAI chat completions API for the bridge.
// It turns a transcript snapshot into a single assistant reply, retrying
// transient failures with exponential backoff and failing fast on anything
// the API will never accept.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/bdobrica/kaiwa/common/retry"
	"github.com/bdobrica/kaiwa/internal/kaiwa/session"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
	maxBackoff     = 30 * time.Second
)

// ErrEmptyReply is returned when the API answers successfully but with no
// usable content. There is nothing worth posting, so it is terminal.
var ErrEmptyReply = errors.New("completion: empty reply")

// Config configures the completion client.
type Config struct {
	// APIKey is the bearer token for the completions API.
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for Azure OpenAI or a local
	// OpenAI-compatible server. Empty means the public OpenAI endpoint.
	BaseURL string

	// Model is the chat model. Defaults to gpt-4o-mini when empty.
	Model string

	// SystemPrompt, when non-empty, is prepended to every request as the
	// system message. Comes from the bot profile.
	SystemPrompt string

	// Temperature is passed through when non-zero.
	Temperature float64

	// MaxTokens caps the completion length when positive.
	MaxTokens int

	// MaxAttempts is the total attempt budget for transient failures,
	// including the first try. Defaults to 3 when zero.
	MaxAttempts int

	// BackoffBase is the delay before the second attempt; it doubles per
	// attempt. Defaults to 500ms when zero.
	BackoffBase time.Duration

	// Timeout is the per-request HTTP timeout. Defaults to 60s when zero.
	Timeout time.Duration
}

// Client is a retrying completion client. Safe for concurrent use; it holds
// no per-room state and never touches the session store.
type Client struct {
	cfg Config
	api openai.Client
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("completion: APIKey must not be empty")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = retry.DefaultConfig.InitialDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// The SDK has its own retry layer; disable it so the retry policy
		// lives in one place and the attempt budget means what it says.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{cfg: cfg, api: openai.NewClient(opts...)}, nil
}

// RequestReply sends the transcript to the chat API and returns the model's
// reply. Transient failures (rate limiting, 5xx, network errors) are retried
// with exponential backoff up to the configured attempt budget; terminal
// failures (auth, malformed request, empty reply) return immediately.
func (c *Client) RequestReply(ctx context.Context, transcript []session.Turn) (string, error) {
	params := c.buildParams(transcript)

	var content string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  c.cfg.MaxAttempts,
		InitialDelay: c.cfg.BackoffBase,
		MaxDelay:     maxBackoff,
		ShouldRetry:  transient,
	}, func() error {
		resp, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			return fmt.Errorf("completion: chat request: %w", err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyReply
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

// buildParams converts a transcript into chat API parameters, prepending the
// configured system prompt when present.
func (c *Client) buildParams(transcript []session.Turn) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript)+1)
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(c.cfg.SystemPrompt))
	}
	for _, turn := range transcript {
		switch turn.Role {
		case session.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.cfg.Model),
		Messages: messages,
	}
	if c.cfg.Temperature != 0 {
		params.Temperature = param.NewOpt(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(c.cfg.MaxTokens))
	}
	return params
}

// transient classifies an attempt error. Rate limiting and server-side
// failures are worth retrying; anything the API rejected outright (bad key,
// malformed request) will fail the same way every time.
func transient(err error) bool {
	if errors.Is(err, ErrEmptyReply) {
		return false
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500
	}
	// No structured API error: connection refused, reset, timeout. Retry.
	return true
}
