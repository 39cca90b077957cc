package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"dreamflow/internal/breaker"
	"dreamflow/internal/config"
)

var (
	// ErrNotConfigured is returned when no completion provider is available.
	ErrNotConfigured = errors.New("completion service is not configured")
	ErrEmptyResponse = errors.New("completion service returned no message")
)

// ChatModel is the part of an eino chat model the completer needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Completion produces one assistant message for a prompt.
type Completion interface {
	Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

type CompleterConfig struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Completer wraps a ChatModel with a per-call timeout, bounded exponential
// retries and a circuit breaker. A nil model makes every call fail with
// ErrNotConfigured.
type Completer struct {
	model   ChatModel
	cfg     CompleterConfig
	breaker *breaker.CircuitBreaker
	log     *zap.Logger
}

func NewCompleter(m ChatModel, cfg CompleterConfig, cb *breaker.CircuitBreaker, log *zap.Logger) *Completer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cb == nil {
		cb = breaker.New(&breaker.Config{Name: "completion", MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMaxCalls: 1})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Completer{model: m, cfg: cfg, breaker: cb, log: log}
}

func (c *Completer) Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	if c.model == nil {
		return nil, ErrNotConfigured
	}

	var out *schema.Message
	attempt := 0
	operation := func() error {
		attempt++
		err := c.breaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()

			msg, err := c.model.Generate(callCtx, messages)
			if err != nil {
				return err
			}
			if msg == nil {
				return ErrEmptyResponse
			}
			out = msg
			return nil
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, breaker.ErrOpen) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.log.Warn("completion attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryBackoff
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(operation, retry); err != nil {
		return nil, fmt.Errorf("completion failed after %d attempt(s): %w", attempt, err)
	}
	return out, nil
}

// NewChatModel builds the configured provider's model with the task tools bound.
func NewChatModel(ctx context.Context, cfg config.ChatConfig) (model.ToolCallingChatModel, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	var (
		m   model.ToolCallingChatModel
		err error
	)
	switch cfg.Provider {
	case "", "openai":
		maxTokens := cfg.MaxTokens
		temperature := cfg.Temperature
		m, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Timeout:     cfg.Timeout,
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		m, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURL,
			MaxTokens: cfg.MaxTokens,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		m, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported chat provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", cfg.Provider, err)
	}

	bound, err := m.WithTools(ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("bind task tools: %w", err)
	}
	return bound, nil
}
