package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bnema/parley/internal/adapters/transport"
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/logger"
	"github.com/bnema/parley/internal/ports"
)

const (
	DefaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 256
)

var errEmptyResponse = errors.New("openai returned no choices")

type Client struct {
	client    openai.Client
	model     string
	maxTokens int64
	logger    *log.Logger
}

var _ ports.Transport = (*Client)(nil)

type config struct {
	model      string
	maxTokens  int64
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *log.Logger
}

type Option func(*config)

func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTokens = int64(n)
		}
	}
}

func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

func New(apiKey string, opts ...Option) *Client {
	cfg := config{model: DefaultModel, maxTokens: defaultMaxTokens, maxRetries: -1}
	for _, opt := range opts {
		opt(&cfg)
	}

	requestOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(cfg.httpClient))
	}
	if cfg.maxRetries >= 0 {
		requestOptions = append(requestOptions, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Client{
		client:    openai.NewClient(requestOptions...),
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
		logger:    logger.Component(cfg.logger, "openai"),
	}
}

func (c *Client) Send(ctx context.Context, call ports.LLMCall) (domain.RawResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(transport.SystemPrompt),
			openai.UserMessage(call.Prompt),
		},
		MaxTokens: openai.Int(c.maxTokens),
	}

	c.logger.Debug("sending chat completion", "model", c.model, "request", call.RequestID, "agent", call.AgentID)
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.RawResponse{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.RawResponse{}, errEmptyResponse
	}

	return transport.Response(completion.Choices[0].Message.Content, completion.Usage.CompletionTokens), nil
}
