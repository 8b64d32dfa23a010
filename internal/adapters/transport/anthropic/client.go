package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"

	"github.com/bnema/parley/internal/adapters/transport"
	"github.com/bnema/parley/internal/domain"
	"github.com/bnema/parley/internal/logger"
	"github.com/bnema/parley/internal/ports"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 256
)

var errEmptyResponse = errors.New("anthropic returned no text content")

type Client struct {
	client    anthropic.Client
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
		client:    anthropic.NewClient(requestOptions...),
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
		logger:    logger.Component(cfg.logger, "anthropic"),
	}
}

func (c *Client) Send(ctx context.Context, call ports.LLMCall) (domain.RawResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: transport.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(call.Prompt)),
		},
	}

	c.logger.Debug("sending message", "model", c.model, "request", call.RequestID, "agent", call.AgentID)
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return domain.RawResponse{}, fmt.Errorf("anthropic message: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		text.WriteString(block.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return domain.RawResponse{}, errEmptyResponse
	}

	return transport.Response(text.String(), message.Usage.OutputTokens), nil
}
